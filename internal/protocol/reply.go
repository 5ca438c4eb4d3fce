package protocol

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/face-gallery/internal/recognizer"
)

// Status is the variant of a Reply.
type Status int

const (
	StatusOK Status = iota
	StatusInfo
	StatusError
)

// Reply is the typed result of one command.
type Reply struct {
	Status Status
	Text   string
	Err    error // set for StatusError
}

// String renders the reply as a single protocol line without the newline.
func (r Reply) String() string {
	switch r.Status {
	case StatusInfo:
		return "info " + r.Text
	case StatusError:
		return "error " + r.Text
	default:
		return r.Text
	}
}

// IdentityReply reports a verdict with a four-decimal score.
func IdentityReply(v recognizer.Verdict) Reply {
	return Reply{Status: StatusOK, Text: fmt.Sprintf("identity %s %.4f", v.Label(), v.Score)}
}

// AddedReply acknowledges an enrollment.
func AddedReply(identity string) Reply {
	return Reply{Status: StatusOK, Text: "added " + identity}
}

// IgnoredReply reports an unrecognised command.
func IgnoredReply(name string) Reply {
	return Reply{Status: StatusInfo, Text: "ignored_command " + name}
}

// ErrorReply reports err on one line.
func ErrorReply(err error) Reply {
	msg := "unknown error"
	if err != nil {
		msg = singleLine(err.Error())
	}
	return Reply{Status: StatusError, Text: msg, Err: err}
}

func singleLine(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	return strings.TrimSpace(s)
}
