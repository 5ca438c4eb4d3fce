package protocol

import (
	"fmt"

	"github.com/samber/oops"
)

// Code classifies a command failure.
type Code string

const (
	CodeInputInvalid    Code = "protocol.input.invalid"
	CodeMediaUnknown    Code = "protocol.media.unknown"
	CodeInternalFailure Code = "recognizer.internal.failure"
)

func inputError(command, format string, args ...any) error {
	return oops.Code(CodeInputInvalid).With("command", command).Errorf(format, args...)
}

func mediaError(media string) error {
	return oops.Code(CodeMediaUnknown).With("media", media).Errorf("unknown media type %s", media)
}

func internalError(err error, command string) error {
	if err == nil {
		return nil
	}
	return oops.Code(CodeInternalFailure).With("command", command).Wrap(err)
}

// CodeOf returns the code attached to err, or "" for unclassified errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	default:
		return Code(fmt.Sprintf("%v", code))
	}
}
