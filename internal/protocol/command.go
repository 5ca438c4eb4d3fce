// Package protocol implements the line-oriented control protocol: one command
// per input line, one reply per command on the output.
//
//	identify image <path>          -> identity <id|UNKNOWN> <score>
//	identify video <path>          -> identity <id|UNKNOWN> <score>
//	add <identity> <p1>[&p2&...]   -> added <identity>
//	exit
package protocol

import (
	"strings"
)

// Kind is the verb of a command.
type Kind int

const (
	KindUnknown Kind = iota
	KindIdentify
	KindAdd
	KindExit
)

// Media selects how an identify command reads its path.
type Media string

const (
	MediaImage Media = "image"
	MediaVideo Media = "video"
)

// Command is a parsed protocol line.
type Command struct {
	Kind Kind
	Name string // first token, as typed

	// identify
	Media Media
	Path  string

	// add
	Identity string
	Paths    []string
}

// pathSeparator joins the image paths of an add command.
const pathSeparator = "&"

// Parse turns a line into a Command. Tokens are separated by single spaces;
// the last argument of each command takes the rest of the line, so paths may
// contain spaces. Unrecognised verbs parse to KindUnknown without error.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	name, rest, _ := strings.Cut(line, " ")
	cmd := Command{Name: name}

	switch name {
	case "exit":
		cmd.Kind = KindExit

	case "identify":
		cmd.Kind = KindIdentify
		media, path, _ := strings.Cut(rest, " ")
		if media == "" {
			return cmd, inputError(name, "usage: identify image|video <path>")
		}
		switch Media(media) {
		case MediaImage, MediaVideo:
			cmd.Media = Media(media)
		default:
			return cmd, mediaError(media)
		}
		if cmd.Path = strings.TrimSpace(path); cmd.Path == "" {
			return cmd, inputError(name, "missing path for identify %s", media)
		}

	case "add":
		cmd.Kind = KindAdd
		identity, paths, _ := strings.Cut(rest, " ")
		if identity == "" {
			return cmd, inputError(name, "usage: add <identity> <path1>[&path2...]")
		}
		cmd.Identity = identity
		for _, p := range strings.Split(paths, pathSeparator) {
			if p = strings.TrimSpace(p); p != "" {
				cmd.Paths = append(cmd.Paths, p)
			}
		}
		if len(cmd.Paths) == 0 {
			return cmd, inputError(name, "missing paths for add %s", identity)
		}

	default:
		cmd.Kind = KindUnknown
	}
	return cmd, nil
}
