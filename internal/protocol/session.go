package protocol

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/recognizer"
)

// maxLineSize bounds one command line; add commands may list many paths.
const maxLineSize = 1 << 20

// Recognizer is what a session needs from the recognizer.
type Recognizer interface {
	IdentifyImage(ctx context.Context, path string) (recognizer.Verdict, error)
	IdentifyVideo(ctx context.Context, path string) (recognizer.Verdict, error)
	Add(ctx context.Context, identity string, paths []string) (int, error)
}

// Session serves commands read from an input stream.
type Session struct {
	rec    Recognizer
	logger *zap.Logger
}

// NewSession creates a session backed by rec.
func NewSession(rec Recognizer, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{rec: rec, logger: logger}
}

// Run reads commands from in and writes one reply line per command to out
// until exit, end of input or ctx cancellation. Per-command failures are
// replied to and never end the loop.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	r := bufio.NewReader(in)
	w := bufio.NewWriter(out)

	for {
		line, err := readLine(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var reply *Reply
		switch {
		case errors.Is(err, errLineTooLong):
			s.logger.Info("rejected command", zap.String("code", string(CodeInputInvalid)), zap.Error(err))
			rep := ErrorReply(inputError("", "line too long"))
			reply = &rep
		case err != nil:
			return fmt.Errorf("read commands: %w", err)
		default:
			var stop bool
			if reply, stop = s.Handle(ctx, line); stop {
				return nil
			}
		}
		if reply == nil {
			continue
		}
		if _, err := fmt.Fprintln(w, reply.String()); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
}

var errLineTooLong = errors.New("line too long")

// readLine returns the next line without its terminator. A line longer than
// maxLineSize is consumed up to its newline and reported as errLineTooLong.
// io.EOF is returned only when no bytes remain.
func readLine(r *bufio.Reader) (string, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(bytes.TrimRight(chunk, "\r\n")) > maxLineSize {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil, errors.Is(err, io.EOF) && (tooLong || len(line) > 0):
			if tooLong {
				return "", errLineTooLong
			}
			return strings.TrimRight(string(line), "\r\n"), nil
		default:
			return "", err
		}
	}
}

// Handle executes one line. It returns nil for blank lines and stop == true
// for exit.
func (s *Session) Handle(ctx context.Context, line string) (reply *Reply, stop bool) {
	if strings.TrimSpace(line) == "" {
		return nil, false
	}

	cmd, err := Parse(line)
	if cmd.Kind == KindExit {
		return nil, true
	}

	logger := s.logger.With(
		zap.String("command_id", uuid.NewString()),
		zap.String("command", cmd.Name))

	if err != nil {
		logger.Info("rejected command", zap.String("code", string(CodeOf(err))), zap.Error(err))
		r := ErrorReply(err)
		return &r, false
	}

	r := s.execute(ctx, cmd, logger)
	return &r, false
}

func (s *Session) execute(ctx context.Context, cmd Command, logger *zap.Logger) (reply Reply) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logger.Error("command panicked", zap.Any("panic", p), zap.Stack("stack"))
			reply = ErrorReply(internalError(errors.New("internal failure"), cmd.Name))
		}
	}()

	switch cmd.Kind {
	case KindIdentify:
		identify := s.rec.IdentifyImage
		if cmd.Media == MediaVideo {
			identify = s.rec.IdentifyVideo
		}
		v, err := identify(ctx, cmd.Path)
		if err != nil {
			return s.fail(logger, err, cmd.Name)
		}
		logger.Info("identified",
			zap.String("media", string(cmd.Media)),
			zap.String("path", cmd.Path),
			zap.String("identity", v.Label()),
			zap.Float64("score", v.Score),
			zap.Duration("took", time.Since(start)))
		return IdentityReply(v)

	case KindAdd:
		n, err := s.rec.Add(ctx, cmd.Identity, cmd.Paths)
		if err != nil {
			return s.fail(logger, err, cmd.Name)
		}
		logger.Info("added",
			zap.String("identity", cmd.Identity),
			zap.Int("paths", len(cmd.Paths)),
			zap.Int("embeddings", n),
			zap.Duration("took", time.Since(start)))
		return AddedReply(cmd.Identity)

	default:
		logger.Debug("ignored command")
		return IgnoredReply(cmd.Name)
	}
}

func (s *Session) fail(logger *zap.Logger, err error, command string) Reply {
	err = internalError(err, command)
	logger.Warn("command failed", zap.String("code", string(CodeOf(err))), zap.Error(err))
	return ErrorReply(err)
}
