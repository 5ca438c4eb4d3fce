package video

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	jpegMarker = 0xFF
	jpegSOI    = 0xD8
	jpegEOI    = 0xD9
	jpegSOS    = 0xDA

	// maxStderr bounds the ffmpeg diagnostics kept for error messages.
	maxStderr = 4096
)

// FFmpegSource decodes a video with ffmpeg and yields one JPEG per frame.
type FFmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	split  *jpegSplitter
	stderr *limitedBuffer
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// StartFFmpeg spawns ffmpeg writing an MJPEG stream of path to its stdout.
func StartFFmpeg(ctx context.Context, ffmpegPath, path string, logger *zap.Logger) (*FFmpegSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// The binary comes from FFMPEG_PATH and path is passed as a single argument.
	cmd := exec.CommandContext(ctx, ffmpegPath, //nolint:gosec
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"-",
	)
	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	logger.Debug("ffmpeg started", zap.String("path", path), zap.Int("pid", cmd.Process.Pid))

	return &FFmpegSource{
		cmd:    cmd,
		stdout: stdout,
		split:  newJPEGSplitter(stdout),
		stderr: stderr,
		logger: logger,
	}, nil
}

// Next returns the next decoded frame, or io.EOF once ffmpeg has finished.
func (f *FFmpegSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame, err := f.split.next()
	if errors.Is(err, io.EOF) {
		if msg := strings.TrimSpace(f.stderr.String()); msg != "" {
			f.logger.Debug("ffmpeg stderr", zap.String("output", msg))
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read ffmpeg output: %w", err)
	}
	return frame, nil
}

// Close stops ffmpeg if it is still running and reaps it.
func (f *FFmpegSource) Close() error {
	f.closeOnce.Do(func() {
		_ = f.stdout.Close()
		_ = f.cmd.Process.Kill()
		if err := f.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				// Killed on early exit, or ffmpeg complained about the input.
				f.logger.Debug("ffmpeg exited",
					zap.Int("code", exitErr.ExitCode()),
					zap.String("stderr", strings.TrimSpace(f.stderr.String())))
				return
			}
			f.closeErr = err
		}
	})
	return f.closeErr
}

// errMalformedJPEG is returned when a marker is expected but not found.
var errMalformedJPEG = errors.New("malformed jpeg stream")

// jpegSplitter cuts a concatenated JPEG stream into images. It walks the
// marker segments by their length fields and scans entropy-coded data for
// the next real marker, so 0xFF 0xD9 inside a table never ends an image.
// Bytes between images are discarded.
type jpegSplitter struct {
	r *bufio.Reader
}

func newJPEGSplitter(r io.Reader) *jpegSplitter {
	return &jpegSplitter{r: bufio.NewReaderSize(r, 64*1024)}
}

// next returns the next complete JPEG. It returns io.EOF when the stream ends
// between images and io.ErrUnexpectedEOF when it ends inside one.
func (s *jpegSplitter) next() ([]byte, error) {
	if err := s.seekSOI(); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 64*1024)
	buf = append(buf, jpegMarker, jpegSOI)

	code, err := s.readMarker()
	for {
		if err != nil {
			return nil, unexpected(err)
		}
		buf = append(buf, jpegMarker, code)

		switch {
		case code == jpegEOI:
			return buf, nil
		case isStandalone(code):
			code, err = s.readMarker()
		default:
			if buf, err = s.readSegment(buf); err != nil {
				continue
			}
			if code == jpegSOS {
				buf, code, err = s.readEntropy(buf)
			} else {
				code, err = s.readMarker()
			}
		}
	}
}

// seekSOI discards bytes up to and including the next start-of-image marker.
func (s *jpegSplitter) seekSOI() error {
	for {
		_, err := s.r.ReadSlice(jpegMarker)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return err
		}

		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		switch b {
		case jpegSOI:
			return nil
		case jpegMarker:
			_ = s.r.UnreadByte()
		}
	}
}

// readMarker reads 0xFF, any fill bytes, and returns the marker code.
func (s *jpegSplitter) readMarker() (byte, error) {
	b, err := s.r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != jpegMarker {
		return 0, errMalformedJPEG
	}
	for {
		if b, err = s.r.ReadByte(); err != nil {
			return 0, err
		}
		if b != jpegMarker {
			return b, nil
		}
	}
}

// readSegment copies a length-prefixed marker segment onto buf.
func (s *jpegSplitter) readSegment(buf []byte) ([]byte, error) {
	var size [2]byte
	if _, err := io.ReadFull(s.r, size[:]); err != nil {
		return buf, err
	}
	n := int(binary.BigEndian.Uint16(size[:]))
	if n < 2 {
		return buf, errMalformedJPEG
	}
	buf = append(buf, size[:]...)
	start := len(buf)
	buf = append(buf, make([]byte, n-2)...)
	_, err := io.ReadFull(s.r, buf[start:])
	return buf, err
}

// readEntropy copies entropy-coded data onto buf up to the next marker that
// is neither a stuffed 0x00 nor a restart marker, and returns that marker.
func (s *jpegSplitter) readEntropy(buf []byte) ([]byte, byte, error) {
	for {
		chunk, err := s.r.ReadSlice(jpegMarker)
		if errors.Is(err, bufio.ErrBufferFull) {
			buf = append(buf, chunk...)
			continue
		}
		if err != nil {
			return buf, 0, err
		}
		buf = append(buf, chunk[:len(chunk)-1]...)

		b, err := s.r.ReadByte()
		for err == nil && b == jpegMarker {
			b, err = s.r.ReadByte()
		}
		if err != nil {
			return buf, 0, err
		}
		if b == 0x00 || isRestart(b) {
			buf = append(buf, jpegMarker, b)
			continue
		}
		return buf, b, nil
	}
}

func isRestart(code byte) bool {
	return code >= 0xD0 && code <= 0xD7
}

// isStandalone reports markers that carry no length field.
func isStandalone(code byte) bool {
	return code == 0x01 || isRestart(code)
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
