// Package video provides frame sources for the stream aggregator: a directory
// of still images or a video file decoded by an ffmpeg subprocess.
package video

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/stream"
)

// imageExtensions are the still formats a DirSource picks up.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// IsImageFile reports whether name has a supported still image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Opener opens directories as DirSource and anything else as FFmpegSource.
type Opener struct {
	FFmpegPath string
	Logger     *zap.Logger
}

// NewOpener creates an opener that runs the given ffmpeg binary.
func NewOpener(ffmpegPath string, logger *zap.Logger) *Opener {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Opener{FFmpegPath: ffmpegPath, Logger: logger}
}

// Open implements stream.Opener.
func (o *Opener) Open(ctx context.Context, path string) (stream.FrameSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if info.IsDir() {
		return OpenDir(path)
	}
	return StartFFmpeg(ctx, o.FFmpegPath, path, o.Logger)
}

// DirSource serves the image files of a directory in name order.
type DirSource struct {
	files []string
	pos   int
}

// OpenDir lists the supported image files in dir.
func OpenDir(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return &DirSource{files: files}, nil
}

// Len returns the number of frames in the directory.
func (d *DirSource) Len() int {
	return len(d.files)
}

// Next returns the next file's bytes, or io.EOF.
func (d *DirSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.pos >= len(d.files) {
		return nil, io.EOF
	}
	path := d.files[d.pos]
	d.pos++

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", path, err)
	}
	return data, nil
}

// Close is a no-op.
func (d *DirSource) Close() error {
	return nil
}
