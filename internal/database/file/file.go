// Package file stores the gallery as a single JSON or MessagePack document
// keyed by identity.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/database"
)

func init() {
	database.RegisterBackend(config.BackendFile, func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (database.GalleryStore, error) {
		return New(cfg.Gallery.Path, logger)
	})
}

// Codec encodes the gallery document.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// CodecFor picks the codec from the file extension: .msgpack and .mpk use
// MessagePack, everything else JSON.
func CodecFor(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mpk":
		return msgpackCodec{}
	default:
		return jsonCodec{}
	}
}

// Store is a file-backed gallery store.
type Store struct {
	path   string
	codec  Codec
	logger *zap.Logger
}

// New creates a store for path. The file does not need to exist.
func New(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("gallery path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, codec: CodecFor(path), logger: logger}, nil
}

// Path returns the gallery file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads and normalizes the document. A missing file is an empty gallery.
func (s *Store) Load(ctx context.Context) (map[string][][]float32, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("gallery file not found, starting empty", zap.String("path", s.path))
		return map[string][][]float32{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gallery: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string][][]float32{}, nil
	}

	var doc map[string]any
	if err := s.codec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s gallery %s: %w", s.codec.Name(), s.path, err)
	}

	raw := database.NormalizeDocument(doc, s.logger)
	s.logger.Debug("gallery loaded",
		zap.String("path", s.path),
		zap.Int("identities", len(raw)))
	return raw, nil
}

// Save writes the whole gallery atomically: a temp file in the same
// directory is written, synced and renamed over the target.
func (s *Store) Save(ctx context.Context, raw map[string][][]float32) error {
	if raw == nil {
		raw = map[string][][]float32{}
	}
	data, err := s.codec.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode %s gallery: %w", s.codec.Name(), err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create gallery directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace gallery file: %w", err)
	}

	s.logger.Debug("gallery saved",
		zap.String("path", s.path),
		zap.Int("identities", len(raw)),
		zap.Int("bytes", len(data)))
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
