// Package recognizer owns the face gallery and its persistence, and answers
// identify and enroll requests for still images and videos.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/database"
	"github.com/kozaktomas/face-gallery/internal/extractor"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/stream"
)

var (
	// ErrNoFaceDetected is returned by Add when none of the images has a face.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrUnknownIdentity is returned by Remove for identities not in the gallery.
	ErrUnknownIdentity = errors.New("identity not in gallery")
)

// UnknownLabel is reported in place of an identity when nothing matched.
const UnknownLabel = "UNKNOWN"

// Verdict is the outcome of one identification.
type Verdict struct {
	Identity string  `json:"identity,omitempty"`
	Score    float64 `json:"score"`

	// Image identification.
	Faces int `json:"faces,omitempty"`

	// Video identification.
	FramesRead int  `json:"frames_read,omitempty"`
	Processed  int  `json:"processed,omitempty"`
	EarlyExit  bool `json:"early_exit,omitempty"`
}

// Matched reports whether an identity was found.
func (v Verdict) Matched() bool {
	return v.Identity != ""
}

// Label returns the identity, or UnknownLabel when nothing matched.
func (v Verdict) Label() string {
	if v.Identity == "" {
		return UnknownLabel
	}
	return v.Identity
}

// Options configure matching.
type Options struct {
	Threshold float64
	Stream    stream.Options
}

// DefaultOptions returns threshold 0.4 and the default video sampling.
func DefaultOptions() Options {
	return Options{
		Threshold: 0.4,
		Stream:    stream.DefaultOptions(),
	}
}

// Recognizer ties the gallery to a store, a face detector and a video opener.
type Recognizer struct {
	gallery  *gallery.Gallery
	store    database.GalleryStore
	detector stream.Detector
	opener   stream.Opener
	opts     Options
	logger   *zap.Logger

	// writeMu serializes mutations with their persistence so a save never
	// interleaves with a reload.
	writeMu sync.Mutex
}

// New creates a recognizer. Call Reload to populate the gallery from the store.
func New(g *gallery.Gallery, store database.GalleryStore, det stream.Detector, opener stream.Opener, opts Options, logger *zap.Logger) *Recognizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recognizer{
		gallery:  g,
		store:    store,
		detector: det,
		opener:   opener,
		opts:     opts,
		logger:   logger,
	}
}

// Gallery returns the in-memory gallery.
func (r *Recognizer) Gallery() *gallery.Gallery {
	return r.gallery
}

// Options returns the matching options.
func (r *Recognizer) Options() Options {
	return r.opts
}

// Reload replaces the gallery with the store's contents.
func (r *Recognizer) Reload(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.reloadLocked(ctx)
}

func (r *Recognizer) reloadLocked(ctx context.Context) error {
	raw, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load gallery: %w", err)
	}
	r.gallery.Replace(raw)

	stats := r.gallery.Stats()
	r.logger.Info("gallery loaded",
		zap.Int("identities", stats.Identities),
		zap.Int("embeddings", stats.Embeddings),
		zap.Int("representations", stats.Representations))
	return nil
}

// probe extracts the first face of an image file. A missing file, an
// undecodable image and an image without faces all yield ok == false.
func (r *Recognizer) probe(ctx context.Context, path string) (face []float32, faces int, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		r.logger.Warn("could not read image", zap.String("path", path), zap.Error(err))
		return nil, 0, false, nil
	}

	detected, err := r.detector.Detect(ctx, data)
	if errors.Is(err, extractor.ErrUndecodable) {
		r.logger.Warn("could not decode image", zap.String("path", path), zap.Error(err))
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("detect faces in %s: %w", path, err)
	}
	if len(detected) == 0 {
		r.logger.Debug("no face detected", zap.String("path", path))
		return nil, 0, false, nil
	}
	return detected[0], len(detected), true, nil
}

// FirstFace returns the embedding of the first face in the image at path, or
// ok == false when the image is unreadable or has no face.
func (r *Recognizer) FirstFace(ctx context.Context, path string) (face []float32, ok bool, err error) {
	face, _, ok, err = r.probe(ctx, path)
	return face, ok, err
}

// IdentifyImage matches the first face in the image at path.
func (r *Recognizer) IdentifyImage(ctx context.Context, path string) (Verdict, error) {
	face, n, ok, err := r.probe(ctx, path)
	if err != nil || !ok {
		return Verdict{}, err
	}

	m := r.gallery.Identify(face, r.opts.Threshold)
	return Verdict{Identity: m.Identity, Score: m.Score, Faces: n}, nil
}

// Nearest ranks up to k identities by similarity to the first face in the
// image, regardless of the threshold.
func (r *Recognizer) Nearest(ctx context.Context, path string, k int) ([]gallery.Candidate, error) {
	face, _, ok, err := r.probe(ctx, path)
	if err != nil || !ok {
		return nil, err
	}
	return r.gallery.Nearest(face, k), nil
}

// IdentifyVideo scans the video (or frame directory) at path.
func (r *Recognizer) IdentifyVideo(ctx context.Context, path string) (Verdict, error) {
	opts := r.opts.Stream
	opts.Threshold = r.opts.Threshold

	res, err := stream.Identify(ctx, r.opener, path, r.detector, r.gallery.Snapshot(), opts, r.logger)
	if err != nil {
		return Verdict{}, err
	}

	r.logger.Debug("video scanned",
		zap.String("path", path),
		zap.Int("frames_read", res.FramesRead),
		zap.Int("processed", res.Processed),
		zap.Bool("early_exit", res.EarlyExit))

	return Verdict{
		Identity:   res.Identity,
		Score:      res.Score,
		FramesRead: res.FramesRead,
		Processed:  res.Processed,
		EarlyExit:  res.EarlyExit,
	}, nil
}

// Add enrolls the first face of each image under identity and persists the
// gallery. Images without a face are skipped. It returns the number of
// embeddings submitted to the gallery, before diversity pruning.
func (r *Recognizer) Add(ctx context.Context, identity string, paths []string) (int, error) {
	if identity == "" {
		return 0, gallery.ErrEmptyIdentity
	}

	var embeddings [][]float32
	for _, path := range paths {
		face, _, ok, err := r.probe(ctx, path)
		if err != nil {
			return 0, err
		}
		if !ok {
			r.logger.Warn("skipping image without a usable face",
				zap.String("identity", identity),
				zap.String("path", path))
			continue
		}
		embeddings = append(embeddings, face)
	}
	if len(embeddings) == 0 {
		return 0, fmt.Errorf("enroll %q: %w", identity, ErrNoFaceDetected)
	}

	if err := r.AddEmbeddings(ctx, identity, embeddings...); err != nil {
		return 0, err
	}
	return len(embeddings), nil
}

// AddEmbeddings appends precomputed embeddings and persists the gallery.
func (r *Recognizer) AddEmbeddings(ctx context.Context, identity string, embeddings ...[]float32) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.gallery.AppendAll(identity, embeddings...); err != nil {
		return fmt.Errorf("enroll %q: %w", identity, err)
	}
	if err := r.store.Save(ctx, r.gallery.Raw()); err != nil {
		return fmt.Errorf("save gallery: %w", err)
	}

	r.logger.Info("identity enrolled",
		zap.String("identity", identity),
		zap.Int("submitted", len(embeddings)),
		zap.Int("stored", len(r.gallery.Embeddings(identity))))
	return nil
}

// Remove deletes identity from the persisted gallery and reloads.
func (r *Recognizer) Remove(ctx context.Context, identity string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	raw := r.gallery.Raw()
	if _, ok := raw[identity]; !ok {
		return fmt.Errorf("remove %q: %w", identity, ErrUnknownIdentity)
	}
	delete(raw, identity)

	if err := r.store.Save(ctx, raw); err != nil {
		return fmt.Errorf("save gallery: %w", err)
	}
	return r.reloadLocked(ctx)
}

// Identities returns the enrolled identities, sorted.
func (r *Recognizer) Identities() []string {
	return r.gallery.Identities()
}

// Stats returns gallery counts.
func (r *Recognizer) Stats() gallery.Stats {
	return r.gallery.Stats()
}

// Close closes the store.
func (r *Recognizer) Close() error {
	return r.store.Close()
}
