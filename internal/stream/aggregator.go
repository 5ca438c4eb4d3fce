// Package stream turns the per-frame face matches of a video into a single
// identity verdict, stopping early once one identity has strong evidence.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/extractor"
	"github.com/kozaktomas/face-gallery/internal/gallery"
)

// FrameSource yields encoded frames in order. Next returns io.EOF once the
// source is exhausted.
type FrameSource interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Opener opens a frame source for a path.
type Opener interface {
	Open(ctx context.Context, path string) (FrameSource, error)
}

// Detector returns one embedding per face found in an encoded image.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([][]float32, error)
}

// Options control sampling and the early-exit rule.
type Options struct {
	Threshold           float64
	FrameSkip           int // analyze frame 0 and every FrameSkip-th frame after it
	MaxFrames           int // cap on analyzed frames
	EarlyExitMinSamples int
	EarlyExitMeanScore  float64
}

// DefaultOptions returns threshold 0.4, every 5th frame, at most 300
// analyzed frames, early exit at 5 samples with mean above 0.6.
func DefaultOptions() Options {
	return Options{
		Threshold:           0.4,
		FrameSkip:           5,
		MaxFrames:           300,
		EarlyExitMinSamples: 5,
		EarlyExitMeanScore:  0.6,
	}
}

// Result is the verdict of one video scan.
type Result struct {
	Identity   string // empty when nothing matched
	Score      float64
	FramesRead int
	Processed  int
	EarlyExit  bool
}

// Matched reports whether the scan produced an identity.
func (r Result) Matched() bool {
	return r.Identity != ""
}

// Aggregator accumulates similarity samples per identity.
type Aggregator struct {
	opts    Options
	samples map[string][]float64
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts Options) *Aggregator {
	return &Aggregator{
		opts:    opts,
		samples: make(map[string][]float64),
	}
}

// Observe scores every face against every representation in snap and records
// each similarity at or above the threshold.
func (a *Aggregator) Observe(snap *gallery.Snapshot, faces [][]float32) {
	for _, face := range faces {
		for _, id := range snap.Identities() {
			for _, rep := range snap.Representations(id) {
				if sim := gallery.CosineSimilarity(face, rep); sim >= a.opts.Threshold {
					a.samples[id] = append(a.samples[id], sim)
				}
			}
		}
	}
}

// Samples returns the number of samples recorded for identity.
func (a *Aggregator) Samples(identity string) int {
	return len(a.samples[identity])
}

// EarlyDecision reports an identity with at least EarlyExitMinSamples samples
// whose mean exceeds EarlyExitMeanScore. When several qualify the highest
// mean wins.
func (a *Aggregator) EarlyDecision() (string, float64, bool) {
	return a.best(func(id string, mean float64) bool {
		return len(a.samples[id]) >= a.opts.EarlyExitMinSamples && mean > a.opts.EarlyExitMeanScore
	})
}

// Decide returns the identity with the highest mean similarity, or false when
// no sample was recorded.
func (a *Aggregator) Decide() (string, float64, bool) {
	return a.best(func(string, float64) bool { return true })
}

// best scans identities in sorted order so equal means resolve to the
// smallest key.
func (a *Aggregator) best(eligible func(id string, mean float64) bool) (string, float64, bool) {
	ids := make([]string, 0, len(a.samples))
	for id := range a.samples {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bestID, bestMean, found := "", 0.0, false
	for _, id := range ids {
		s := a.samples[id]
		if len(s) == 0 {
			continue
		}
		m := mean(s)
		if !eligible(id, m) {
			continue
		}
		if !found || m > bestMean {
			bestID, bestMean, found = id, m, true
		}
	}
	return bestID, bestMean, found
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// Run scans src until it is exhausted, MaxFrames frames have been analyzed or
// an identity qualifies for early exit. The source is not closed.
//
// Frames the detector cannot decode contribute nothing. A read error ends the
// scan as if the source were exhausted. Any other detector error aborts the
// scan.
func Run(ctx context.Context, src FrameSource, det Detector, snap *gallery.Snapshot, opts Options, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := max(opts.FrameSkip, 1)

	agg := NewAggregator(opts)
	var res Result

	for opts.MaxFrames <= 0 || res.Processed < opts.MaxFrames {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			logger.Warn("frame read failed, ending scan",
				zap.Int("frames_read", res.FramesRead),
				zap.Error(err))
			break
		}

		index := res.FramesRead
		res.FramesRead++
		if index%skip != 0 {
			continue
		}
		res.Processed++

		faces, err := det.Detect(ctx, frame)
		if errors.Is(err, extractor.ErrUndecodable) {
			logger.Debug("skipping undecodable frame", zap.Int("frame", index))
			continue
		}
		if err != nil {
			return res, fmt.Errorf("detect faces in frame %d: %w", index, err)
		}

		agg.Observe(snap, faces)

		if id, score, ok := agg.EarlyDecision(); ok {
			res.Identity, res.Score, res.EarlyExit = id, score, true
			logger.Debug("early exit",
				zap.String("identity", id),
				zap.Float64("score", score),
				zap.Int("processed", res.Processed))
			return res, nil
		}
	}

	if id, score, ok := agg.Decide(); ok {
		res.Identity, res.Score = id, score
	}
	return res, nil
}

// Identify opens path with opener and runs a scan. A source that cannot be
// opened is a miss, not an error.
func Identify(ctx context.Context, opener Opener, path string, det Detector, snap *gallery.Snapshot, opts Options, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	src, err := opener.Open(ctx, path)
	if err != nil {
		logger.Warn("could not open video", zap.String("path", path), zap.Error(err))
		return Result{}, nil
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			logger.Debug("closing frame source", zap.String("path", path), zap.Error(cerr))
		}
	}()

	return Run(ctx, src, det, snap, opts, logger)
}
