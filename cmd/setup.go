package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/database"
	"github.com/kozaktomas/face-gallery/internal/extractor"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/recognizer"
	"github.com/kozaktomas/face-gallery/internal/stream"
	"github.com/kozaktomas/face-gallery/internal/video"

	// Gallery backends register themselves with the database package.
	_ "github.com/kozaktomas/face-gallery/internal/database/file"
	_ "github.com/kozaktomas/face-gallery/internal/database/mariadb"
	_ "github.com/kozaktomas/face-gallery/internal/database/postgres"
	_ "github.com/kozaktomas/face-gallery/internal/database/sqlite"
)

// loadConfig reads the environment and rejects unusable settings.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func galleryOptions(cfg *config.Config) gallery.Options {
	opts := gallery.DefaultOptions()
	opts.MaxEmbeddingsPerPerson = cfg.Matching.MaxEmbeddingsPerPerson
	opts.MaxCentroids = cfg.Matching.MaxCentroids
	opts.DuplicateThreshold = cfg.Matching.DuplicateThreshold
	opts.KMeans.Seed = uint64(cfg.Matching.KMeansSeed) //nolint:gosec // envInt only yields positive values
	if cfg.Matching.KMeansRestarts > 0 {
		opts.KMeans.Restarts = cfg.Matching.KMeansRestarts
	}
	if cfg.Matching.KMeansMaxIter > 0 {
		opts.KMeans.MaxIter = cfg.Matching.KMeansMaxIter
	}
	return opts
}

func recognizerOptions(cfg *config.Config) recognizer.Options {
	return recognizer.Options{
		Threshold: cfg.Matching.Threshold,
		Stream: stream.Options{
			Threshold:           cfg.Matching.Threshold,
			FrameSkip:           cfg.Video.FrameSkip,
			MaxFrames:           cfg.Video.MaxFrames,
			EarlyExitMinSamples: cfg.Video.EarlyExitMinSamples,
			EarlyExitMeanScore:  cfg.Video.EarlyExitMeanScore,
		},
	}
}

func newExtractor(cfg *config.Config) *extractor.Client {
	return extractor.NewClient(cfg.Embedding.URL,
		extractor.WithTimeout(time.Duration(cfg.Embedding.TimeoutSec)*time.Second),
		extractor.WithMaxImageSize(cfg.Embedding.MaxImageSize),
		extractor.WithLogger(logger.Named("extractor")),
	)
}

// openRecognizer wires the configured backend, extractor and frame opener
// and loads the gallery.
func openRecognizer(ctx context.Context, cfg *config.Config) (*recognizer.Recognizer, error) {
	store, err := database.Open(ctx, cfg, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("open gallery store: %w", err)
	}

	rec := recognizer.New(
		gallery.New(galleryOptions(cfg), logger.Named("gallery")),
		store,
		newExtractor(cfg),
		video.NewOpener(cfg.Video.FFmpegPath, logger.Named("video")),
		recognizerOptions(cfg),
		logger.Named("recognizer"),
	)
	if err := rec.Reload(ctx); err != nil {
		_ = rec.Close()
		return nil, err
	}
	return rec, nil
}

func closeRecognizer(rec *recognizer.Recognizer) {
	if err := rec.Close(); err != nil {
		logger.Warn("closing gallery store", zap.Error(err))
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
