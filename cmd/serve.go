package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/protocol"
	"github.com/kozaktomas/face-gallery/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer identify/add commands on stdin",
	Long: `Read one command per line from stdin and write one reply per line to stdout.

Commands:
  identify image <path>           -> identity <id|UNKNOWN> <score>
  identify video <path>           -> identity <id|UNKNOWN> <score>
  add <identity> <p1>[&p2&...]    -> added <identity>
  exit

Failures are reported as "error <reason>" and never stop the loop. Logs go
to stderr.

Examples:
  # Serve a parent process over a pipe
  face-gallery serve

  # Reload the gallery when another process rewrites the gallery file
  face-gallery serve --watch`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("watch", false, "Reload the gallery when the gallery file changes (file backend only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	watch := mustGetBool(cmd, "watch")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := openRecognizer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRecognizer(rec)

	if watch {
		if cfg.Gallery.Backend != config.BackendFile {
			return errors.New("--watch requires GALLERY_BACKEND=file")
		}
		w, err := watcher.New(cfg.Gallery.Path, func() {
			if err := rec.Reload(ctx); err != nil {
				logger.Warn("gallery reload failed", zap.Error(err))
			}
		}, watcher.WithLogger(logger.Named("watcher")))
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	stats := rec.Stats()
	logger.Info("serving commands on stdin",
		zap.String("backend", cfg.Gallery.Backend),
		zap.Int("identities", stats.Identities),
		zap.Float64("threshold", cfg.Matching.Threshold))

	done := make(chan error, 1)
	go func() {
		done <- protocol.NewSession(rec, logger.Named("protocol")).Run(ctx, os.Stdin, os.Stdout)
	}()

	select {
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	}
}
