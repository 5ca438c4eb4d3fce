package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/logging"
)

var (
	debug  bool
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "face-gallery",
	Short: "Face embedding gallery with image and video identification",
	Long: `Face Gallery keeps a per-identity gallery of face embeddings produced by an
external embedding server, and identifies the people in still images and
videos against it.

Run "face-gallery serve" to answer line commands on stdin, or use the
identify, add, enroll and gallery subcommands directly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.NewLogger(debug)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Human-readable debug logging on stderr")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
