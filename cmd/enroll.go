package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/recognizer"
	"github.com/kozaktomas/face-gallery/internal/video"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity> <dir>",
	Short: "Enroll every image in a directory under an identity",
	Long: `Extract the first face of every image in a directory and enroll them under
one identity in a single gallery update.

Examples:
  face-gallery enroll brad ./photos/brad

  # Machine-readable summary instead of a progress bar
  face-gallery enroll brad ./photos/brad --json`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// EnrollOutput is the JSON summary of an enroll run.
type EnrollOutput struct {
	Identity string   `json:"identity"`
	Images   int      `json:"images"`
	Faces    int      `json:"faces"`
	Skipped  []string `json:"skipped,omitempty"`
	Stored   int      `json:"stored"`
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && video.IsImageFile(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	identity, dir := args[0], args[1]

	paths, err := listImages(dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no images in %s", dir)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rec, err := openRecognizer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRecognizer(rec)

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Extracting faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	out := EnrollOutput{Identity: identity, Images: len(paths)}
	var embeddings [][]float32
	for _, path := range paths {
		face, ok, err := rec.FirstFace(ctx, path)
		if err != nil {
			return err
		}
		if ok {
			embeddings = append(embeddings, face)
		} else {
			out.Skipped = append(out.Skipped, path)
			logger.Debug("no usable face", zap.String("path", path))
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		fmt.Println()
	}

	if len(embeddings) == 0 {
		return fmt.Errorf("enroll %q: %w", identity, recognizer.ErrNoFaceDetected)
	}
	if err := rec.AddEmbeddings(ctx, identity, embeddings...); err != nil {
		return err
	}
	out.Faces = len(embeddings)
	out.Stored = len(rec.Gallery().Embeddings(identity))

	if jsonOutput {
		return outputJSON(out)
	}

	fmt.Printf("added %s\n", identity)
	fmt.Printf("  faces from %d of %d images, %d embeddings stored\n", out.Faces, out.Images, out.Stored)
	for _, p := range out.Skipped {
		fmt.Printf("  skipped %s\n", p)
	}
	return nil
}
