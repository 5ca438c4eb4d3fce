package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/recognizer"
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Identify the person in an image or video",
}

var identifyImageCmd = &cobra.Command{
	Use:   "image <path>",
	Short: "Identify the first face in a still image",
	Long: `Identify the first face the embedding server finds in an image.

Examples:
  face-gallery identify image probe.jpg

  # Also list the three closest identities regardless of threshold
  face-gallery identify image probe.jpg --top 3

  face-gallery identify image probe.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentifyImage,
}

var identifyVideoCmd = &cobra.Command{
	Use:   "video <path>",
	Short: "Identify the dominant person in a video or frame directory",
	Long: `Sample frames from a video (decoded with ffmpeg) or a directory of frame
images and aggregate the per-frame matches into one verdict.

Examples:
  face-gallery identify video clip.mp4
  face-gallery identify video ./frames --json`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentifyVideo,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
	identifyCmd.AddCommand(identifyImageCmd)
	identifyCmd.AddCommand(identifyVideoCmd)

	identifyImageCmd.Flags().Int("top", 0, "Also rank the N closest identities")
	identifyImageCmd.Flags().Bool("json", false, "Output as JSON")
	identifyImageCmd.Flags().Float64("threshold", 0, "Override MATCH_THRESHOLD (0 = use configured value)")

	identifyVideoCmd.Flags().Bool("json", false, "Output as JSON")
	identifyVideoCmd.Flags().Float64("threshold", 0, "Override MATCH_THRESHOLD (0 = use configured value)")
}

// IdentifyOutput is the JSON form of an identify result.
type IdentifyOutput struct {
	Path    string              `json:"path"`
	Label   string              `json:"label"`
	Verdict recognizer.Verdict  `json:"verdict"`
	Nearest []gallery.Candidate `json:"nearest,omitempty"`
}

func openForIdentify(ctx context.Context, cmd *cobra.Command) (*recognizer.Recognizer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if threshold := mustGetFloat64(cmd, "threshold"); threshold != 0 {
		cfg.Matching.Threshold = threshold
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return openRecognizer(ctx, cfg)
}

func runIdentifyImage(cmd *cobra.Command, args []string) error {
	top := mustGetInt(cmd, "top")
	jsonOutput := mustGetBool(cmd, "json")
	path := args[0]

	ctx := cmd.Context()
	rec, err := openForIdentify(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeRecognizer(rec)

	verdict, err := rec.IdentifyImage(ctx, path)
	if err != nil {
		return err
	}

	var nearest []gallery.Candidate
	if top > 0 {
		if nearest, err = rec.Nearest(ctx, path, top); err != nil {
			return err
		}
	}

	if jsonOutput {
		return outputJSON(IdentifyOutput{Path: path, Label: verdict.Label(), Verdict: verdict, Nearest: nearest})
	}

	fmt.Printf("identity %s %.4f\n", verdict.Label(), verdict.Score)
	if len(nearest) > 0 {
		fmt.Println()
		fmt.Printf("%-4s %-30s %s\n", "#", "IDENTITY", "SIMILARITY")
		for i, c := range nearest {
			fmt.Printf("%-4d %-30s %.4f\n", i+1, c.Identity, c.Similarity)
		}
	}
	return nil
}

func runIdentifyVideo(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	path := args[0]

	ctx := cmd.Context()
	rec, err := openForIdentify(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeRecognizer(rec)

	verdict, err := rec.IdentifyVideo(ctx, path)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(IdentifyOutput{Path: path, Label: verdict.Label(), Verdict: verdict})
	}

	fmt.Printf("identity %s %.4f\n", verdict.Label(), verdict.Score)
	fmt.Printf("  frames read: %d, analyzed: %d, early exit: %v\n",
		verdict.FramesRead, verdict.Processed, verdict.EarlyExit)
	return nil
}
