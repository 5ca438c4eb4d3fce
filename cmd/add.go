package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <identity> <image>...",
	Short: "Enroll images under an identity",
	Long: `Extract the first face of each image and add it to the identity's
embeddings. Near-duplicates are pruned and the gallery is saved.

Examples:
  face-gallery add brad brad1.jpg brad2.jpg`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	identity, paths := args[0], args[1:]

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

	n, err := rec.Add(ctx, identity, paths)
	if err != nil {
		return err
	}

	fmt.Printf("added %s\n", identity)
	fmt.Printf("  faces from %d of %d images, %d embeddings stored\n",
		n, len(paths), len(rec.Gallery().Embeddings(identity)))
	return nil
}
