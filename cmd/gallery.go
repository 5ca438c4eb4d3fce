package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/database"
	"github.com/kozaktomas/face-gallery/internal/facematch"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect and maintain the gallery",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runGalleryList,
}

var galleryShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one identity (case and diacritics are ignored)",
	Long: `Show the stored embeddings and representations of an identity.

The name is matched exactly first, then ignoring case, diacritics, dashes and
underscores, so "jan novak" finds "Jan_Novák".`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryShow,
}

var galleryRemoveCmd = &cobra.Command{
	Use:   "remove <identity>",
	Short: "Remove an identity from the gallery",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryRemove,
}

var galleryMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the gallery to another backend",
	Long: `Load the gallery from the configured backend and save it to another one.

Examples:
  # Move a JSON gallery file into PostgreSQL
  GALLERY_BACKEND=file DATABASE_URL=postgres://... face-gallery gallery migrate --to postgres`,
	Args: cobra.NoArgs,
	RunE: runGalleryMigrate,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryShowCmd)
	galleryCmd.AddCommand(galleryRemoveCmd)
	galleryCmd.AddCommand(galleryMigrateCmd)

	galleryListCmd.Flags().Bool("json", false, "Output as JSON")
	galleryShowCmd.Flags().Bool("json", false, "Output as JSON")
	galleryMigrateCmd.Flags().String("to", "", "Target backend ("+strings.Join(database.Backends(), ", ")+")")
}

// IdentitySummary describes one enrolled identity.
type IdentitySummary struct {
	Identity        string `json:"identity"`
	Embeddings      int    `json:"embeddings"`
	Representations int    `json:"representations"`
	Dim             int    `json:"dim"`
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

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

	g := rec.Gallery()
	snap := g.Snapshot()
	summaries := make([]IdentitySummary, 0, len(rec.Identities()))
	for _, id := range rec.Identities() {
		embs := g.Embeddings(id)
		s := IdentitySummary{
			Identity:        id,
			Embeddings:      len(embs),
			Representations: len(snap.Representations(id)),
		}
		if len(embs) > 0 {
			s.Dim = len(embs[0])
		}
		summaries = append(summaries, s)
	}

	if jsonOutput {
		return outputJSON(summaries)
	}

	if len(summaries) == 0 {
		fmt.Println("Gallery is empty")
		return nil
	}
	fmt.Printf("%-30s %10s %15s %6s\n", "IDENTITY", "EMBEDDINGS", "REPRESENTATIONS", "DIM")
	for _, s := range summaries {
		fmt.Printf("%-30s %10d %15d %6d\n", s.Identity, s.Embeddings, s.Representations, s.Dim)
	}
	stats := rec.Stats()
	fmt.Printf("\n%d identities, %d embeddings, %d representations\n",
		stats.Identities, stats.Embeddings, stats.Representations)
	return nil
}

func runGalleryShow(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

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

	matches := facematch.MatchIdentity(rec.Identities(), args[0])
	switch len(matches) {
	case 0:
		return fmt.Errorf("no identity matches %q", args[0])
	case 1:
	default:
		return fmt.Errorf("%q is ambiguous: %s", args[0], strings.Join(matches, ", "))
	}

	id := matches[0]
	g := rec.Gallery()
	embs := g.Embeddings(id)
	reps := g.Snapshot().Representations(id)
	s := IdentitySummary{Identity: id, Embeddings: len(embs), Representations: len(reps)}
	if len(embs) > 0 {
		s.Dim = len(embs[0])
	}

	if jsonOutput {
		return outputJSON(s)
	}

	fmt.Printf("Identity:        %s\n", s.Identity)
	fmt.Printf("Embeddings:      %d\n", s.Embeddings)
	fmt.Printf("Representations: %d\n", s.Representations)
	fmt.Printf("Dimension:       %d\n", s.Dim)
	return nil
}

func runGalleryRemove(cmd *cobra.Command, args []string) error {
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

	if err := rec.Remove(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", args[0])
	return nil
}

func runGalleryMigrate(cmd *cobra.Command, args []string) error {
	to := strings.ToLower(mustGetString(cmd, "to"))
	if to == "" {
		return errors.New("--to is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if to == cfg.Gallery.Backend {
		return fmt.Errorf("source and target backend are both %s", to)
	}

	target := *cfg
	target.Gallery.Backend = to
	if err := target.Validate(); err != nil {
		return fmt.Errorf("invalid target configuration: %w", err)
	}

	ctx := cmd.Context()
	src, err := database.Open(ctx, cfg, logger.Named("source"))
	if err != nil {
		return fmt.Errorf("open source backend: %w", err)
	}
	defer src.Close()

	dst, err := database.Open(ctx, &target, logger.Named("target"))
	if err != nil {
		return fmt.Errorf("open target backend: %w", err)
	}
	defer dst.Close()

	raw, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load from %s: %w", cfg.Gallery.Backend, err)
	}
	if err := dst.Save(ctx, raw); err != nil {
		return fmt.Errorf("save to %s: %w", to, err)
	}

	embeddings := 0
	for _, embs := range raw {
		embeddings += len(embs)
	}
	fmt.Printf("Migrated %d identities (%d embeddings) from %s to %s\n",
		len(raw), embeddings, cfg.Gallery.Backend, to)
	return nil
}
