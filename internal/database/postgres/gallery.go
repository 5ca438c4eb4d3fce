package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/database"
)

// GalleryRepository provides PostgreSQL-backed gallery storage.
// One row holds one embedding; position keeps the per-identity order.
type GalleryRepository struct {
	pool *Pool
}

// NewGalleryRepository creates a new PostgreSQL gallery repository
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

// Load reads every embedding ordered by identity and position.
func (r *GalleryRepository) Load(ctx context.Context) (map[string][][]float32, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity, embedding
		FROM gallery_embeddings
		ORDER BY identity, position
	`)
	if err != nil {
		return nil, fmt.Errorf("query gallery: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string][][]float32)
	for rows.Next() {
		var identity string
		var vec pgvector.Vector
		if err := rows.Scan(&identity, &vec); err != nil {
			return nil, fmt.Errorf("scan gallery row: %w", err)
		}
		grouped[identity] = append(grouped[identity], vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery rows: %w", err)
	}

	// Rows of one identity may disagree on dimension if written by hand.
	doc := make(map[string]any, len(grouped))
	for id, embs := range grouped {
		doc[id] = embs
	}
	return database.NormalizeDocument(doc, r.pool.logger), nil
}

// Save replaces all rows in one transaction.
func (r *GalleryRepository) Save(ctx context.Context, raw map[string][][]float32) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM gallery_embeddings"); err != nil {
		return fmt.Errorf("clear gallery: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO gallery_embeddings (id, identity, position, embedding)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	rowsWritten := 0
	for identity, embs := range raw {
		for pos, emb := range embs {
			if _, err := stmt.ExecContext(ctx, uuid.New(), identity, pos, pgvector.NewVector(emb)); err != nil {
				return fmt.Errorf("insert embedding %d for %q: %w", pos, identity, err)
			}
			rowsWritten++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit gallery: %w", err)
	}

	r.pool.logger.Debug("gallery saved",
		zap.Int("identities", len(raw)),
		zap.Int("rows", rowsWritten))
	return nil
}

// Count returns the number of stored embeddings.
func (r *GalleryRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM gallery_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count gallery embeddings: %w", err)
	}
	return count, nil
}

// Close closes the underlying pool.
func (r *GalleryRepository) Close() error {
	return r.pool.Close()
}
