package mariadb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/database"
)

// GalleryRepository provides MariaDB-backed gallery storage.
type GalleryRepository struct {
	pool   *Pool
	logger *zap.Logger
}

// NewGalleryRepository creates a new MariaDB gallery repository
func NewGalleryRepository(pool *Pool, logger *zap.Logger) *GalleryRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GalleryRepository{pool: pool, logger: logger}
}

// Load reads every embedding ordered by identity and position.
func (r *GalleryRepository) Load(ctx context.Context) (map[string][][]float32, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
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
		var blob []byte
		if err := rows.Scan(&identity, &blob); err != nil {
			return nil, fmt.Errorf("scan gallery row: %w", err)
		}
		vec, err := database.DecodeVector(blob)
		if err != nil {
			r.logger.Warn("skipping corrupt embedding row",
				zap.String("identity", identity),
				zap.Error(err))
			continue
		}
		grouped[identity] = append(grouped[identity], vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery rows: %w", err)
	}

	doc := make(map[string]any, len(grouped))
	for id, embs := range grouped {
		doc[id] = embs
	}
	return database.NormalizeDocument(doc, r.logger), nil
}

// Save replaces all rows in one transaction.
func (r *GalleryRepository) Save(ctx context.Context, raw map[string][][]float32) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM gallery_embeddings"); err != nil {
		return fmt.Errorf("clear gallery: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO gallery_embeddings (id, identity, position, embedding)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for identity, embs := range raw {
		for pos, emb := range embs {
			if _, err := stmt.ExecContext(ctx, uuid.NewString(), identity, pos, database.EncodeVector(emb)); err != nil {
				return fmt.Errorf("insert embedding %d for %q: %w", pos, identity, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit gallery: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (r *GalleryRepository) Close() error {
	return r.pool.Close()
}
