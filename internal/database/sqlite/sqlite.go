// Package sqlite stores the gallery in a local SQLite database using the
// CGO-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/database"
)

// Schema mirrors the PostgreSQL gallery_embeddings table with the vector
// stored as a little-endian float32 blob.
const Schema = `
CREATE TABLE IF NOT EXISTS gallery_embeddings (
	id          TEXT PRIMARY KEY,
	identity    TEXT NOT NULL,
	position    INTEGER NOT NULL,
	embedding   BLOB NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (identity, position)
);
CREATE INDEX IF NOT EXISTS gallery_embeddings_identity_idx ON gallery_embeddings (identity);
`

func init() {
	database.RegisterBackend(config.BackendSQLite, func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (database.GalleryStore, error) {
		return Open(ctx, cfg.Database.SQLitePath, logger)
	})
}

// Store is a SQLite-backed gallery store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and ensures the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer; a single connection also keeps ":memory:"
	// databases alive for the store's lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Load reads every embedding ordered by identity and position.
func (s *Store) Load(ctx context.Context) (map[string][][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `
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
			s.logger.Warn("skipping corrupt embedding row",
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
	return database.NormalizeDocument(doc, s.logger), nil
}

// Save replaces all rows in one transaction.
func (s *Store) Save(ctx context.Context, raw map[string][][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
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

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
