// Package mariadb stores the gallery in MariaDB or MySQL, keeping the face
// gallery next to an existing identity database.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS gallery_embeddings (
	id          CHAR(36) NOT NULL PRIMARY KEY,
	identity    VARCHAR(255) NOT NULL,
	position    INT NOT NULL,
	embedding   MEDIUMBLOB NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY gallery_embeddings_identity_position (identity, position)
) DEFAULT CHARSET=utf8mb4`

func init() {
	database.RegisterBackend(config.BackendMariaDB, func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (database.GalleryStore, error) {
		return Open(ctx, cfg.Database.MariaDBDSN, logger)
	})
}

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Open connects and ensures the gallery table exists.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*GalleryRepository, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.db.ExecContext(ctx, schema); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("create gallery table: %w", err)
	}
	return NewGalleryRepository(pool, logger), nil
}
