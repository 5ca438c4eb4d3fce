package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"MATCH_THRESHOLD", "MAX_EMBEDDINGS_PER_PERSON", "MAX_CENTROIDS", "DUPLICATE_THRESHOLD",
		"FRAME_SKIP", "MAX_FRAMES", "EARLY_EXIT_MIN_SAMPLES", "EARLY_EXIT_MEAN_SCORE",
		"GALLERY_BACKEND", "GALLERY_PATH", "EMBEDDING_URL",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Matching.Threshold != 0.4 {
		t.Errorf("expected default threshold 0.4, got %v", cfg.Matching.Threshold)
	}
	if cfg.Matching.MaxEmbeddingsPerPerson != 10 {
		t.Errorf("expected default max embeddings 10, got %d", cfg.Matching.MaxEmbeddingsPerPerson)
	}
	if cfg.Matching.MaxCentroids != 3 {
		t.Errorf("expected default max centroids 3, got %d", cfg.Matching.MaxCentroids)
	}
	if cfg.Matching.DuplicateThreshold != 0.85 {
		t.Errorf("expected default duplicate threshold 0.85, got %v", cfg.Matching.DuplicateThreshold)
	}
	if cfg.Matching.KMeansSeed != 42 {
		t.Errorf("expected default kmeans seed 42, got %d", cfg.Matching.KMeansSeed)
	}
	if cfg.Video.FrameSkip != 5 {
		t.Errorf("expected default frame skip 5, got %d", cfg.Video.FrameSkip)
	}
	if cfg.Video.MaxFrames != 300 {
		t.Errorf("expected default max frames 300, got %d", cfg.Video.MaxFrames)
	}
	if cfg.Video.EarlyExitMinSamples != 5 {
		t.Errorf("expected default early exit samples 5, got %d", cfg.Video.EarlyExitMinSamples)
	}
	if cfg.Video.EarlyExitMeanScore != 0.6 {
		t.Errorf("expected default early exit score 0.6, got %v", cfg.Video.EarlyExitMeanScore)
	}
	if cfg.Gallery.Backend != BackendFile {
		t.Errorf("expected default backend %q, got %q", BackendFile, cfg.Gallery.Backend)
	}
	if cfg.Gallery.Path != "faces_db.json" {
		t.Errorf("expected default gallery path 'faces_db.json', got '%s'", cfg.Gallery.Path)
	}
	if cfg.Embedding.URL != "http://localhost:8000" {
		t.Errorf("expected default embedding URL, got '%s'", cfg.Embedding.URL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.55")
	t.Setenv("MAX_CENTROIDS", "5")
	t.Setenv("FRAME_SKIP", "2")
	t.Setenv("GALLERY_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/g.db")

	cfg := Load()

	if cfg.Matching.Threshold != 0.55 {
		t.Errorf("expected threshold 0.55, got %v", cfg.Matching.Threshold)
	}
	if cfg.Matching.MaxCentroids != 5 {
		t.Errorf("expected max centroids 5, got %d", cfg.Matching.MaxCentroids)
	}
	if cfg.Video.FrameSkip != 2 {
		t.Errorf("expected frame skip 2, got %d", cfg.Video.FrameSkip)
	}
	if cfg.Gallery.Backend != BackendSQLite {
		t.Errorf("expected backend to be lowercased to %q, got %q", BackendSQLite, cfg.Gallery.Backend)
	}
	if cfg.Database.SQLitePath != "/tmp/g.db" {
		t.Errorf("expected sqlite path '/tmp/g.db', got '%s'", cfg.Database.SQLitePath)
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"MAX_EMBEDDINGS_PER_PERSON", "invalid"},
		{"MAX_EMBEDDINGS_PER_PERSON", "-3"},
		{"MAX_EMBEDDINGS_PER_PERSON", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := Load()
			if cfg.Matching.MaxEmbeddingsPerPerson != 10 {
				t.Errorf("expected fallback to 10 for %q, got %d", tt.value, cfg.Matching.MaxEmbeddingsPerPerson)
			}
		})
	}
}

func TestLoad_InvalidFloatFallsBack(t *testing.T) {
	t.Setenv("EARLY_EXIT_MEAN_SCORE", "high")

	cfg := Load()

	if cfg.Video.EarlyExitMeanScore != 0.6 {
		t.Errorf("expected fallback to 0.6, got %v", cfg.Video.EarlyExitMeanScore)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"threshold too high", func(c *Config) { c.Matching.Threshold = 1.5 }, true},
		{"duplicate threshold too low", func(c *Config) { c.Matching.DuplicateThreshold = -2 }, true},
		{"unknown backend", func(c *Config) { c.Gallery.Backend = "redis" }, true},
		{"postgres without url", func(c *Config) {
			c.Gallery.Backend = BackendPostgres
			c.Database.URL = ""
		}, true},
		{"postgres with url", func(c *Config) {
			c.Gallery.Backend = BackendPostgres
			c.Database.URL = "postgres://localhost/db"
		}, false},
		{"file without path", func(c *Config) { c.Gallery.Path = "" }, true},
		{"mariadb without dsn", func(c *Config) { c.Gallery.Backend = BackendMariaDB }, true},
		{"mariadb with dsn", func(c *Config) {
			c.Gallery.Backend = BackendMariaDB
			c.Database.MariaDBDSN = "u:p@tcp(localhost:3306)/faces"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Gallery:  GalleryConfig{Backend: BackendFile, Path: "faces_db.json"},
				Database: DatabaseConfig{SQLitePath: "faces.db"},
				Video:    VideoConfig{EarlyExitMeanScore: 0.6},
				Matching: MatchingConfig{Threshold: 0.4, DuplicateThreshold: 0.85},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
