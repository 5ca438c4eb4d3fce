package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Supported gallery backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMariaDB  = "mariadb"
)

type Config struct {
	Embedding EmbeddingConfig
	Gallery   GalleryConfig
	Database  DatabaseConfig
	Video     VideoConfig
	Matching  MatchingConfig
}

type EmbeddingConfig struct {
	URL          string // defaults to http://localhost:8000
	TimeoutSec   int    // per-request timeout (default 30)
	MaxImageSize int    // longest side in px before upload, 0 = never resize (default 1920)
}

type GalleryConfig struct {
	Backend string // file, postgres, sqlite or mariadb (default file)
	Path    string // gallery file for the file backend (default faces_db.json)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	SQLitePath   string // SQLite database file (default faces.db)
	MariaDBDSN   string // go-sql-driver DSN, e.g. user:pass@tcp(host:3306)/faces
}

type VideoConfig struct {
	FFmpegPath          string  `yaml:"-"`
	FrameSkip           int     `yaml:"frame_skip"`
	MaxFrames           int     `yaml:"max_frames"`
	EarlyExitMinSamples int     `yaml:"early_exit_min_samples"`
	EarlyExitMeanScore  float64 `yaml:"early_exit_mean_score"`
}

type MatchingConfig struct {
	Threshold              float64 `yaml:"threshold"`
	MaxEmbeddingsPerPerson int     `yaml:"max_embeddings_per_person"`
	MaxCentroids           int     `yaml:"max_centroids"`
	DuplicateThreshold     float64 `yaml:"duplicate_threshold"`
	KMeansSeed             int     `yaml:"kmeans_seed"`
	KMeansRestarts         int     `yaml:"kmeans_restarts"`
	KMeansMaxIter          int     `yaml:"kmeans_max_iter"`
}

type defaultsFile struct {
	Matching MatchingConfig `yaml:"matching"`
	Video    VideoConfig    `yaml:"video"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float.
// Returns the default value if the env var is unset, empty, or not a number.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func loadDefaults() defaultsFile {
	var d defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d
}

func Load() *Config {
	d := loadDefaults()

	return &Config{
		Embedding: EmbeddingConfig{
			URL:          envString("EMBEDDING_URL", "http://localhost:8000"),
			TimeoutSec:   envInt("EMBEDDING_TIMEOUT_SEC", 30),
			MaxImageSize: envInt("EMBEDDING_MAX_IMAGE_SIZE", 1920),
		},
		Gallery: GalleryConfig{
			Backend: strings.ToLower(envString("GALLERY_BACKEND", BackendFile)),
			Path:    envString("GALLERY_PATH", "faces_db.json"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			SQLitePath:   envString("SQLITE_PATH", "faces.db"),
			MariaDBDSN:   os.Getenv("MARIADB_DSN"),
		},
		Video: VideoConfig{
			FFmpegPath:          envString("FFMPEG_PATH", "ffmpeg"),
			FrameSkip:           envInt("FRAME_SKIP", d.Video.FrameSkip),
			MaxFrames:           envInt("MAX_FRAMES", d.Video.MaxFrames),
			EarlyExitMinSamples: envInt("EARLY_EXIT_MIN_SAMPLES", d.Video.EarlyExitMinSamples),
			EarlyExitMeanScore:  envFloat("EARLY_EXIT_MEAN_SCORE", d.Video.EarlyExitMeanScore),
		},
		Matching: MatchingConfig{
			Threshold:              envFloat("MATCH_THRESHOLD", d.Matching.Threshold),
			MaxEmbeddingsPerPerson: envInt("MAX_EMBEDDINGS_PER_PERSON", d.Matching.MaxEmbeddingsPerPerson),
			MaxCentroids:           envInt("MAX_CENTROIDS", d.Matching.MaxCentroids),
			DuplicateThreshold:     envFloat("DUPLICATE_THRESHOLD", d.Matching.DuplicateThreshold),
			KMeansSeed:             envInt("KMEANS_SEED", d.Matching.KMeansSeed),
			KMeansRestarts:         d.Matching.KMeansRestarts,
			KMeansMaxIter:          d.Matching.KMeansMaxIter,
		},
	}
}

// Validate checks values that would make matching meaningless.
func (c *Config) Validate() error {
	var errs []error
	if c.Matching.Threshold < -1 || c.Matching.Threshold > 1 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD must be within [-1, 1], got %v", c.Matching.Threshold))
	}
	if c.Matching.DuplicateThreshold < -1 || c.Matching.DuplicateThreshold > 1 {
		errs = append(errs, fmt.Errorf("DUPLICATE_THRESHOLD must be within [-1, 1], got %v", c.Matching.DuplicateThreshold))
	}
	if c.Video.EarlyExitMeanScore < -1 || c.Video.EarlyExitMeanScore > 1 {
		errs = append(errs, fmt.Errorf("EARLY_EXIT_MEAN_SCORE must be within [-1, 1], got %v", c.Video.EarlyExitMeanScore))
	}
	switch c.Gallery.Backend {
	case BackendFile:
		if c.Gallery.Path == "" {
			errs = append(errs, errors.New("GALLERY_PATH is required for the file backend"))
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendMariaDB:
		if c.Database.MariaDBDSN == "" {
			errs = append(errs, errors.New("MARIADB_DSN is required for the mariadb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown GALLERY_BACKEND %q", c.Gallery.Backend))
	}
	return errors.Join(errs...)
}
