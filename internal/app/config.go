package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veritext/veritext-backend/internal/data/db"
	"github.com/veritext/veritext-backend/internal/modules/plagiarism"
	"github.com/veritext/veritext-backend/internal/platform/embedder"
	"github.com/veritext/veritext-backend/internal/platform/envutil"
	"github.com/veritext/veritext-backend/internal/platform/keywords"
	"github.com/veritext/veritext-backend/internal/services"
)

type IndexConfig struct {
	// Dir holds one index file per namespace.
	Dir string `yaml:"dir"`
	Dim int    `yaml:"dim"`
}

func (c IndexConfig) CoursePath() string     { return filepath.Join(c.Dir, "course.idx") }
func (c IndexConfig) SubmissionPath() string { return filepath.Join(c.Dir, "submission.idx") }

type RedisConfig struct {
	// Addr empty means the in-process cache is used instead.
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type SourceFetchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

type Config struct {
	Mode         string   `yaml:"mode"`
	Port         string   `yaml:"port"`
	AllowOrigins []string `yaml:"allowOrigins"`

	DB          db.Config                 `yaml:"db"`
	Index       IndexConfig               `yaml:"index"`
	Embedder    embedder.Config           `yaml:"embedder"`
	Keywords    keywords.Config           `yaml:"keywords"`
	Search      plagiarism.SearchConfig   `yaml:"search"`
	Gather      plagiarism.GatherConfig   `yaml:"gather"`
	Score       plagiarism.ScoreConfig    `yaml:"score"`
	Ingestion   services.IngestionConfig  `yaml:"ingestion"`
	Plagiarism  services.PlagiarismConfig `yaml:"plagiarism"`
	Redis       RedisConfig               `yaml:"redis"`
	SourceFetch SourceFetchConfig         `yaml:"sourceFetch"`
}

func DefaultConfig() Config {
	return Config{
		Mode: "development",
		Port: "8080",
		DB:   db.Config{Driver: "sqlite", SQLitePath: "veritext.db"},
		Index: IndexConfig{
			Dir: "data/index",
			Dim: 384,
		},
		Embedder: embedder.Config{
			URL:     "http://localhost:8000/embed",
			Model:   "intfloat/multilingual-e5-small",
			Dim:     384,
			Timeout: 30 * time.Second,
		},
		Gather:      plagiarism.DefaultGatherConfig(),
		Score:       plagiarism.DefaultScoreConfig(),
		Ingestion:   services.DefaultIngestionConfig(),
		Plagiarism:  services.DefaultPlagiarismConfig(),
		SourceFetch: SourceFetchConfig{Timeout: 30 * time.Second, Retries: 2},
	}
}

// LoadConfig layers an optional yaml file over the defaults and environment
// variables over both. CONFIG_PATH picks the file; a missing default file is
// not an error.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	path := envutil.Str("CONFIG_PATH", "config.yaml")
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && os.Getenv("CONFIG_PATH") == "":
		// No file, defaults carry.
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.Mode = envutil.Str("LOG_MODE", cfg.Mode)
	cfg.Port = envutil.Str("PORT", cfg.Port)
	if origins := envutil.Str("ALLOW_ORIGINS", ""); origins != "" {
		cfg.AllowOrigins = splitCSV(origins)
	}

	cfg.DB.Driver = envutil.Str("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.SQLitePath = envutil.Str("SQLITE_PATH", cfg.DB.SQLitePath)
	cfg.DB.DSN = envutil.Str("DATABASE_DSN", cfg.DB.DSN)

	cfg.Index.Dir = envutil.Str("INDEX_DIR", cfg.Index.Dir)
	cfg.Index.Dim = envutil.Int("EMBED_DIM", cfg.Index.Dim)

	cfg.Embedder.URL = envutil.Str("EMBEDDER_URL", cfg.Embedder.URL)
	cfg.Embedder.Model = envutil.Str("EMBEDDER_MODEL", cfg.Embedder.Model)
	cfg.Embedder.Dim = cfg.Index.Dim
	cfg.Embedder.Timeout = envutil.Duration("EMBEDDER_TIMEOUT", cfg.Embedder.Timeout)

	cfg.Keywords.URL = envutil.Str("KEYWORDS_URL", cfg.Keywords.URL)
	cfg.Search.BaseURL = envutil.Str("SEARCH_BASE_URL", cfg.Search.BaseURL)

	cfg.Redis.Addr = envutil.Str("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.Str("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)

	cfg.Gather.NumResults = envutil.Int("SEARCH_NUM_RESULTS", cfg.Gather.NumResults)
	cfg.Gather.Workers = envutil.Int("GATHER_WORKERS", cfg.Gather.Workers)
	cfg.Ingestion.ChunkSize = envutil.Int("CHUNK_SIZE", cfg.Ingestion.ChunkSize)
	cfg.Ingestion.ChunkOverlap = envutil.Int("CHUNK_OVERLAP", cfg.Ingestion.ChunkOverlap)
	cfg.Plagiarism.TopK = envutil.Int("SEARCH_TOP_K", cfg.Plagiarism.TopK)

	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
