package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/veritext/veritext-backend/internal/platform/logger"
)

type Config struct {
	Driver     string `yaml:"driver"`     // "sqlite" (default) or "postgres"
	SQLitePath string `yaml:"sqlitePath"` // file path for the sqlite database
	DSN        string `yaml:"dsn"`        // full DSN for postgres
}

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewService(logg *logger.Logger, cfg Config) (*Service, error) {
	serviceLog := logg.With("service", "DBService")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var (
		gdb *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "veritext.db"
		}
		gdb, err = gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLog})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database %q: %w", path, err)
		}
		// Cascade from materials to chunks relies on this pragma under sqlite.
		if err := gdb.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("failed to enable sqlite foreign keys: %w", err)
		}
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres driver selected but dsn is empty")
		}
		gdb, err = gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: gormLog})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}

	serviceLog.Info("Database connected", "driver", cfg.Driver)
	return &Service{db: gdb, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }
