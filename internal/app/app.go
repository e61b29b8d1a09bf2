package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/veritext/veritext-backend/internal/data/db"
	"github.com/veritext/veritext-backend/internal/data/repos"
	"github.com/veritext/veritext-backend/internal/domain"
	"github.com/veritext/veritext-backend/internal/handlers"
	"github.com/veritext/veritext-backend/internal/index"
	"github.com/veritext/veritext-backend/internal/modules/plagiarism"
	"github.com/veritext/veritext-backend/internal/platform/embedder"
	"github.com/veritext/veritext-backend/internal/platform/keywords"
	"github.com/veritext/veritext-backend/internal/platform/logger"
	"github.com/veritext/veritext-backend/internal/server"
	"github.com/veritext/veritext-backend/internal/services"
)

// App owns every long-lived component and the order they come up in:
// config, logger, database, vector indexes, clients, services, router.
type App struct {
	Log     *logger.Logger
	Cfg     Config
	DB      *gorm.DB
	Indexes map[domain.Namespace]*index.Manager
	Router  http.Handler

	srv *http.Server
}

func New() (*App, error) {
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	dbService, err := db.NewService(log, cfg.DB)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	theDB := dbService.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	indexes, err := wireIndexes(log, cfg.Index)
	if err != nil {
		log.Sync()
		return nil, err
	}

	embedClient, err := embedder.NewClient(log, cfg.Embedder)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init embedder client: %w", err)
	}
	var kwClient keywords.Extractor
	if cfg.Keywords.URL != "" {
		kwClient, err = keywords.NewClient(log, cfg.Keywords)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init keywords client: %w", err)
		}
	}

	cache := wireCache(log, cfg.Redis)
	scorer := plagiarism.NewScorer(cfg.Score)
	searcher := plagiarism.NewDuckDuckGoClient(log, cfg.Search)
	gatherer := plagiarism.NewGatherer(log, cfg.Gather, searcher, kwClient, embedClient, scorer, cache)

	materialRepo := repos.NewMaterialRepo(theDB, log)
	chunkRepo := repos.NewChunkRepo(theDB, log)

	fetcher := services.NewSourceFetcher(log, cfg.SourceFetch.Timeout, cfg.SourceFetch.Retries)
	materialService := services.NewMaterialService(log, theDB, materialRepo, chunkRepo, indexes)
	ingestionService := services.NewIngestionService(
		log, theDB, materialRepo, chunkRepo, indexes, fetcher, embedClient, cfg.Ingestion)
	plagiarismService := services.NewPlagiarismService(
		log, cfg.Plagiarism, materialRepo, chunkRepo, indexes, gatherer, scorer)

	router := server.NewRouter(server.RouterConfig{
		Mode:              cfg.Mode,
		AllowOrigins:      cfg.AllowOrigins,
		MaterialHandler:   handlers.NewMaterialHandler(log, materialService, ingestionService),
		SubmissionHandler: handlers.NewSubmissionHandler(log, ingestionService, plagiarismService),
	})

	return &App{
		Log:     log,
		Cfg:     cfg,
		DB:      theDB,
		Indexes: indexes,
		Router:  router,
	}, nil
}

func wireIndexes(log *logger.Logger, cfg IndexConfig) (map[domain.Namespace]*index.Manager, error) {
	seed := time.Now().UnixNano()
	course, err := index.NewManager(log, string(domain.NamespaceCourse), cfg.CoursePath(), cfg.Dim,
		index.NewRandomAllocator(seed))
	if err != nil {
		return nil, fmt.Errorf("init course index: %w", err)
	}
	submission, err := index.NewManager(log, string(domain.NamespaceSubmission), cfg.SubmissionPath(), cfg.Dim,
		index.NewRandomAllocator(seed+1))
	if err != nil {
		return nil, fmt.Errorf("init submission index: %w", err)
	}
	return map[domain.Namespace]*index.Manager{
		domain.NamespaceCourse:     course,
		domain.NamespaceSubmission: submission,
	}, nil
}

func wireCache(log *logger.Logger, cfg RedisConfig) plagiarism.Store {
	if cfg.Addr == "" {
		return plagiarism.NewMemoryStore()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	log.Info("Using redis cache", "addr", cfg.Addr)
	return plagiarism.NewRedisStore(log, rdb, cfg.TTL)
}

// Run serves until SIGINT/SIGTERM, then drains in-flight requests.
func (a *App) Run() error {
	a.srv = &http.Server{
		Addr:    ":" + a.Cfg.Port,
		Handler: a.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("Server listening", "port", a.Cfg.Port)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		a.Log.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	for ns, idx := range a.Indexes {
		if err := idx.Persist(); err != nil {
			a.Log.Error("Index persist on close failed", "namespace", ns, "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
