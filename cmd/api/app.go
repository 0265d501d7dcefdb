package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/facepass/engine/internal/api/handlers"
	"github.com/facepass/engine/internal/api/middleware"
	"github.com/facepass/engine/internal/config"
	"github.com/facepass/engine/internal/detector"
	"github.com/facepass/engine/internal/observability"
	"github.com/facepass/engine/internal/repository"
	"github.com/facepass/engine/internal/service"
	"github.com/facepass/engine/internal/storage"
	"github.com/facepass/engine/internal/workers"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg    *config.Config
	db     *pgxpool.Pool
	server *http.Server
	river  *river.Client[pgx.Tx]
}

// maxRequestBodyBytes bounds any request body: a 10 MiB image plus multipart
// framing.
const maxRequestBodyBytes = 12 << 20

// NewApp builds and wires all components. It does not start the HTTP server
// or River; call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	// Install RequestContextHandler so request_id appears in every log line.
	slog.SetDefault(slog.New(observability.NewRequestContextHandler(slog.Default().Handler())))

	if err := repository.Migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	riverMigrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return nil, fmt.Errorf("create river migrator: %w", err)
	}

	if _, err := riverMigrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("run river migrations: %w", err)
	}

	// Drop connections opened before the vector extension existed so new ones
	// register the pgvector types.
	db.Reset()

	detectorClient := detector.NewBoundedClient(
		detector.NewHTTPClient(cfg.DetectorURL, detector.WithTimeout(cfg.DetectorTimeout)),
		cfg.DetectorMaxConcurrent,
	)

	var fetcher storage.Fetcher

	if cfg.S3Bucket != "" {
		s3Client, err := storage.NewS3Client(ctx, storage.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}

		fetcher = storage.NewS3Fetcher(s3Client, cfg.S3Bucket)
		slog.Info("object storage enabled", "bucket", cfg.S3Bucket)
	} else {
		slog.Info("object storage disabled (S3_BUCKET not set), batch indexing limited to synchronous items")
	}

	embeddingsRepo := repository.NewFaceEmbeddingsRepository(db)

	indexingService := service.NewIndexingService(
		detectorClient,
		embeddingsRepo,
		fetcher,
		nil, // job inserter set below after River client creation
		cfg.EmbeddingDimension,
		cfg.DetectorTimeout,
		cfg.StoreTimeout,
		cfg.IndexMaxAttempts,
		slog.Default(),
	)

	searchService := service.NewSearchService(
		detectorClient,
		embeddingsRepo,
		cfg.EmbeddingDimension,
		cfg.DetectorTimeout,
		cfg.StoreTimeout,
		slog.Default(),
	)

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewPhotoIndexWorker(indexingService, cfg.DetectorTimeout+30*time.Second))

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			service.IndexingQueueName: {MaxWorkers: cfg.IndexQueueMaxWorkers},
		},
		Workers:     riverWorkers,
		MaxAttempts: cfg.IndexMaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}

	indexingService.SetJobInserter(riverClient)

	indexingHandler := handlers.NewIndexingHandler(indexingService, cfg.BatchSyncMax)
	searchHandler := handlers.NewSearchHandler(searchService, cfg.SimilarityThreshold)
	healthHandler := handlers.NewHealthHandler(db, detectorClient)

	server := newHTTPServer(cfg, healthHandler, indexingHandler, searchHandler)

	return &App{
		cfg:    cfg,
		db:     db,
		server: server,
		river:  riverClient,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes. Mutating routes under
// /v1/index require an API key; search and status are open so attendee
// clients can call them directly. Indexing and search carry separate rate
// budgets.
func newHTTPServer(
	cfg *config.Config,
	health *handlers.HealthHandler,
	indexing *handlers.IndexingHandler,
	search *handlers.SearchHandler,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", health.Check)

	indexLimiter := middleware.NewRateLimiter(cfg.IndexRatePerMinute)
	searchLimiter := middleware.NewRateLimiter(cfg.SearchRatePerMinute)

	indexMux := http.NewServeMux()
	indexMux.HandleFunc("POST /v1/index", indexing.Index)
	indexMux.HandleFunc("POST /v1/index/batch", indexing.IndexBatch)
	indexMux.HandleFunc("DELETE /v1/index/{session_id}", indexing.DeleteSession)

	searchMux := http.NewServeMux()
	searchMux.HandleFunc("POST /v1/search", search.Search)
	searchMux.HandleFunc("GET /v1/search/status/{session_id}", search.Status)

	// Auth runs before rate limiting so unauthenticated requests never consume
	// a budget, and index budgets are keyed by API key. Search has no key, so
	// its budget falls back to the client address.
	auth := middleware.Auth(cfg.APIKeys)
	mux := http.NewServeMux()
	mux.Handle("/v1/index", auth(indexLimiter.Middleware(indexMux)))
	mux.Handle("/v1/index/", auth(indexLimiter.Middleware(indexMux)))
	mux.Handle("/v1/search", searchLimiter.Middleware(searchMux))
	mux.Handle("/v1/search/", searchLimiter.Middleware(searchMux))
	mux.Handle("/", public)

	handler := middleware.Logging(mux)
	handler = middleware.MaxBody(maxRequestBodyBytes)(handler)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 60 * time.Second
		writeTimeout = 60 * time.Second
		idleTimeout  = 120 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled
// (e.g. signal) or a component fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// Shutdown stops the server and River in order. Call after Run returns.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
