package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/chunker"
	"github.com/ragline/ragline/internal/config"
	dbRedis "github.com/ragline/ragline/internal/db/redis"
	"github.com/ragline/ragline/internal/extractor"
	logpkg "github.com/ragline/ragline/internal/logger"
	"github.com/ragline/ragline/internal/metrics"
	cacherepo "github.com/ragline/ragline/internal/repository/cache"
	conversationrepo "github.com/ragline/ragline/internal/repository/conversation"
	documentrepo "github.com/ragline/ragline/internal/repository/document"
	"github.com/ragline/ragline/internal/repository/embcache"
	lockrepo "github.com/ragline/ragline/internal/repository/lock"
	"github.com/ragline/ragline/internal/repository/sqlite"
	usagerepo "github.com/ragline/ragline/internal/repository/usage"
	"github.com/ragline/ragline/internal/repository/vecindex"
	"github.com/ragline/ragline/internal/storage"
	chiTransport "github.com/ragline/ragline/internal/transport/chi"
	openaiTransport "github.com/ragline/ragline/internal/transport/openai"
	analysisuc "github.com/ragline/ragline/internal/usecase/analysis"
	documentuc "github.com/ragline/ragline/internal/usecase/document"
	healthuc "github.com/ragline/ragline/internal/usecase/health"
	"github.com/ragline/ragline/internal/usecase/llmrouter"
	processuc "github.com/ragline/ragline/internal/usecase/process"
	queryuc "github.com/ragline/ragline/internal/usecase/query"
	usageuc "github.com/ragline/ragline/internal/usecase/usage"
	"github.com/ragline/ragline/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragline API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_path", cfg.Database.Path),
		zap.Strings("redis_addrs", cfg.Redis.Addrs),
	)

	ctx := context.Background()

	// SQLite pool — capped, injected into repositories, never global.
	sqlDB, err := sqlite.Open(ctx, sqlite.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetimeSec) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Database.ConnMaxIdleSec) * time.Second,
	})
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer func() { _ = sqlDB.Close() }()

	// Redis — vector index, caches and locks.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create redis store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Redis not ready", zap.Error(err))
	}
	logger.Info("Connected to redis")

	metrics.RegisterHTTPMetrics()
	metrics.RegisterPipelineMetrics()

	blobs, err := storage.NewFSStore(cfg.Storage.Dir, cfg.Storage.BaseURL, cfg.Storage.URLSecret)
	if err != nil {
		logger.Fatal("Failed to create blob store", zap.Error(err))
	}

	// Result cache with per-category TTLs.
	resultCache := cacherepo.New(store, cfg.Pipeline.KeyPrefix, cacherepo.TTLs{
		Embedding: time.Duration(cfg.Cache.EmbeddingTTLSec) * time.Second,
		Query:     time.Duration(cfg.Cache.QueryTTLSec) * time.Second,
		Analysis:  time.Duration(cfg.Cache.AnalysisTTLSec) * time.Second,
	}, logger)

	// Embedder chain: OpenAI -> cached.
	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
	})
	embedder := embcache.New(baseEmbedder, resultCache, metrics.EmbeddingCacheTotal, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Vector index over Redis FT.SEARCH.
	index := vecindex.New(store, vecindex.Config{
		IndexName:       cfg.Pipeline.IndexName,
		KeyPrefix:       cfg.Pipeline.KeyPrefix,
		VectorDim:       cfg.Embedding.Dimensions,
		HNSWM:           cfg.Pipeline.HNSWM,
		HNSWEFConstruct: cfg.Pipeline.HNSWEFConstr,
	})
	if err := index.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}

	locks := lockrepo.New(store, cfg.Pipeline.KeyPrefix, time.Duration(cfg.Pipeline.LockTTLSec)*time.Second)

	// LLM providers in config order; the order is the fallback priority.
	providers := make([]*llmrouter.Provider, 0, len(cfg.LLM.Providers))
	for _, pc := range cfg.LLM.Providers {
		providers = append(providers, &llmrouter.Provider{
			LLMProvider: openaiTransport.NewLLM(&openaiTransport.LLMConfig{
				Name:    pc.Name,
				APIKey:  pc.APIKey,
				BaseURL: pc.BaseURL,
				Model:   pc.Model,
				Timeout: time.Duration(pc.TimeoutSec) * time.Second,
			}),
			CostPerMillionCents: pc.CostPerMillionCents,
			TypicalLatency:      time.Duration(pc.TypicalLatencyMillis) * time.Millisecond,
		})
	}
	router := llmrouter.New(
		providers,
		cfg.LLM.Breaker.FailureThreshold,
		time.Duration(cfg.LLM.Breaker.CooldownSec)*time.Second,
		logger,
	)
	logger.Info("LLM router created", zap.Int("providers", len(providers)))

	// Repositories.
	docRepo := documentrepo.New(sqlDB)
	convRepo := conversationrepo.New(sqlDB)
	usageRepo := usagerepo.New(sqlDB)

	// Use case services.
	usageSvc := usageuc.New(usageRepo, logger)

	extractors := extractor.NewRegistry(
		extractor.NewPDF(),
		extractor.NewDOCX(),
		extractor.NewXLSX(),
	)
	split := chunker.New(
		chunker.WithChunkSize(cfg.Pipeline.ChunkSize),
		chunker.WithOverlap(cfg.Pipeline.ChunkOverlap),
	)

	processSvc := processuc.NewService(
		docRepo, blobs, extractors, split, embedder, index, locks, usageSvc,
		processuc.Config{MaxRetries: cfg.Pipeline.MaxRetries},
		logger,
	)
	queue := processuc.NewQueue(processSvc, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, logger)
	queue.Start(ctx)

	docSvc := documentuc.NewService(docRepo, blobs, queue, usageSvc, logger)
	querySvc := queryuc.NewService(
		embedder, index, router, convRepo, resultCache, usageSvc,
		queryuc.NewTokenCounter(),
		queryuc.Config{
			TopK:                cfg.Query.TopK,
			MinScore:            cfg.Query.MinScore,
			ContextBudgetTokens: cfg.Query.ContextBudgetTokens,
		},
		logger,
	)
	analysisSvc := analysisuc.NewService(docRepo, router, resultCache, logger)
	healthSvc := healthuc.New(sqlPinger{sqlDB}, store, baseEmbedder)

	server := chiTransport.NewServer(
		docSvc, processSvc, queue, querySvc, analysisSvc, usageSvc, healthSvc, blobs,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Let in-flight pipeline runs finish before closing the stores.
	queue.Close()

	logger.Info("Server stopped gracefully")
}

// sqlPinger adapts *sql.DB to the health service's Ping contract.
type sqlPinger struct {
	db *sql.DB
}

func (p sqlPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
