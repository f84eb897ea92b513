package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/malibio/nodespace-core-logic/internal/config"
	"github.com/malibio/nodespace-core-logic/internal/db"
	dbMemory "github.com/malibio/nodespace-core-logic/internal/db/memory"
	dbRedis "github.com/malibio/nodespace-core-logic/internal/db/redis"
	"github.com/malibio/nodespace-core-logic/internal/domain"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/intent"
	"github.com/malibio/nodespace-core-logic/internal/embedding"
	"github.com/malibio/nodespace-core-logic/internal/engine"
	logpkg "github.com/malibio/nodespace-core-logic/internal/logger"
	"github.com/malibio/nodespace-core-logic/internal/metrics"
	"github.com/malibio/nodespace-core-logic/internal/rag"
	"github.com/malibio/nodespace-core-logic/internal/retrieval"
	chiTransport "github.com/malibio/nodespace-core-logic/internal/transport/chi"
	openaiProvider "github.com/malibio/nodespace-core-logic/internal/transport/openai"
	"github.com/malibio/nodespace-core-logic/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting nodespace API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	// Create the store based on driver
	var store db.Store
	switch cfg.Database.Driver {
	case "memory":
		store = dbMemory.NewStore()
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:     cfg.Database.Addrs,
			Username:  cfg.Database.Username,
			Password:  cfg.Database.Password,
			DB:        cfg.Database.DB,
			KeyPrefix: cfg.Database.KeyPrefix,
			VectorDim: cfg.Provider.Dimensions,
		})
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Store not ready", zap.Error(err))
	}
	logger.Info("Connected to store")

	// Register embedding metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()

	// Provider clients — one config, two roles
	provCfg := &openaiProvider.Config{
		APIKey:     cfg.Provider.APIKey,
		BaseURL:    cfg.Provider.BaseURL,
		Model:      cfg.Provider.EmbedModel,
		ChatModel:  cfg.Provider.ChatModel,
		Dimensions: cfg.Provider.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	}
	docEmbedder := buildEmbedder(provCfg, cfg.Provider.DocumentInstruction)
	queryEmbedder := buildEmbedder(provCfg, cfg.Provider.QueryInstruction)
	generator := openaiProvider.NewGenerator(provCfg)
	logger.Info("Provider clients created",
		zap.String("embed_model", cfg.Provider.EmbedModel),
		zap.String("chat_model", cfg.Provider.ChatModel),
		zap.Int("dimensions", cfg.Provider.Dimensions),
	)

	// Engine — hierarchy, cache, retrieval, and answering over one store
	eng := engine.New(store, docEmbedder, queryEmbedder, generator, logger, engineConfig(cfg.Engine))
	defer eng.Close() // drains the cache pipeline and closes the store

	if err := eng.Load(ctx); err != nil {
		logger.Fatal("Failed to restore hierarchy from store", zap.Error(err))
	}
	logger.Info("Hierarchy restored")

	server := chiTransport.NewServer(eng, store, logger)
	r := server.Routes(cfg.Auth.APIKeys)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
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

	logger.Info("Server stopped gracefully")
}

// buildEmbedder wraps the provider client with an instruction prefix when one
// is configured. Instruction-tuned models use different prefixes for
// documents and queries.
func buildEmbedder(cfg *openaiProvider.Config, instruction string) domain.Embedder {
	var embedder domain.Embedder = openaiProvider.NewEmbedder(cfg)
	if instruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

// engineConfig maps the YAML knobs onto the engine's native config types.
func engineConfig(c config.EngineConfig) engine.Config {
	weights := make(map[level.Level]float64, len(c.Retrieval.Weights))
	for name, w := range c.Retrieval.Weights {
		weights[level.Level(name)] = w
	}

	return engine.Config{
		Cache: embedding.Config{
			Workers:      c.Cache.Workers,
			RatePerSec:   c.Cache.RatePerSec,
			RateBurst:    c.Cache.RateBurst,
			MaxRetries:   c.Cache.MaxRetries,
			RetryBackoff: time.Duration(c.Cache.RetryBackoffMS) * time.Millisecond,
		},
		Retrieval: retrieval.Config{
			TopK:            c.Retrieval.TopK,
			MinScore:        c.Retrieval.MinScore,
			ConceptualFloor: c.Retrieval.ConceptualFloor,
			Weights:         weights,
			Classify: intent.Config{
				BroadMinWords:    c.Retrieval.BroadMinWords,
				SpecificMaxWords: c.Retrieval.SpecificMaxWords,
			},
		},
		RAG: rag.Config{
			TopN:           c.RAG.TopN,
			TokenBudget:    c.RAG.TokenBudget,
			Timeout:        time.Duration(c.RAG.TimeoutSec) * time.Second,
			ScoreWeight:    c.RAG.ScoreWeight,
			CountWeight:    c.RAG.CountWeight,
			LatencyPenalty: c.RAG.LatencyPenalty,
		},
		MaxSiblings: c.MaxSiblings,
		MaxChildren: c.MaxChildren,
	}
}
