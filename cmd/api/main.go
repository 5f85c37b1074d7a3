package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"actorset/internal/balancer"
	"actorset/internal/composite"
	"actorset/internal/http/handlers"
	httpapi "actorset/internal/http/httpapi"
	"actorset/internal/infra"
	"actorset/internal/manifest"
	"actorset/internal/plan"
	"actorset/internal/providers/replicate"
	"actorset/internal/providers/vision"
	"actorset/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	catalog := manifest.NewCatalog(cfg.ActorsFile)
	manifests, err := manifest.NewStore(cfg.ManifestsDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: manifest store init failed")
	}

	targets, err := plan.TargetsFromComposition(cfg.TargetTotal, cfg.TargetComposition, cfg.TolerancePoints, cfg.TotalSlack)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: invalid target composition")
	}

	builder := composite.NewBuilder(composite.Options{
		ThumbSize:   cfg.CompositeThumbSize,
		Columns:     cfg.CompositeColumns,
		JPEGQuality: cfg.CompositeQuality,
		Logger:      &logger,
	})

	// The evaluator and executor are optional: without their credentials the
	// server still serves the read-only surface.
	var evaluator balancer.Evaluator
	if cfg.RequireEvaluationCredentials() == nil {
		evaluator, err = vision.NewClient(vision.Options{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			BaseURL:     cfg.OpenAIBaseURL,
			Logger:      &logger,
			MaxAttempts: cfg.VisionMaxAttempts,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("api: vision client init failed")
		}
	} else {
		logger.Warn().Msg("api: OPENAI_API_KEY not set, evaluation endpoints disabled")
	}

	var store storage.ObjectStore
	if cfg.S3Bucket != "" {
		s3store, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("api: s3 store init failed")
		}
		store = s3store
	} else {
		fileStore, err := storage.NewFileStore(cfg.ImagesDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: file store init failed")
		}
		store = fileStore
	}

	executeEnabled := cfg.RequireExecutionCredentials() == nil
	var executor *balancer.Executor
	if executeEnabled {
		generator, err := replicate.NewClient(replicate.Options{
			APIToken: cfg.ReplicateAPIToken,
			BaseURL:  cfg.ReplicateBaseURL,
			Model:    cfg.ReplicateModel,
			Logger:   &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("api: replicate client init failed")
		}
		executor = balancer.NewExecutor(balancer.ExecutorOptions{
			Store:       store,
			Generator:   generator,
			ImagesDir:   cfg.ImagesDir,
			AspectRatio: cfg.AspectRatio,
			Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
			Logger:      &logger,
		})
	} else {
		logger.Warn().Msg("api: REPLICATE_API_TOKEN not set, balance execution disabled")
	}

	orch := balancer.NewOrchestrator(balancer.OrchestratorOptions{
		Manifests: manifests,
		Builder:   builder,
		Evaluator: evaluator,
		Executor:  executor,
		Targets:   targets,
		Logger:    &logger,
	})

	app := handlers.NewApp(catalog, manifests, orch, targets, cfg.ProgressFile, executeEnabled, cfg.AllowedOrigins, logger)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
