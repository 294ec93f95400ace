package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"avatarstudio/internal/adapter/repo"
	"avatarstudio/internal/http/handlers"
	httpapi "avatarstudio/internal/http/httpapi"
	"avatarstudio/internal/imagegen"
	"avatarstudio/internal/infra"
	"avatarstudio/internal/infra/credentials"
	"avatarstudio/internal/lifecycle"
	"avatarstudio/internal/pipeline"
	"avatarstudio/internal/providers/gemini"
	"avatarstudio/internal/references"
	"avatarstudio/internal/sqlinline"
	"avatarstudio/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	if _, err := runner.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	objects, staticDir, err := openObjectStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open object storage")
	}

	cipher, err := credentials.NewCipher(cfg.CredentialKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid credential key")
	}
	creds := credentials.NewStore(runner, cipher)

	clients := gemini.NewFactory(gemini.Options{BaseURL: cfg.GeminiBaseURL})
	if cfg.GeminiSynthetic {
		logger.Warn().Msg("using synthetic gemini client; no real generations will be made")
		clients = gemini.NewSyntheticFactory()
	}

	tasks := repo.NewImageRepository(runner)
	collections := repo.NewCollectionRepository(runner)
	videoPrompts := repo.NewVideoPromptRepository(runner)

	exec := pipeline.NewRunner(pipeline.RunnerDeps{
		Tasks:       tasks,
		Collections: collections,
		Credentials: creds,
		Clients:     clients,
		References:  references.NewManager(objects, logger, references.WithPolling(cfg.FilePollAttempts, cfg.FilePollInterval)),
		Invoker:     imagegen.NewInvoker(logger),
		Objects:     objects,
		Logger:      logger,
	})
	scheduler := pipeline.NewScheduler(exec, cfg.MaxConcurrentTasks, cfg.TaskTimeout, logger)

	service := pipeline.NewService(pipeline.ServiceDeps{
		Tasks:        tasks,
		Collections:  collections,
		Dispatcher:   scheduler,
		DefaultModel: cfg.GeminiModel,
		ModelAllowed: cfg.ModelAllowed,
		StaleAfter:   cfg.StalePendingAfter,
		Logger:       logger,
	})
	cleanup := lifecycle.NewManager(lifecycle.Deps{
		Collections:  collections,
		Images:       tasks,
		VideoPrompts: videoPrompts,
		Objects:      objects,
		Credentials:  creds,
		Clients:      clients,
		Logger:       logger,
	})

	app := handlers.NewApp(handlers.AppDeps{
		Generations: service,
		Lifecycle:   cleanup,
		Tasks:       tasks,
		Collections: collections,
		Objects:     objects,
		DB:          dbpool,
		Logger:      logger,
	})
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       staticDir,
		Logger:          logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("storage", cfg.StorageBackend).Msg("API listening")
		if err := server.Start(); err != nil {
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
	// Tasks still queued stay pending and are reclaimed by the worker sweep.
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("in-flight generations interrupted")
	}
	logger.Info().Msg("server stopped")
}

// openObjectStore returns the configured backend and, for the filesystem
// backend, the directory the router should serve under /static/.
func openObjectStore(cfg *infra.Config) (storage.ObjectStore, string, error) {
	switch cfg.StorageBackend {
	case infra.StorageBackendSupabase:
		store, err := storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.StorageBucket)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	default:
		store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			return nil, "", err
		}
		return store, store.BasePath(), nil
	}
}
