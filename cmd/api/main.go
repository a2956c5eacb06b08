package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fridgechef/internal/api"
	"fridgechef/internal/config"
	"fridgechef/internal/fridge"
	"fridgechef/internal/platform/gemini"
	"fridgechef/internal/platform/logger"
	"fridgechef/internal/platform/openai"
	"fridgechef/internal/recipe"
	"fridgechef/internal/session"
)

// model is what both providers offer.
type model interface {
	recipe.Vision
	recipe.Writer
}

func main() {
	configPath := flag.String("config", "", "path to a config file (json or yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fridgechef: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fridgechef: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		stop()
		log.Error("fridgechef stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	llm, closeModel, err := newModel(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeModel()

	var (
		cache   recipe.IngredientCache
		archive api.RecipeArchive
	)
	genOpts := []recipe.GeneratorOption{
		recipe.WithMaxCount(cfg.Recipes.MaxCount),
		recipe.WithParallelism(cfg.Recipes.Parallelism),
	}
	if cfg.Database.URL != "" {
		store, err := recipe.NewPostgresStore(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("error creating postgresstore: %w", err)
		}
		defer store.Close()
		cache, archive = store, store
		genOpts = append(genOpts, recipe.WithArchive(store))
		log.Info("recipe store enabled")
	}

	sessions, closeSessions, err := newSessionStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSessions()

	fingerprinter, err := fridge.FingerprinterByName(cfg.Images.Fingerprint)
	if err != nil {
		return err
	}

	handler := api.NewHandler(
		recipe.NewExtractor(llm, cache, log.Named("extractor")),
		recipe.NewGenerator(llm, log.Named("generator"), genOpts...),
		fridge.NewLoader(fingerprinter, cfg.Images.MaxWidth),
		sessions,
		archive,
		log.Named("api"),
		api.Options{
			RequestTimeout: cfg.Server.RequestTimeout,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			CookieMaxAge:   cfg.Session.TTL,
		},
	)
	router := api.NewRouter(handler, api.RouterConfig{AllowedOrigins: cfg.Server.AllowedOrigins}, log.Named("http"))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("provider", cfg.AI.Provider),
			zap.String("fingerprint", cfg.Images.Fingerprint),
			zap.String("sessions", cfg.Session.Backend))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("received shutdown signal, gracefully stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newModel(ctx context.Context, cfg *config.Config, log *zap.Logger) (model, func(), error) {
	switch cfg.AI.Provider {
	case config.ProviderOpenAI:
		client := openai.NewClient(openai.Config{
			APIKey:          cfg.OpenAI.APIKey,
			BaseURL:         cfg.OpenAI.BaseURL,
			Model:           cfg.OpenAI.Model,
			VisionMaxTokens: cfg.OpenAI.VisionMaxTokens,
			TextMaxTokens:   cfg.OpenAI.TextMaxTokens,
			Timeout:         cfg.OpenAI.Timeout,
		}, log.Named("openai"))
		return client, func() {}, nil
	default:
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			Temperature:     cfg.Gemini.Temperature,
			TopP:            cfg.Gemini.TopP,
			TopK:            cfg.Gemini.TopK,
			MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
		}, log.Named("gemini"))
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	}
}

func newSessionStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (session.Store, func(), error) {
	if cfg.Session.Backend == config.SessionRedis {
		store, err := session.NewRedisStore(ctx, session.RedisConfig{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
			TTL:      cfg.Session.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}

	store := session.NewMemoryStore(cfg.Session.TTL, log.Named("sessions"))
	sweepCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				store.Sweep()
			}
		}
	}()
	return store, cancel, nil
}
