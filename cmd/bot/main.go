package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"memegen-bot/internal/config"
	"memegen-bot/internal/handlers"
	"memegen-bot/internal/httpclient"
	"memegen-bot/internal/mediagroup"
	"memegen-bot/internal/meme"
	"memegen-bot/internal/memeapi"
	"memegen-bot/internal/telegram"
	"memegen-bot/internal/templates"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.BotToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
		AvatarTTL:  cfg.AvatarCacheTTL,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	probeCtx, probeCancel := context.WithTimeout(ctx, cfg.MetadataTimeout)
	backend, err := memeapi.Detect(probeCtx, memeapi.Options{
		BaseURL:    cfg.APIBaseURL,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	probeCancel()
	if err != nil {
		logger.Error("backend probe failed", "url", cfg.APIBaseURL, "err", err)
		os.Exit(1)
	}

	cache := templates.NewCache(templates.CacheOptions{
		Source:          backend,
		Path:            cfg.CacheFile,
		Eager:           cfg.EagerRefresh,
		MetadataTimeout: cfg.MetadataTimeout,
		Logger:          logger,
	})

	if cache.Count() == 0 {
		refreshCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		if _, err := cache.Refresh(refreshCtx); err != nil {
			logger.Error("initial template refresh failed", "err", err)
		}
		cancel()
	}

	resolver := templates.NewResolver(templates.ResolverOptions{
		Cache:           cache,
		Source:          backend,
		MetadataTimeout: cfg.MetadataTimeout,
		Logger:          logger,
	})

	fetcher := meme.NewFetcher(meme.FetcherOptions{
		HTTPClient: httpClient,
		Avatars:    tg,
		Timeout:    cfg.ImageTimeout,
		MaxBytes:   cfg.MaxImageBytes,
		Logger:     logger,
	})

	generator := meme.NewGenerator(meme.GeneratorOptions{
		Backend:         backend,
		Resolver:        resolver,
		Fetcher:         fetcher,
		Policy:          meme.Policy{TolerateExcess: cfg.TolerateExcess},
		GenerateTimeout: cfg.GenerateTimeout,
		Logger:          logger,
	})

	handler := handlers.New(handlers.Options{
		Telegram:  tg,
		Generator: generator,
		Cache:     cache,
		Resolver:  resolver,
		Deny:      cfg.DenySet(),
		Logger:    logger,
	})

	sem := make(chan struct{}, cfg.MaxConcurrent)
	onGroupFlush := func(group mediagroup.Group) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()

			handler.HandleMediaGroup(reqCtx, group)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		OnFlush:  onGroupFlush,
	})
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info("bot started", "username", tg.Username(), "templates", cache.Count())

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
