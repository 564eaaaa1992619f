package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi"
	"github.com/mwaiseghegift/tg-utils-bot/internal/config"
	"github.com/mwaiseghegift/tg-utils-bot/internal/http/rest"
	"github.com/mwaiseghegift/tg-utils-bot/internal/logctx"
	"github.com/mwaiseghegift/tg-utils-bot/internal/notifier"
	"github.com/mwaiseghegift/tg-utils-bot/internal/probe"
	"github.com/mwaiseghegift/tg-utils-bot/internal/relay"
	"github.com/mwaiseghegift/tg-utils-bot/internal/storage"
	"github.com/mwaiseghegift/tg-utils-bot/internal/storage/sqlite"
	"github.com/mwaiseghegift/tg-utils-bot/internal/telemetry"
	"github.com/mwaiseghegift/tg-utils-bot/internal/uploader"
	"github.com/mwaiseghegift/tg-utils-bot/internal/uploader/putio"
	"github.com/mwaiseghegift/tg-utils-bot/internal/uploader/telegram"
	"golang.org/x/sync/errgroup"
)

const serviceName = "tg-utils-bot"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("transfer relay starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedTransferRepository(database, tel)

	// =========================================================================
	// Start Upload Client
	up, err := buildUploadClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build upload client: %w", err)
	}

	instrumented := uploader.NewInstrumentedUploader(up, tel, cfg.UploadClient)

	// =========================================================================
	// Start Relay
	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
	}

	prober := probe.NewClient(cfg.ProbeTimeout)

	svc := relay.NewService(
		relay.ServiceConfig{
			MaxTransferSize:  cfg.MaxTransferSize,
			ChunkSize:        cfg.ChunkSize,
			ProgressInterval: cfg.ProgressInterval,
			StreamTimeout:    cfg.StreamTimeout,
		},
		prober,
		instrumented,
		repo,
		notifier.NewProgressSink(notif),
		tel,
	)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, svc, prober, repo, tel, cfg)

	logger.Info("transfer limits",
		"max_transfer_size", cfg.MaxTransferSize,
		"chunk_size", cfg.ChunkSize,
		"progress_interval", cfg.ProgressInterval.String(),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	return g.Wait()
}

// This is an abstract factory for the upload client.
func buildUploadClient(ctx context.Context, cfg *config.Config) (relay.Uploader, error) {
	switch cfg.UploadClient {
	case "telegram":
		return telegram.NewClient(cfg.TelegramToken, cfg.TelegramChatID, cfg.MaxInlinePhotoSize), nil
	case "putio":
		client := putio.NewClient(cfg.PutioToken, cfg.PutioFolder)
		if err := client.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("authentication error: %w", err)
		}

		return client, nil
	}

	return nil, fmt.Errorf("invalid upload client: %s", cfg.UploadClient)
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	svc *relay.Service,
	prober *probe.Client,
	history storage.TransferReadRepository,
	tel *telemetry.Telemetry,
	cfg *config.Config,
) *http.Server {
	handler := rest.NewTransferHandler(cfg.API.Username, cfg.API.Password, svc, prober, history, tel)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Use(telemetry.HTTPLogging)

	r.Mount("/api", handler.Routes())
	r.Handle("/metrics", tel.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
