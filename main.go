package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fitleague/internal/auth"
	"fitleague/internal/config"
	"fitleague/internal/httpapi"
	"fitleague/internal/logger"
	"fitleague/internal/metrics"
	"fitleague/internal/service"
	"fitleague/internal/store"
	"fitleague/internal/strava"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "fitleague",
		Short:         "Multi-tenant fitness league API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	lg := logger.New(cfg.Environment, cfg.Logger.Level)
	defer lg.Sync()

	tp := metrics.InitTracing(logger.ServiceName, version)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			lg.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()
	m := metrics.New()

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ingestor := service.NewIngestor(db, m, lg.Named("ingest"))
	svc := httpapi.Services{
		DB:          db,
		Roster:      service.NewRoster(db, cfg.Athletes.BcryptCost, cfg.Athletes.DefaultPrefix, lg.Named("roster")),
		Ingestor:    ingestor,
		Leaderboard: service.NewLeaderboard(db),
	}

	// Background work outlives individual requests but stops with the process
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var subscriptions *service.Subscriptions
	if cfg.StravaEnabled() {
		manager := auth.NewManager(auth.Config{
			ClientID:     cfg.Strava.ClientID,
			ClientSecret: cfg.Strava.ClientSecret,
			RedirectURL:  cfg.Strava.RedirectURL,
			AuthURL:      cfg.Strava.AuthURL,
			TokenURL:     cfg.Strava.TokenURL,
		})
		client := strava.NewClient(strava.WithBaseURL(cfg.Strava.APIBaseURL))
		credentials := service.NewCredentials(db, manager, m, lg.Named("credentials"))
		resolver := service.NewIdentityResolver(db, lg.Named("identity"))

		svc.OAuth = manager
		svc.State = auth.NewStateSigner(cfg.StateSigningKey())
		svc.Credentials = credentials
		svc.Sync = service.NewSyncService(db, client, credentials, ingestor, lg.Named("sync"))
		svc.Webhooks = service.NewWebhookProcessor(resolver, credentials, client, ingestor, m, lg.Named("webhook"),
			service.WebhookOptions{
				Workers:      cfg.Webhook.Workers,
				QueueSize:    cfg.Webhook.QueueSize,
				EventTimeout: cfg.Webhook.EventTimeout,
			})
		subscriptions = service.NewSubscriptions(db, client,
			strava.AppCredentials{ClientID: cfg.Strava.ClientID, ClientSecret: cfg.Strava.ClientSecret},
			cfg.Strava.CallbackURL, cfg.Strava.VerifyToken, lg.Named("subscriptions"))
		svc.Subscriptions = subscriptions

		svc.Webhooks.Start(bgCtx)
	} else {
		lg.Warn("strava credentials not configured, strava routes disabled")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.New(svc, m, lg.Named("http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr, err := startServer(server, lg)
	if err != nil {
		return err
	}

	// The provider verifies the callback during registration, so the
	// listener must already be bound
	if subscriptions != nil && cfg.Strava.CallbackURL != "" {
		go func() {
			ctx, cancel := context.WithTimeout(bgCtx, time.Minute)
			defer cancel()
			if _, err := subscriptions.Ensure(ctx); err != nil {
				lg.Error("webhook subscription setup failed", zap.Error(err))
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		lg.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown failed", zap.Error(err))
	}

	if svc.Webhooks != nil {
		svc.Webhooks.Stop()
	}
	lg.Info("stopped")
	return nil
}

// startServer binds server.Addr and serves on it in the background. The
// port accepts connections once it returns. The channel yields a serve
// error, or closes after a clean shutdown.
func startServer(server *http.Server, lg *zap.Logger) (<-chan error, error) {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", server.Addr, err)
	}

	serverErr := make(chan error, 1)
	go func() {
		defer close(serverErr)
		lg.Info("http server listening", zap.String("addr", ln.Addr().String()), zap.String("version", version))
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	return serverErr, nil
}
