package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dreadwatch/dreadwatch/internal/api"
	"github.com/dreadwatch/dreadwatch/internal/auth"
	"github.com/dreadwatch/dreadwatch/internal/config"
	"github.com/dreadwatch/dreadwatch/internal/dread"
	"github.com/dreadwatch/dreadwatch/internal/notify"
	"github.com/dreadwatch/dreadwatch/internal/store"
	"github.com/dreadwatch/dreadwatch/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("dreadwatch-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	srv := cfg.Server
	slog.Info("config loaded",
		"http_port", srv.HTTPPort,
		"db_path", srv.DBPath,
		"auth_mode", srv.Auth.Mode,
		"decay_interval", srv.Dread.DecayInterval,
		"ranking_interval", srv.Dread.RankingInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(srv.DBPath)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// Derivation core: decay + ranking engines driven by the scheduler.
	engine := dread.NewEngine(st, st, srv.Dread.DecayFactor, srv.Dread.MinDeaths)
	scheduler := dread.NewScheduler(engine,
		srv.Dread.DecayInterval,
		srv.Dread.RankingInterval,
		srv.Dread.PollInterval,
	)
	go scheduler.Run(ctx)

	// API-key keyring with hot reload, protecting the death-logging endpoint.
	var protect func(http.Handler) http.Handler
	if srv.Auth.Mode == "apikey" {
		keyring, err := auth.LoadKeyring(srv.Auth.KeysFile)
		if err != nil {
			slog.Error("failed to load keyring", "err", err)
			os.Exit(1)
		}
		if keyring.Count() == 0 {
			slog.Warn("keyring is empty, all protected requests will be denied",
				"keys_file", srv.Auth.KeysFile)
		}
		go func() {
			if err := auth.Watch(ctx, srv.Auth.KeysFile, keyring); err != nil {
				slog.Error("keyring watcher stopped", "err", err)
			}
		}()

		limiter := auth.NewLimiter(srv.RateLimit.Attempts, srv.RateLimit.Window)
		header := srv.Auth.EffectiveHeader()
		protect = func(next http.Handler) http.Handler {
			return auth.Middleware("apikey", header, keyring, limiter, next)
		}
	}

	// WebSocket hub pushes the elevated-dread list to connected clients.
	hub := ws.New(st, srv.Stream.BroadcastInterval)
	go hub.Run(ctx)

	// Webhook notifier; a no-op unless webhooks are configured.
	notifier := notify.New(st, srv.Notify)
	go notifier.Run(ctx)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st, protect))
	httpMux.Handle("/metrics", api.MetricsHandler(st))
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", srv.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", srv.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("dreadwatch-server shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}
