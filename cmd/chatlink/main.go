package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatlink/internal/api"
	"chatlink/internal/auth"
	"chatlink/internal/chat"
	"chatlink/internal/client/cli"
	"chatlink/internal/config"
	"chatlink/internal/conn"
	"chatlink/internal/credstore"
	"chatlink/internal/hub"
	"chatlink/internal/lifecycle"
	"chatlink/internal/logging"
	"chatlink/internal/media"
	"chatlink/internal/notify"
	"chatlink/internal/observability/metrics"
	"chatlink/internal/prefs"
	"chatlink/internal/session"
	"chatlink/internal/storage"
	"chatlink/internal/tlsdiag"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.LoadConfig()
	logger := logging.NewTextLogger(slog.LevelInfo)

	db, err := storage.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := prefs.NewSQLiteRepository(db)
	cli.RestoreEnvironment(ctx, cfg, repo)

	env, err := cfg.Env()
	if err != nil {
		return err
	}
	logger.Info(ctx, "starting", "environment", env.Name)

	// environment trust list feeds the TLS diagnostics allow-list
	tlsdiag.AllowedHosts = append(tlsdiag.AllowedHosts, env.TrustedHosts...)

	creds, err := credentialStore(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	mtr := metrics.New(reg)
	notes := notify.NewCenter(100)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	authc := auth.NewHTTPClient(env.AuthBaseURL, httpClient, logger).WithMetrics(mtr)
	sessions := session.NewManager(creds, authc, logger)
	if _, err := sessions.Restore(ctx); err != nil {
		if errors.Is(err, session.ErrNotAuthenticated) {
			logger.Info(ctx, "no stored session")
		} else {
			logger.Warn(ctx, "session restore failed", "error", err)
		}
	}

	transport := hub.NewWebsocketTransport(env.HubURL, sessions, logger)
	source := lifecycle.NewManualSource()

	chats := chat.NewService(transport, chat.NewCache(db), repo, nil, logger)

	orch := conn.New(transport, chats, source, mtr, logger, conn.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		BackgroundGrace:   cfg.BackgroundGrace,
	})
	chats.SetHealth(orch)
	go orch.Run(ctx)

	uploads := media.NewUploader(env.MediaBaseURL, httpClient, sessions, notes, mtr, logger)

	statusAPI := api.NewServer(orch, sessions, cfg, reg, logger)
	go func() {
		if err := statusAPI.Serve(ctx, cfg.StatusAddr); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "status api stopped", "error", err)
		}
	}()

	app := cli.NewApp(cfg, sessions, orch, chats, uploads, notes, source, repo, logger)
	app.Run(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := orch.Stop(stopCtx); err != nil && err != conn.ErrNotRunning {
		logger.Warn(stopCtx, "connection stop on exit", "error", err)
	}
	return nil
}

// credentialStore picks the encrypted file store when a passphrase is
// configured, and falls back to the in-memory store otherwise.
func credentialStore(cfg *config.Config) (credstore.Store, error) {
	passphrase := os.Getenv("CHATLINK_PASSPHRASE")
	if passphrase == "" {
		return credstore.NewMemoryStore(), nil
	}

	path := cfg.CredentialPath
	if path == "" {
		p, err := credstore.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return credstore.NewFileStore(path, passphrase), nil
}
