package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"gatehouse/internal/action"
	"gatehouse/internal/api"
	"gatehouse/internal/bootstrap"
	"gatehouse/internal/config"
	"gatehouse/internal/db"
	"gatehouse/internal/flash"
	"gatehouse/internal/hosting"
	"gatehouse/internal/mail"
	"gatehouse/internal/metrics"
	redisdb "gatehouse/internal/redis"
	"gatehouse/internal/update"
	"gatehouse/internal/user"

	"github.com/spf13/cobra"
)

const (
	flashTTL        = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		SilenceUsage: true,
		Short:        "provision roles and the admin account, then start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *opts)
		},
	}
}

func runServe(ctx context.Context, opts rootOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	conn, err := db.Open(cfg)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	store := user.NewStore(conn)
	if _, err := bootstrap.Provision(ctx, store, cfg); err != nil {
		return err
	}

	rdb := redisdb.NewClient(cfg)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[Main] WARNING: redis unreachable at %s: %v", cfg.Redis.Addr, err)
	}

	hostingClient := hosting.NewClient(cfg.Hosting)
	if !hostingClient.Enabled() {
		log.Printf("[Main] hosting provider not configured, application actions disabled")
	}
	puller := &update.GitPuller{Dir: cfg.App.Dir, Timeout: cfg.Hosting.Timeout.Std()}
	flashes := flash.NewStore(rdb, flashTTL)
	m := metrics.New()

	dispatcher := action.NewDispatcher(action.DefaultRegistry(), store, hostingClient, puller, flashes)
	dispatcher.DefaultRole = cfg.App.DefaultRole
	dispatcher.OnResult = m.ObserveAction

	deps := api.Deps{
		Config:     cfg,
		Redis:      rdb,
		Store:      store,
		Flashes:    flashes,
		Dispatcher: dispatcher,
		Metrics:    m,
	}
	sender, err := mail.NewSender(cfg.SMTP, cfg.App.Title)
	switch {
	case err == nil:
		deps.Mailer = sender
	case errors.Is(err, mail.ErrDisabled):
		log.Printf("[Main] SMTP disabled in config")
	default:
		return fmt.Errorf("smtp config error: %w", err)
	}

	r := api.SetupRouter(deps)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.RateLimited(r, cfg.Server.RateLimit),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Main] Starting server on %s%s", addr, cfg.Server.Subpath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Printf("[Main] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
