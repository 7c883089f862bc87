package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/valkey-io/valkey-go"
	"golang.org/x/sync/errgroup"

	"github.com/maraichr/nightcrawler/internal/api"
	"github.com/maraichr/nightcrawler/internal/auth"
	"github.com/maraichr/nightcrawler/internal/config"
	"github.com/maraichr/nightcrawler/internal/discovery"
	"github.com/maraichr/nightcrawler/internal/gateway"
	"github.com/maraichr/nightcrawler/internal/jobs"
	"github.com/maraichr/nightcrawler/internal/reindex"
	"github.com/maraichr/nightcrawler/internal/store/memory"
	vk "github.com/maraichr/nightcrawler/internal/store/valkey"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.Log)
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.Error("api server failed", slog.String("error", err.Error()))
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := api.RouterDeps{}

	// Status store
	var (
		store    reindex.StatusStore
		vkClient valkey.Client
	)
	switch cfg.Queue.Store {
	case "memory":
		if cfg.Queue.DispatchMode == jobs.ModeStream {
			return errors.New("QUEUE_STORE=memory cannot be combined with DISPATCH_MODE=stream")
		}
		store = memory.NewStatusStore()
		logger.Warn("using in-memory status store, locks are not shared between processes")
	case "valkey":
		c, err := vk.NewClient(ctx, cfg.Valkey)
		if err != nil {
			return fmt.Errorf("connect to valkey: %w", err)
		}
		defer c.Close()
		vkClient = c
		s := vk.NewStatusStore(c, cfg.Valkey.KeyPrefix, cfg.Queue.StatusTTL)
		store = s
		deps.Store = s
		logger.Info("connected to valkey", slog.String("addr", cfg.Valkey.Addr))
	default:
		return fmt.Errorf("unknown QUEUE_STORE %q", cfg.Queue.Store)
	}

	// Gateway
	locator, err := discovery.NewGatewayLocator(cfg.Gateway, cfg.Discovery, logger)
	if err != nil {
		return err
	}
	gw := gateway.NewClient(locator, cfg.Auth.SecureToken, cfg.Gateway.Timeout,
		cfg.Gateway.RateLimitRPS, cfg.Gateway.RateLimitBurst, logger)

	orch := reindex.NewOrchestrator(store, gw, logger)
	deps.Status = orch

	// Dispatch
	runner := jobs.NewRunner(logger)
	switch cfg.Queue.DispatchMode {
	case jobs.ModeInline:
		deps.Dispatcher = jobs.NewInlineDispatcher(orch, runner, logger)
	case jobs.ModeStream:
		deps.Dispatcher = jobs.NewStreamDispatcher(orch, jobs.NewProducer(vkClient), logger)
	default:
		return fmt.Errorf("unknown DISPATCH_MODE %q", cfg.Queue.DispatchMode)
	}
	logger.Info("reindex dispatch configured", slog.String("mode", cfg.Queue.DispatchMode))

	// Auth (AUTH_ENABLED=false accepts every request)
	if cfg.Auth.Enabled {
		var verifier *auth.Verifier
		if cfg.Auth.IssuerURL != "" {
			verifier, err = auth.NewVerifier(ctx, cfg.Auth.IssuerURL, cfg.Auth.PublicIssuer, cfg.Auth.Audience)
			if err != nil {
				return fmt.Errorf("init OIDC verifier: %w", err)
			}
			logger.Info("OIDC auth enabled", slog.String("issuer", cfg.Auth.IssuerURL))
		}
		if verifier == nil && cfg.Auth.SecureToken == "" {
			return errors.New("AUTH_ENABLED=true needs SECURE_TOKEN or AUTH_ISSUER_URL")
		}
		deps.Auth = auth.RequireAuth(auth.NewAuthenticator(cfg.Auth.SecureToken, verifier), logger)
		if cfg.Auth.ReindexScope != "" {
			deps.ReindexGuard = auth.RequireScope(cfg.Auth.ReindexScope)
		}
	} else {
		deps.Auth = auth.DevModeMiddleware(logger)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(logger, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting API server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	// Graceful shutdown: stop taking requests, then give running jobs the
	// rest of the shutdown window before cancelling them.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
		}
		if err := runner.Shutdown(shutdownCtx); err != nil {
			logger.Warn("background jobs cancelled", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
