package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maraichr/nightcrawler/internal/config"
	"github.com/maraichr/nightcrawler/internal/discovery"
	"github.com/maraichr/nightcrawler/internal/gateway"
	"github.com/maraichr/nightcrawler/internal/jobs"
	"github.com/maraichr/nightcrawler/internal/reindex"
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
		logger.Error("worker failed", slog.String("error", err.Error()))
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Valkey
	vkClient, err := vk.NewClient(ctx, cfg.Valkey)
	if err != nil {
		return fmt.Errorf("connect to valkey: %w", err)
	}
	defer vkClient.Close()
	logger.Info("connected to valkey", slog.String("addr", cfg.Valkey.Addr))

	store := vk.NewStatusStore(vkClient, cfg.Valkey.KeyPrefix, cfg.Queue.StatusTTL)

	// Gateway
	locator, err := discovery.NewGatewayLocator(cfg.Gateway, cfg.Discovery, logger)
	if err != nil {
		return err
	}
	gw := gateway.NewClient(locator, cfg.Auth.SecureToken, cfg.Gateway.Timeout,
		cfg.Gateway.RateLimitRPS, cfg.Gateway.RateLimitBurst, logger)

	orch := reindex.NewOrchestrator(store, gw, logger)

	if err := jobs.NewConsumer(vkClient, cfg.Worker.ConsumerID, logger).EnsureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	// A job in flight at shutdown gets the shutdown window to finish before
	// its context is cancelled.
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()
	stopGrace := context.AfterFunc(ctx, func() {
		time.AfterFunc(cfg.Server.ShutdownTimeout, cancelJobs)
	})
	defer stopGrace()

	handle := jobs.Handler(orch, logger)

	// Each loop is its own group consumer, so distinct branches are indexed in
	// parallel up to WORKER_CONCURRENCY per process.
	concurrency := max(cfg.Worker.Concurrency, 1)
	logger.Info("starting worker, consuming from stream",
		slog.String("stream", jobs.StreamName),
		slog.String("consumer", cfg.Worker.ConsumerID),
		slog.Int("concurrency", concurrency))

	g, gctx := errgroup.WithContext(ctx)
	for i := range concurrency {
		consumer := jobs.NewConsumer(vkClient, fmt.Sprintf("%s-%d", cfg.Worker.ConsumerID, i), logger)
		g.Go(func() error {
			err := consumer.Consume(gctx, func(_ context.Context, msg jobs.ReindexMessage) error {
				return handle(jobCtx, msg)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consume: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("worker stopped")
	return nil
}
