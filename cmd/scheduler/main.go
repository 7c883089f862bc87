package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maraichr/nightcrawler/internal/config"
	"github.com/maraichr/nightcrawler/internal/jobs"
	"github.com/maraichr/nightcrawler/internal/reindex"
	vk "github.com/maraichr/nightcrawler/internal/store/valkey"
	"github.com/maraichr/nightcrawler/pkg/models"
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
		logger.Error("scheduler failed", slog.String("error", err.Error()))
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	targets, err := parseTargets(cfg.Scheduler.Targets)
	if err != nil {
		return err
	}
	if cfg.Scheduler.Interval <= 0 {
		return errors.New("SCHEDULE_INTERVAL_SECS must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vkClient, err := vk.NewClient(ctx, cfg.Valkey)
	if err != nil {
		return fmt.Errorf("connect to valkey: %w", err)
	}
	defer vkClient.Close()
	logger.Info("connected to valkey", slog.String("addr", cfg.Valkey.Addr))

	store := vk.NewStatusStore(vkClient, cfg.Valkey.KeyPrefix, cfg.Queue.StatusTTL)
	dispatcher := jobs.NewStreamDispatcher(reindex.NewStatusReader(store), jobs.NewProducer(vkClient), logger)

	logger.Info("starting scheduler",
		slog.Int("targets", len(targets)),
		slog.Duration("interval", cfg.Scheduler.Interval))

	err = jobs.NewScheduler(dispatcher, targets, cfg.Scheduler.Interval, logger).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("scheduler stopped")
	return nil
}

func parseTargets(raw []string) ([]models.ProjectRef, error) {
	if len(raw) == 0 {
		return nil, errors.New("SCHEDULE_TARGETS is empty")
	}
	targets := make([]models.ProjectRef, 0, len(raw))
	for _, s := range raw {
		ref, ok := models.ParseProjectRef(s)
		if !ok {
			return nil, fmt.Errorf("invalid schedule target %q, want project#branch", s)
		}
		targets = append(targets, ref)
	}
	return targets, nil
}
