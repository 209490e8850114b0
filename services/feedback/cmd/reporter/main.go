package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/FeedbackGo/pkg/logger"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/app"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("weekly report failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New("feedback-reporter", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reporter, err := app.NewReporter(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			log.Error("reporter close error", slog.String("error", err.Error()))
		}
	}()

	rep, err := reporter.Run(ctx)
	if err != nil {
		return err
	}

	log.Info("weekly report sent",
		slog.Int("total", rep.TotalCount),
		slog.Float64("average_score", rep.AverageScore),
		slog.String("label", rep.Label()),
	)
	return nil
}
