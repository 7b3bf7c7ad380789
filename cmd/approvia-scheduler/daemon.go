package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ledgerops/approvia/pkg/eventbus"
	"github.com/ledgerops/approvia/pkg/journal"
	"github.com/ledgerops/approvia/pkg/persistence"
)

// Daemon drives the journal scheduler: it sleeps until each poll
// activation, ticks the scheduler, and, when an event bus is configured,
// subscribes the runner to workflow approval events.
type Daemon struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	schedule    cron.Schedule
	runner      *journal.Runner
	scheduler   *journal.Scheduler
	logger      *slog.Logger
}

func NewDaemon(p persistence.Persistence, bus eventbus.EventBus, schedule cron.Schedule, logger *slog.Logger) *Daemon {
	runner := journal.NewRunner(p, bus, logger)

	return &Daemon{
		persistence: p,
		eventBus:    bus,
		schedule:    schedule,
		runner:      runner,
		scheduler:   journal.NewScheduler(p, runner, logger),
		logger:      logger,
	}
}

func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		d.logger.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	if d.eventBus != nil {
		if err := d.runner.SubscribeToApprovals(d.eventBus); err != nil {
			return err
		}

		if err := d.eventBus.Subscribe(ctx); err != nil {
			return err
		}

		d.logger.Info("Subscribed to workflow approval events")
	}

	for {
		now := time.Now()
		next := d.schedule.Next(now)

		select {
		case <-ctx.Done():
			d.logger.Info("Scheduler stopped")

			return nil
		case <-time.After(next.Sub(now)):
		}

		logs, err := d.scheduler.Tick(ctx, next)
		if err != nil {
			d.logger.ErrorContext(ctx, "Scheduler tick failed", "error", err)

			continue
		}

		if len(logs) > 0 {
			d.logger.InfoContext(ctx, "Scheduler tick completed", "runs", len(logs))
		}
	}
}
