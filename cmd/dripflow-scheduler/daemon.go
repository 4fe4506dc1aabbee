package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dripflow/dripflow/pkg/runner"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const (
	tickLockKey = "dripflow:scheduler:tick"
	tickLockTTL = 50 * time.Second
)

// Daemon drives the scheduler on a cron tick. When several replicas share a
// Redis instance, a SETNX lock keeps each tick on a single replica.
type Daemon struct {
	scheduler  *runner.Scheduler
	logger     *slog.Logger
	tickExpr   string
	batchLimit int
	instanceID string
	redis      redis.UniversalClient
}

func NewDaemon(
	scheduler *runner.Scheduler,
	logger *slog.Logger,
	tickExpr string,
	redisURL string,
	batchLimit int,
) (*Daemon, error) {
	if _, err := cron.ParseStandard(tickExpr); err != nil {
		return nil, fmt.Errorf("invalid tick expression %q: %w", tickExpr, err)
	}

	daemon := &Daemon{
		scheduler:  scheduler,
		logger:     logger.With("module", "daemon"),
		tickExpr:   tickExpr,
		batchLimit: batchLimit,
		instanceID: "scheduler-" + uuid.New().String()[:8],
	}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}

		daemon.redis = redis.NewClient(opts)
	}

	return daemon, nil
}

// Start runs the cron loop until the context is cancelled or a termination
// signal arrives.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if d.redis != nil {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()

		if err := d.redis.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := scheduler.AddFunc(d.tickExpr, func() {
		d.tick(ctx)
	})
	if err != nil {
		return err
	}

	scheduler.Start()
	d.logger.InfoContext(ctx, "Scheduler started", "tick", d.tickExpr, "batch_limit", d.batchLimit)

	<-ctx.Done()

	d.logger.Info("Shutting down scheduler")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	if d.redis != nil {
		return d.redis.Close()
	}

	return nil
}

// RunOnce processes a single batch and returns. Useful for an external cron
// or for smoke-testing a deployment.
func (d *Daemon) RunOnce(ctx context.Context) error {
	batch, err := d.scheduler.ProcessDueRuns(ctx, d.batchLimit)
	if err != nil {
		return err
	}

	d.logBatch(ctx, batch)

	return nil
}

func (d *Daemon) tick(ctx context.Context) {
	if !d.acquireLock(ctx) {
		d.logger.DebugContext(ctx, "Tick held by another replica, skipping")

		return
	}

	batch, err := d.scheduler.ProcessDueRuns(ctx, d.batchLimit)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to process due runs", "error", err)

		return
	}

	d.logBatch(ctx, batch)
}

// acquireLock claims the tick for this replica. The lock expires on its own;
// a replica that dies mid-tick only delays the next pass by the TTL.
func (d *Daemon) acquireLock(ctx context.Context) bool {
	if d.redis == nil {
		return true
	}

	acquired, err := d.redis.SetNX(ctx, tickLockKey, d.instanceID, tickLockTTL).Result()
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to acquire tick lock", "error", err)

		return false
	}

	return acquired
}

func (d *Daemon) logBatch(ctx context.Context, batch *runner.BatchResult) {
	if batch.Processed == 0 && batch.Skipped == 0 {
		d.logger.DebugContext(ctx, "No due runs")

		return
	}

	d.logger.InfoContext(ctx, "Processed batch",
		"processed", batch.Processed,
		"completed", batch.Completed,
		"failed", batch.Failed,
		"skipped", batch.Skipped,
	)
}
