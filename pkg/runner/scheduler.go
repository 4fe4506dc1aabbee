// Package runner contains the workflow run interpreter: the step executor
// advancing individual runs and the scheduler polling for due ones.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/otelhelper"
	"github.com/dripflow/dripflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBatchLimit bounds the number of runs fetched per invocation.
	DefaultBatchLimit = 20

	// defaultConcurrency bounds parallel steps within a batch, keeping
	// pressure on the shared SMTP transports predictable.
	defaultConcurrency = 4
)

// BatchResult aggregates one scheduler invocation.
type BatchResult struct {
	Processed int          `json:"processed"`
	Completed int          `json:"completed"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Details   []StepResult `json:"details"`
}

// Scheduler selects due runs and steps each one once. It keeps no state
// between invocations: resumption is entirely the run store's job, so the
// process can be restarted or scaled out at any time.
type Scheduler struct {
	runs        persistence.RunRepository
	executor    *Executor
	logger      *slog.Logger
	tracer      trace.Tracer
	concurrency int
}

// NewScheduler wires a scheduler over the run store and executor. tracer may
// be nil when tracing is not configured.
func NewScheduler(store persistence.Persistence, executor *Executor, tracer trace.Tracer, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runs:        store.RunRepository(),
		executor:    executor,
		logger:      logger.With("module", "scheduler"),
		tracer:      tracer,
		concurrency: defaultConcurrency,
	}
}

// ProcessDueRuns fetches up to batchLimit due runs and steps each once with
// bounded parallelism. Per-run errors land in the per-run result; only a
// failure to fetch the due list aborts the invocation.
func (s *Scheduler) ProcessDueRuns(ctx context.Context, batchLimit int) (*BatchResult, error) {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}

	if s.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, s.tracer, "scheduler.process_due_runs",
			attribute.Int(otelhelper.BatchSizeKey, batchLimit),
		)
		defer span.End()
	}

	due, err := s.runs.DueRuns(ctx, batchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due runs: %w", err)
	}

	if len(due) == 0 {
		return &BatchResult{Details: []StepResult{}}, nil
	}

	s.logger.InfoContext(ctx, "Processing due runs", "count", len(due))

	results := make([]StepResult, len(due))

	var waitGroup sync.WaitGroup

	semaphore := make(chan struct{}, s.concurrency)

	for i, run := range due {
		waitGroup.Add(1)

		go func(i int, run *models.WorkflowRun) {
			defer waitGroup.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[i] = s.step(ctx, run)
		}(i, run)
	}

	waitGroup.Wait()

	batch := &BatchResult{Details: results}

	for _, result := range results {
		if result.Skipped {
			batch.Skipped++

			continue
		}

		batch.Processed++

		switch result.Status {
		case models.RunStatusCompleted:
			batch.Completed++
		case models.RunStatusFailed:
			batch.Failed++
		}
	}

	s.logger.InfoContext(ctx, "Batch finished",
		"processed", batch.Processed,
		"completed", batch.Completed,
		"failed", batch.Failed,
		"skipped", batch.Skipped,
	)

	return batch, nil
}

func (s *Scheduler) step(ctx context.Context, run *models.WorkflowRun) StepResult {
	if s.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, s.tracer, "scheduler.step",
			attribute.String(otelhelper.RunIDKey, run.ID),
			attribute.String(otelhelper.WorkflowIDKey, run.WorkflowID),
			attribute.String(otelhelper.ContactIDKey, run.ContactID),
		)
		defer span.End()

		result := s.executor.ExecuteStep(ctx, run)
		if result.Error != "" {
			otelhelper.SetError(span, fmt.Errorf("%s", result.Error))
		}

		return result
	}

	return s.executor.ExecuteStep(ctx, run)
}
