package main

import (
	"context"
	"log/slog"

	"github.com/dripflow/dripflow/pkg/eventbus"
	"github.com/dripflow/dripflow/pkg/events"
)

// watchRunEvents subscribes the scheduler to its own run lifecycle stream and
// logs each event, giving operators a tail of what the interpreter is doing
// without a separate consumer process.
func watchRunEvents(ctx context.Context, bus eventbus.EventBus, logger *slog.Logger) error {
	err := bus.Handle(events.RunSteppedEvent, func(ctx context.Context, event any) error {
		stepped, ok := event.(*events.RunStepped)
		if !ok {
			return nil
		}

		logger.InfoContext(ctx, "Run stepped",
			"run_id", stepped.RunID,
			"workflow_id", stepped.WorkflowID,
			"node_id", stepped.NodeID,
			"status", stepped.Status,
		)

		return nil
	})
	if err != nil {
		return err
	}

	err = bus.Handle(events.RunCompletedEvent, func(ctx context.Context, event any) error {
		completed, ok := event.(*events.RunCompleted)
		if !ok {
			return nil
		}

		logger.InfoContext(ctx, "Run completed",
			"run_id", completed.RunID,
			"workflow_id", completed.WorkflowID,
		)

		return nil
	})
	if err != nil {
		return err
	}

	err = bus.Handle(events.RunFailedEvent, func(ctx context.Context, event any) error {
		failed, ok := event.(*events.RunFailed)
		if !ok {
			return nil
		}

		logger.WarnContext(ctx, "Run failed",
			"run_id", failed.RunID,
			"workflow_id", failed.WorkflowID,
			"error", failed.Error,
		)

		return nil
	})
	if err != nil {
		return err
	}

	err = bus.Handle(events.EmailSentEvent, func(ctx context.Context, event any) error {
		sent, ok := event.(*events.EmailSent)
		if !ok {
			return nil
		}

		logger.InfoContext(ctx, "Email sent",
			"run_id", sent.RunID,
			"contact_id", sent.ContactID,
			"template_id", sent.TemplateID,
			"send_id", sent.SendID,
		)

		return nil
	})
	if err != nil {
		return err
	}

	return bus.Subscribe(ctx)
}
