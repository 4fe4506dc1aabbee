package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dripflow/dripflow/pkg/events"
	"github.com/dripflow/dripflow/pkg/eventbus"
	"github.com/dripflow/dripflow/pkg/mailer"
	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
)

const (
	// defaultMaxEmailAttempts caps adapter retries before a run fails.
	defaultMaxEmailAttempts = 3

	// emailRetryBase is the first retry backoff; it doubles per attempt.
	emailRetryBase = time.Minute
)

// EmailSender is the email side-effect adapter surface the executor needs.
type EmailSender interface {
	Send(ctx context.Context, req mailer.SendRequest) (*models.EmailSendRecord, error)
}

// StepResult is the per-run outcome of one step.
type StepResult struct {
	RunID      string           `json:"id"`
	Status     models.RunStatus `json:"status"`
	NextNodeID *string          `json:"nextNodeId,omitempty"`
	Error      string           `json:"error,omitempty"`

	// Skipped marks a run another scheduler invocation advanced first. Its
	// due time is unchanged, so it is picked up again next tick if still due.
	Skipped bool `json:"skipped,omitempty"`
}

// Executor advances a run by exactly one node per invocation. It never
// recurses into the next node: each step stays auditable and bounded, and
// every cursor write goes through the optimistically checked run store.
type Executor struct {
	workflows        persistence.WorkflowRepository
	runs             persistence.RunRepository
	contacts         persistence.ContactRepository
	sender           EmailSender
	publisher        eventbus.EventPublisher
	logger           *slog.Logger
	maxEmailAttempts int
}

// NewExecutor wires a step executor. publisher may be nil when no event bus
// is configured.
func NewExecutor(
	store persistence.Persistence,
	sender EmailSender,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		workflows:        store.WorkflowRepository(),
		runs:             store.RunRepository(),
		contacts:         store.ContactRepository(),
		sender:           sender,
		publisher:        publisher,
		logger:           logger.With("module", "executor"),
		maxEmailAttempts: defaultMaxEmailAttempts,
	}
}

// ExecuteStep performs one node transition for the run and persists the
// resulting cursor.
func (e *Executor) ExecuteStep(ctx context.Context, run *models.WorkflowRun) StepResult {
	logger := e.logger.With("run_id", run.ID, "workflow_id", run.WorkflowID)

	workflow, err := e.workflows.WorkflowByID(ctx, run.WorkflowID)
	if err != nil {
		return e.fail(ctx, run, fmt.Errorf("failed to load workflow: %w", err))
	}

	graph := models.NewGraph(workflow)

	node, err := e.resolveCurrentNode(graph, run)
	if err != nil {
		return e.fail(ctx, run, err)
	}

	logger.DebugContext(ctx, "Executing step", "node_id", node.ID, "node_type", node.Type)

	switch node.Type {
	case models.NodeTypeTrigger:
		return e.follow(ctx, run, graph, node.ID, "")

	case models.NodeTypeEmail:
		return e.stepEmail(ctx, run, graph, node)

	case models.NodeTypeDelay:
		return e.stepDelay(ctx, run, graph, node)

	case models.NodeTypeCondition:
		return e.stepCondition(ctx, run, graph, node)

	default:
		return e.fail(ctx, run, fmt.Errorf("unknown node type %q at node %s", node.Type, node.ID))
	}
}

// resolveCurrentNode loads the run's current node. A nil cursor resolves the
// trigger and immediately passes through to its target, so the first step of
// a fresh enrollment executes real work rather than burning a tick on the
// trigger marker.
func (e *Executor) resolveCurrentNode(graph *models.Graph, run *models.WorkflowRun) (*models.Node, error) {
	if run.CurrentNodeID == nil {
		trigger, err := graph.TriggerNode()
		if err != nil {
			return nil, err
		}

		edge := graph.OutgoingEdge(trigger.ID, "")
		if edge == nil {
			// Trigger with no outgoing edge: nothing to do beyond the marker.
			return trigger, nil
		}

		return graph.FindNode(edge.Target)
	}

	return graph.FindNode(*run.CurrentNodeID)
}

func (e *Executor) stepEmail(ctx context.Context, run *models.WorkflowRun, graph *models.Graph, node *models.Node) StepResult {
	templateID := node.StringData("template_id")
	if templateID == "" {
		return e.fail(ctx, run, fmt.Errorf("email node %s has no template_id", node.ID))
	}

	contact, err := e.contacts.ContactByID(ctx, run.ContactID)
	if err != nil {
		return e.fail(ctx, run, fmt.Errorf("failed to load contact: %w", err))
	}

	record, err := e.sender.Send(ctx, mailer.SendRequest{
		TemplateID:     templateID,
		Contact:        contact,
		OrganizationID: run.OrganizationID,
		RunID:          run.ID,
	})
	if err != nil {
		return e.retryOrFail(ctx, run, node, fmt.Errorf("email dispatch failed: %w", err))
	}

	run.Attempts = 0

	e.publish(ctx, run, events.EmailSent{
		BaseEvent:  events.NewBaseEvent(events.EmailSentEvent, run.WorkflowID, run.ID),
		ContactID:  run.ContactID,
		TemplateID: templateID,
		SendID:     record.ID,
	})

	return e.follow(ctx, run, graph, node.ID, "")
}

// stepDelay parks the run until now+duration. The cursor is set to the node
// after the delay so resumption continues past it instead of re-evaluating.
func (e *Executor) stepDelay(ctx context.Context, run *models.WorkflowRun, graph *models.Graph, node *models.Node) StepResult {
	edge := graph.OutgoingEdge(node.ID, "")
	if edge == nil {
		// A trailing delay has nothing to wake up for.
		return e.complete(ctx, run)
	}

	wakeAt := time.Now().UTC().Add(parseDelay(node))

	return e.advance(ctx, run, models.RunCursor{
		CurrentNodeID:   &edge.Target,
		Status:          models.RunStatusWaiting,
		NextExecutionAt: &wakeAt,
		Attempts:        run.Attempts,
	})
}

func (e *Executor) stepCondition(ctx context.Context, run *models.WorkflowRun, graph *models.Graph, node *models.Node) StepResult {
	contact, err := e.contacts.ContactByID(ctx, run.ContactID)
	if err != nil {
		return e.fail(ctx, run, fmt.Errorf("failed to load contact: %w", err))
	}

	predicateConfig, _ := node.Data["predicate"].(map[string]any)

	var kind string
	if predicateConfig != nil {
		kind, _ = predicateConfig["kind"].(string)
	}

	matched, err := models.GetPredicate(kind).Evaluate(contact, predicateConfig)
	if err != nil {
		return e.fail(ctx, run, fmt.Errorf("condition %s: %w", node.ID, err))
	}

	branch := "false"
	if matched {
		branch = "true"
	}

	return e.follow(ctx, run, graph, node.ID, branch)
}

// follow advances the run along the selected outgoing edge, or completes the
// run when the node has none.
func (e *Executor) follow(ctx context.Context, run *models.WorkflowRun, graph *models.Graph, nodeID, branch string) StepResult {
	edge := graph.OutgoingEdge(nodeID, branch)
	if edge == nil {
		return e.complete(ctx, run)
	}

	if _, err := graph.FindNode(edge.Target); err != nil {
		return e.fail(ctx, run, err)
	}

	now := time.Now().UTC()

	return e.advance(ctx, run, models.RunCursor{
		CurrentNodeID:   &edge.Target,
		Status:          models.RunStatusRunning,
		NextExecutionAt: &now,
		Attempts:        run.Attempts,
	})
}

// retryOrFail schedules an exponential-backoff retry of the current node, or
// fails the run once the attempt cap is reached.
func (e *Executor) retryOrFail(ctx context.Context, run *models.WorkflowRun, node *models.Node, cause error) StepResult {
	attempts := run.Attempts + 1

	if attempts >= e.maxEmailAttempts {
		return e.fail(ctx, run, fmt.Errorf("%w (after %d attempts)", cause, attempts))
	}

	backoff := emailRetryBase << (attempts - 1)
	retryAt := time.Now().UTC().Add(backoff)

	result := e.advance(ctx, run, models.RunCursor{
		CurrentNodeID:   &node.ID,
		Status:          models.RunStatusWaiting,
		NextExecutionAt: &retryAt,
		Attempts:        attempts,
		LastError:       cause.Error(),
	})

	if !result.Skipped {
		result.Error = cause.Error()
	}

	return result
}

func (e *Executor) advance(ctx context.Context, run *models.WorkflowRun, cursor models.RunCursor) StepResult {
	err := e.runs.AdvanceRun(ctx, run.ID, run.Version, cursor)
	if err != nil {
		return e.storeFailure(ctx, run, err)
	}

	e.publish(ctx, run, events.RunStepped{
		BaseEvent:       events.NewBaseEvent(events.RunSteppedEvent, run.WorkflowID, run.ID),
		ContactID:       run.ContactID,
		NodeID:          derefOr(cursor.CurrentNodeID, ""),
		Status:          cursor.Status,
		NextExecutionAt: cursor.NextExecutionAt,
	})

	return StepResult{RunID: run.ID, Status: cursor.Status, NextNodeID: cursor.CurrentNodeID}
}

func (e *Executor) complete(ctx context.Context, run *models.WorkflowRun) StepResult {
	err := e.runs.CompleteRun(ctx, run.ID, run.Version)
	if err != nil {
		return e.storeFailure(ctx, run, err)
	}

	e.publish(ctx, run, events.RunCompleted{
		BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, run.WorkflowID, run.ID),
		ContactID: run.ContactID,
	})

	return StepResult{RunID: run.ID, Status: models.RunStatusCompleted}
}

// fail marks the run failed with the cause retained for operators. A
// concurrency conflict on the failure write means another invocation owns the
// run; nothing further is recorded here.
func (e *Executor) fail(ctx context.Context, run *models.WorkflowRun, cause error) StepResult {
	err := e.runs.FailRun(ctx, run.ID, run.Version, cause.Error())
	if err != nil {
		return e.storeFailure(ctx, run, err)
	}

	e.logger.WarnContext(ctx, "Run failed", "run_id", run.ID, "error", cause)

	e.publish(ctx, run, events.RunFailed{
		BaseEvent: events.NewBaseEvent(events.RunFailedEvent, run.WorkflowID, run.ID),
		ContactID: run.ContactID,
		Error:     cause.Error(),
	})

	return StepResult{RunID: run.ID, Status: models.RunStatusFailed, Error: cause.Error()}
}

func (e *Executor) storeFailure(ctx context.Context, run *models.WorkflowRun, err error) StepResult {
	if errors.Is(err, persistence.ErrConcurrencyConflict) {
		e.logger.DebugContext(ctx, "Run stepped by concurrent invocation, skipping", "run_id", run.ID)

		return StepResult{RunID: run.ID, Status: run.Status, Skipped: true}
	}

	return StepResult{RunID: run.ID, Status: models.RunStatusFailed, Error: err.Error()}
}

func (e *Executor) publish(ctx context.Context, run *models.WorkflowRun, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, run.WorkflowID, event)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}

	return *s
}
