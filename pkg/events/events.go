// Package events defines event types for run lifecycle notifications.
package events

import (
	"time"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is the event stream all run lifecycle events are published to.
const Topic = "dripflow.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunSteppedEvent   EventType = "run.stepped"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	EmailSentEvent    EventType = "email.sent"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	RunID      string         `json:"run_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RunStepped is published after each successful non-terminal step advance.
type RunStepped struct {
	BaseEvent

	ContactID       string           `json:"contact_id"`
	NodeID          string           `json:"node_id"`
	Status          models.RunStatus `json:"status"`
	NextExecutionAt *time.Time       `json:"next_execution_at,omitempty"`
}

func (e RunStepped) GetType() EventType {
	return RunSteppedEvent
}

// RunCompleted is published when a run reaches a node with no outgoing edge.
type RunCompleted struct {
	BaseEvent

	ContactID string `json:"contact_id"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

// RunFailed is published when a step marks the run failed.
type RunFailed struct {
	BaseEvent

	ContactID string `json:"contact_id"`
	Error     string `json:"error"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

// EmailSent is published after the adapter dispatches a message.
type EmailSent struct {
	BaseEvent

	ContactID  string `json:"contact_id"`
	TemplateID string `json:"template_id"`
	SendID     string `json:"send_id"`
}

func (e EmailSent) GetType() EventType {
	return EmailSentEvent
}

func NewBaseEvent(eventType EventType, workflowID, runID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		RunID:      runID,
		Metadata:   make(map[string]any),
	}
}
