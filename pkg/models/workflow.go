// Package models defines the core domain models for contact sequence automation.
package models

import "time"

// NodeType identifies the behavior of a workflow node.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"   // Entry point, passes straight through
	NodeTypeEmail     NodeType = "email"     // Sends a templated email to the contact
	NodeTypeDelay     NodeType = "delay"     // Parks the run until a wall-clock deadline
	NodeTypeCondition NodeType = "condition" // Branches on a contact-field predicate
)

// Workflow is an immutable-per-version automation graph owned by an organization.
type Workflow struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id" validate:"required"`
	Name           string    `json:"name"            validate:"required,min=3"`
	Nodes          []*Node   `json:"nodes"`
	Edges          []*Edge   `json:"edges"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Node is a unit of work in a workflow graph. Data carries the type-specific
// configuration: template_id for email nodes, duration and unit for delay
// nodes. Condition branching lives on the edges, not the node.
type Node struct {
	ID   string         `json:"id"   validate:"required"`
	Type NodeType       `json:"type" validate:"required,oneof=trigger email delay condition"`
	Data map[string]any `json:"data"`
}

// Edge is a directed transition between two nodes. SourceHandle is the
// optional branch label a condition node selects on ("true" / "false").
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
}

func (n *Node) IsTrigger() bool {
	return n.Type == NodeTypeTrigger
}

// StringData returns a string-typed config value, empty when absent or not a string.
func (n *Node) StringData(key string) string {
	v, _ := n.Data[key].(string)

	return v
}
