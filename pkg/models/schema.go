package models

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// workflowDefinitionSchema is the JSON Schema every workflow definition must
// satisfy before it is accepted for storage. Structural only: graph-level
// rules (trigger reachability, edge targets) are checked separately.
var workflowDefinitionSchema = map[string]any{
	"type":     "object",
	"required": []any{"name", "organization_id", "nodes", "edges"},
	"properties": map[string]any{
		"name":            map[string]any{"type": "string", "minLength": 3},
		"organization_id": map[string]any{"type": "string", "minLength": 1},
		"active":          map[string]any{"type": "boolean"},
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "type"},
				"properties": map[string]any{
					"id":   map[string]any{"type": "string", "minLength": 1},
					"type": map[string]any{"type": "string", "enum": []any{"trigger", "email", "delay", "condition"}},
					"data": map[string]any{"type": "object"},
				},
			},
		},
		"edges": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"source", "target"},
				"properties": map[string]any{
					"id":            map[string]any{"type": "string"},
					"source":        map[string]any{"type": "string", "minLength": 1},
					"target":        map[string]any{"type": "string", "minLength": 1},
					"source_handle": map[string]any{"type": "string"},
				},
			},
		},
	},
}

// ValidateWorkflowDefinition checks a raw workflow document against the
// definition schema, then the graph rules: node ids unique, edges referencing
// existing nodes, exactly one trigger node.
func ValidateWorkflowDefinition(definition map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(workflowDefinitionSchema)
	documentLoader := gojsonschema.NewGoLoader(definition)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate workflow definition: %w", err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("invalid workflow definition: %s", strings.Join(descriptions, "; "))
	}

	return nil
}

// ValidateGraph enforces the structural invariants the schema cannot express.
func ValidateGraph(workflow *Workflow) error {
	seen := make(map[string]bool, len(workflow.Nodes))
	triggers := 0

	for _, node := range workflow.Nodes {
		if seen[node.ID] {
			return fmt.Errorf("duplicate node id %q", node.ID)
		}

		seen[node.ID] = true

		if node.IsTrigger() {
			triggers++
		}
	}

	if triggers != 1 {
		return fmt.Errorf("workflow must have exactly one trigger node, found %d: %w", triggers, ErrNoTrigger)
	}

	for _, edge := range workflow.Edges {
		if !seen[edge.Source] {
			return fmt.Errorf("edge %q source %q: %w", edge.ID, edge.Source, ErrNodeNotFound)
		}

		if !seen[edge.Target] {
			return fmt.Errorf("edge %q target %q: %w", edge.ID, edge.Target, ErrNodeNotFound)
		}
	}

	return nil
}
