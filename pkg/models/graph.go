package models

import (
	"errors"
	"fmt"
)

// Graph-level errors. A run that hits one of these is marked failed, never
// silently dropped.
var (
	// ErrNodeNotFound indicates a referenced node id does not exist in the workflow.
	ErrNodeNotFound = errors.New("node not found in workflow")

	// ErrNoTrigger indicates the workflow has no trigger node to start from.
	ErrNoTrigger = errors.New("workflow has no trigger node")
)

// Graph is a read-only traversal view over a workflow's nodes and edges.
type Graph struct {
	workflow *Workflow
	nodes    map[string]*Node
	outgoing map[string][]*Edge
}

// NewGraph indexes a workflow for traversal. The workflow is borrowed, not copied.
func NewGraph(workflow *Workflow) *Graph {
	g := &Graph{
		workflow: workflow,
		nodes:    make(map[string]*Node, len(workflow.Nodes)),
		outgoing: make(map[string][]*Edge, len(workflow.Edges)),
	}

	for _, node := range workflow.Nodes {
		g.nodes[node.ID] = node
	}

	// Edge order is preserved: the "first edge wins" tie-break below depends
	// on the definition order of the workflow's edge list.
	for _, edge := range workflow.Edges {
		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge)
	}

	return g
}

// FindNode returns the node with the given id.
func (g *Graph) FindNode(id string) (*Node, error) {
	node, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %q: %w", id, ErrNodeNotFound)
	}

	return node, nil
}

// OutgoingEdges returns all edges leaving the given node, in definition order.
func (g *Graph) OutgoingEdges(nodeID string) []*Edge {
	return g.outgoing[nodeID]
}

// OutgoingEdge selects the edge leaving nodeID for the given branch label.
// Selection order: exact label match, then the first unlabeled edge, then the
// first edge of any label. Returns nil when the node has no outgoing edges.
func (g *Graph) OutgoingEdge(nodeID, branch string) *Edge {
	edges := g.outgoing[nodeID]
	if len(edges) == 0 {
		return nil
	}

	if branch != "" {
		for _, edge := range edges {
			if edge.SourceHandle == branch {
				return edge
			}
		}
	}

	for _, edge := range edges {
		if edge.SourceHandle == "" {
			return edge
		}
	}

	return edges[0]
}

// TriggerNode resolves the workflow's entry point: the first node of type
// trigger in definition order.
func (g *Graph) TriggerNode() (*Node, error) {
	for _, node := range g.workflow.Nodes {
		if node.IsTrigger() {
			return node, nil
		}
	}

	return nil, fmt.Errorf("workflow %q: %w", g.workflow.ID, ErrNoTrigger)
}
