package models

import (
	"fmt"
	"time"
)

// Workflow is a named, persisted directed graph of nodes and edges, owned by
// one experiment.
type Workflow struct {
	ID           string    `json:"id"`
	Name         string    `json:"name" validate:"required,min=1"`
	ExperimentID string    `json:"experiment_id" validate:"required"`
	Nodes        []*Node   `json:"nodes"`
	Edges        []*Edge   `json:"edges"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Edge is a directed dependency from a predecessor node to a successor node.
type Edge struct {
	StartNodeID string `json:"start_node_id" validate:"required"`
	EndNodeID   string `json:"end_node_id" validate:"required"`
}

// NodeByID returns the node with the given id, if present.
func (w *Workflow) NodeByID(id string) (*Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return nil, false
}

// HasNode reports whether a node with the given id exists in the workflow.
func (w *Workflow) HasNode(id string) bool {
	_, ok := w.NodeByID(id)

	return ok
}

// ValidateGraph checks the structural invariants: node ids unique within the
// workflow, every edge endpoint resolving to an existing node.
func (w *Workflow) ValidateGraph() error {
	seen := make(map[string]bool, len(w.Nodes))

	for _, n := range w.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}

		seen[n.ID] = true
	}

	for _, e := range w.Edges {
		if !seen[e.StartNodeID] {
			return fmt.Errorf("edge references unknown start node %q", e.StartNodeID)
		}

		if !seen[e.EndNodeID] {
			return fmt.Errorf("edge references unknown end node %q", e.EndNodeID)
		}
	}

	return nil
}

// DanglingEdges returns edges whose endpoints no longer resolve to a node.
// Node deletion does not cascade to edges, so consumers filter these out.
func (w *Workflow) DanglingEdges() []*Edge {
	var dangling []*Edge

	for _, e := range w.Edges {
		if !w.HasNode(e.StartNodeID) || !w.HasNode(e.EndNodeID) {
			dangling = append(dangling, e)
		}
	}

	return dangling
}

// liveEdges is Edges with dangling entries filtered out.
func (w *Workflow) liveEdges() []*Edge {
	live := make([]*Edge, 0, len(w.Edges))

	for _, e := range w.Edges {
		if w.HasNode(e.StartNodeID) && w.HasNode(e.EndNodeID) {
			live = append(live, e)
		}
	}

	return live
}

// TopologicalOrder returns the nodes in dependency order (Kahn's algorithm),
// ignoring dangling edges. The store itself accepts cycles; this fails only
// when callers (execution) need a schedulable order.
func (w *Workflow) TopologicalOrder() ([]*Node, error) {
	indegree := make(map[string]int, len(w.Nodes))
	successors := make(map[string][]string, len(w.Nodes))

	for _, n := range w.Nodes {
		indegree[n.ID] = 0
	}

	for _, e := range w.liveEdges() {
		successors[e.StartNodeID] = append(successors[e.StartNodeID], e.EndNodeID)
		indegree[e.EndNodeID]++
	}

	var ready []string

	for _, n := range w.Nodes {
		if indegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	ordered := make([]*Node, 0, len(w.Nodes))

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]

		node, _ := w.NodeByID(id)
		ordered = append(ordered, node)

		for _, succ := range successors[id] {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	if len(ordered) != len(w.Nodes) {
		return nil, fmt.Errorf("workflow %s contains a cycle", w.ID)
	}

	return ordered, nil
}
