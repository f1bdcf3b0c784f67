// Package depgraph validates and repairs the task dependency graph.
//
// Nodes are every top-level task ID and every dotted subtask ID; edges come
// from each node's dependency list after the historical bare-numeric sibling
// shorthand has been resolved. Validation never mutates its input and repair
// always returns a new collection.
package depgraph

import (
	"fmt"

	"github.com/taskbridgehq/taskbridge/models"
)

// IssueKind names a class of graph integrity problem.
type IssueKind string

const (
	// IssueMissing is an edge whose target is not in the node set.
	IssueMissing IssueKind = "missing"
	// IssueSelf is an edge whose target equals its source.
	IssueSelf IssueKind = "self"
	// IssueCircular is a dependency cycle.
	IssueCircular IssueKind = "circular"
)

// Issue is a single finding with enough context to act on it.
type Issue struct {
	Kind    IssueKind       `json:"kind"`
	Node    models.TaskID   `json:"node"`
	Dep     models.TaskID   `json:"dep,omitempty"`
	Cycle   []models.TaskID `json:"cycle,omitempty"`
	Message string          `json:"message"`
}

// Report is the outcome of a validation pass.
type Report struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// node is one graph vertex with its resolved outgoing edges.
type node struct {
	id   models.TaskID
	deps []models.TaskID
}

// buildNodes flattens tasks and subtasks into vertices in stable input
// order, resolving the bare sibling shorthand against each owner.
func buildNodes(tasks []models.Task) []node {
	nodes := make([]node, 0, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		tn := node{id: t.TaskID()}
		for _, d := range t.Dependencies {
			tn.deps = append(tn.deps, d.Resolve(tn.id))
		}
		nodes = append(nodes, tn)
		for j := range t.Subtasks {
			st := &t.Subtasks[j]
			sn := node{id: models.NewSubtaskID(t.ID, st.ID)}
			for _, d := range st.Dependencies {
				sn.deps = append(sn.deps, d.Resolve(sn.id))
			}
			nodes = append(nodes, sn)
		}
	}
	return nodes
}

// Validate inspects the dependency graph and reports dangling references,
// self-dependencies and cycles, in that order.
func Validate(tasks []models.Task) Report {
	nodes := buildNodes(tasks)
	exists := make(map[models.TaskID]bool, len(nodes))
	for _, n := range nodes {
		exists[n.id] = true
	}

	var issues []Issue

	for _, n := range nodes {
		for _, dep := range n.deps {
			if !exists[dep] {
				issues = append(issues, Issue{
					Kind:    IssueMissing,
					Node:    n.id,
					Dep:     dep,
					Message: fmt.Sprintf("task %s depends on %s, which does not exist", n.id, dep),
				})
			}
		}
	}

	for _, n := range nodes {
		for _, dep := range n.deps {
			if dep == n.id {
				issues = append(issues, Issue{
					Kind:    IssueSelf,
					Node:    n.id,
					Dep:     dep,
					Message: fmt.Sprintf("task %s depends on itself", n.id),
				})
			}
		}
	}

	issues = append(issues, findCycles(nodes, exists)...)

	return Report{Valid: len(issues) == 0, Issues: issues}
}

// findCycles runs a depth-first traversal with a recursion stack; a
// back-edge to a node currently on the stack is reported with the full
// cycle path for diagnostics.
func findCycles(nodes []node, exists map[models.TaskID]bool) []Issue {
	byID := make(map[models.TaskID]*node, len(nodes))
	for i := range nodes {
		byID[nodes[i].id] = &nodes[i]
	}

	visited := make(map[models.TaskID]bool, len(nodes))
	onStack := make(map[models.TaskID]bool, len(nodes))
	var stack []models.TaskID
	var issues []Issue

	var visit func(id models.TaskID)
	visit = func(id models.TaskID) {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, dep := range byID[id].deps {
			// Dangling and self edges are reported separately.
			if !exists[dep] || dep == id {
				continue
			}
			if onStack[dep] {
				issues = append(issues, Issue{
					Kind:    IssueCircular,
					Node:    id,
					Dep:     dep,
					Cycle:   cyclePath(stack, dep),
					Message: fmt.Sprintf("circular dependency: %s", formatCycle(cyclePath(stack, dep))),
				})
				continue
			}
			if !visited[dep] {
				visit(dep)
			}
		}

		stack = stack[:len(stack)-1]
		onStack[id] = false
	}

	for _, n := range nodes {
		if !visited[n.id] {
			visit(n.id)
		}
	}
	return issues
}

// cyclePath slices the recursion stack from the back-edge target onward.
func cyclePath(stack []models.TaskID, from models.TaskID) []models.TaskID {
	for i, id := range stack {
		if id == from {
			out := make([]models.TaskID, len(stack)-i)
			copy(out, stack[i:])
			return out
		}
	}
	return append([]models.TaskID(nil), stack...)
}

func formatCycle(path []models.TaskID) string {
	s := ""
	for i, id := range path {
		if i > 0 {
			s += " -> "
		}
		s += id.String()
	}
	if len(path) > 0 {
		s += " -> " + path[0].String()
	}
	return s
}
