package depgraph

import (
	"github.com/taskbridgehq/taskbridge/models"
)

// Repair returns a copy of the collection with graph issues fixed. Passes
// run in a fixed order, each one re-validating before the next: deduplicate
// edge lists, drop dangling references, drop self-references, break the
// back edge of each detected cycle, then guarantee every parent with
// subtasks keeps at least one dependency-free subtask. The fixed pass order
// makes repair deterministic and idempotent.
func Repair(tasks []models.Task) []models.Task {
	out := models.CloneTasks(tasks)

	forEachNodeDeps(out, dedupeDeps)

	report := Validate(out)
	dropEdges(out, report.Issues, IssueMissing)

	report = Validate(out)
	dropEdges(out, report.Issues, IssueSelf)

	// Breaking one cycle can expose another; loop until the graph is clean.
	// Each pass removes at least one edge, so this terminates.
	for {
		report = Validate(out)
		broke := false
		for _, iss := range report.Issues {
			if iss.Kind != IssueCircular {
				continue
			}
			// The back edge: its source is the node that last entered the
			// recursion stack.
			if removeEdge(out, iss.Node, iss.Dep) {
				broke = true
			}
		}
		if !broke {
			break
		}
	}

	ensureFreeSubtask(out)
	return out
}

// dropEdges removes every edge reported with the given kind.
func dropEdges(tasks []models.Task, issues []Issue, kind IssueKind) {
	for _, iss := range issues {
		if iss.Kind == kind {
			removeEdge(tasks, iss.Node, iss.Dep)
		}
	}
}

// removeEdge deletes owner's dependency entries resolving to target.
// Reports whether anything was removed.
func removeEdge(tasks []models.Task, owner, target models.TaskID) bool {
	removed := false
	forEachNodeDeps(tasks, func(id models.TaskID, deps *[]models.DepRef) {
		if id != owner {
			return
		}
		kept := (*deps)[:0]
		for _, d := range *deps {
			if d.Resolve(id) == target {
				removed = true
				continue
			}
			kept = append(kept, d)
		}
		*deps = kept
	})
	return removed
}

// dedupeDeps drops repeated references to the same resolved target,
// keeping the first occurrence.
func dedupeDeps(owner models.TaskID, deps *[]models.DepRef) {
	seen := make(map[models.TaskID]bool, len(*deps))
	kept := (*deps)[:0]
	for _, d := range *deps {
		target := d.Resolve(owner)
		if seen[target] {
			continue
		}
		seen[target] = true
		kept = append(kept, d)
	}
	*deps = kept
}

// ensureFreeSubtask enforces the structural rule that a parent with
// subtasks retains at least one dependency-free subtask, so expansion
// always has a valid starting point.
func ensureFreeSubtask(tasks []models.Task) {
	for i := range tasks {
		t := &tasks[i]
		if len(t.Subtasks) == 0 {
			continue
		}
		free := false
		for j := range t.Subtasks {
			if len(t.Subtasks[j].Dependencies) == 0 {
				free = true
				break
			}
		}
		if !free {
			t.Subtasks[0].Dependencies = nil
		}
	}
}

// forEachNodeDeps visits every node's dependency list, in stable order,
// allowing in-place mutation.
func forEachNodeDeps(tasks []models.Task, fn func(id models.TaskID, deps *[]models.DepRef)) {
	for i := range tasks {
		t := &tasks[i]
		fn(t.TaskID(), &t.Dependencies)
		for j := range t.Subtasks {
			st := &t.Subtasks[j]
			fn(models.NewSubtaskID(t.ID, st.ID), &st.Dependencies)
		}
	}
}
