package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TaskID identifies a task or subtask. Parent is always a positive top-level
// task ID; Child is zero for top-level tasks and the positive subtask ID
// otherwise. The dotted string form ("7", "7.2") is the canonical external
// representation.
type TaskID struct {
	Parent int
	Child  int
}

// NewTaskID returns the ID of a top-level task.
func NewTaskID(id int) TaskID { return TaskID{Parent: id} }

// NewSubtaskID returns the dotted ID of a subtask under a parent task.
func NewSubtaskID(parent, child int) TaskID { return TaskID{Parent: parent, Child: child} }

// IsSub reports whether the ID addresses a subtask.
func (id TaskID) IsSub() bool { return id.Child > 0 }

// IsZero reports whether the ID is unset.
func (id TaskID) IsZero() bool { return id.Parent == 0 }

// ParentID returns the top-level ID a subtask belongs to. For a top-level
// task it returns the ID itself.
func (id TaskID) ParentID() TaskID { return TaskID{Parent: id.Parent} }

func (id TaskID) String() string {
	if id.IsSub() {
		return strconv.Itoa(id.Parent) + "." + strconv.Itoa(id.Child)
	}
	return strconv.Itoa(id.Parent)
}

// ParseTaskID parses "7" or "7.2" into a TaskID.
func ParseTaskID(s string) (TaskID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TaskID{}, fmt.Errorf("empty task id")
	}
	parent, child, dotted := strings.Cut(s, ".")
	p, err := strconv.Atoi(parent)
	if err != nil || p <= 0 {
		return TaskID{}, fmt.Errorf("invalid task id %q", s)
	}
	if !dotted {
		return TaskID{Parent: p}, nil
	}
	c, err := strconv.Atoi(child)
	if err != nil || c <= 0 {
		return TaskID{}, fmt.Errorf("invalid subtask id %q", s)
	}
	return TaskID{Parent: p, Child: c}, nil
}

// MustParseTaskID is ParseTaskID for literals in tests and fixtures.
func MustParseTaskID(s string) TaskID {
	id, err := ParseTaskID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// MarshalJSON emits the dotted string for subtasks and a bare number for
// top-level IDs, matching the historical file format.
func (id TaskID) MarshalJSON() ([]byte, error) {
	if id.IsSub() {
		return json.Marshal(id.String())
	}
	return json.Marshal(id.Parent)
}

// UnmarshalJSON accepts both a number and a dotted string.
func (id *TaskID) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n <= 0 {
			return fmt.Errorf("invalid task id %d", n)
		}
		*id = TaskID{Parent: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("task id must be a number or dotted string: %s", data)
	}
	parsed, err := ParseTaskID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// DepRef is a single dependency-list entry. Entries decoded from a bare JSON
// number are kept distinguishable from dotted strings because the historical
// shorthand lets a subtask reference sibling subtask N as plain N.
type DepRef struct {
	ID   TaskID
	Bare bool
}

// Dep builds a fully-qualified dependency reference.
func Dep(id TaskID) DepRef { return DepRef{ID: id} }

// BareDep builds a bare numeric dependency reference as read from legacy
// files.
func BareDep(n int) DepRef { return DepRef{ID: TaskID{Parent: n}, Bare: true} }

// Resolve returns the fully-qualified target of the reference as seen from
// the owning node. A bare number on a subtask means sibling subtask N under
// the same parent; everywhere else the reference already is the target.
func (d DepRef) Resolve(owner TaskID) TaskID {
	if d.Bare && owner.IsSub() {
		return TaskID{Parent: owner.Parent, Child: d.ID.Parent}
	}
	return d.ID
}

func (d DepRef) String() string { return d.ID.String() }

// MarshalJSON reserves bare numbers for the sibling shorthand. Qualified
// references are always emitted as strings: a subtask's reference to
// top-level task 3 written as plain 3 would be re-read as shorthand for
// sibling 3, changing the edge's target across a persist/reload cycle.
func (d DepRef) MarshalJSON() ([]byte, error) {
	if d.Bare {
		return json.Marshal(d.ID.Parent)
	}
	return json.Marshal(d.ID.String())
}

func (d *DepRef) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n <= 0 {
			return fmt.Errorf("invalid dependency id %d", n)
		}
		*d = DepRef{ID: TaskID{Parent: n}, Bare: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("dependency must be a number or dotted string: %s", data)
	}
	id, err := ParseTaskID(s)
	if err != nil {
		return err
	}
	*d = DepRef{ID: id}
	return nil
}
