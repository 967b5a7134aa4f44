package services

import (
	"strconv"
	"time"
)

// Trigger kinds. The kind of a workflow's trigger is immutable once created.
const (
	TriggerStatusChanged   = "status_changed"
	TriggerPriorityChanged = "priority_changed"
	TriggerAssigned        = "assigned"
	TriggerDueDateSet      = "due_date_set"
	TriggerLabeled         = "labeled"
)

var triggerKinds = map[string]bool{
	TriggerStatusChanged:   true,
	TriggerPriorityChanged: true,
	TriggerAssigned:        true,
	TriggerDueDateSet:      true,
	TriggerLabeled:         true,
}

// IsSupportedTrigger reports whether kind is a known trigger kind.
func IsSupportedTrigger(kind string) bool {
	return triggerKinds[kind]
}

// Trigger is the condition part of a workflow. Value is a comparison target
// whose meaning depends on Kind; due_date_set matches on presence alone and
// ignores Value.
type Trigger struct {
	Kind  string
	Value string
}

// ChangeContext describes what happened to a task during one mutation. It is
// never persisted; it lives only for the duration of one runner invocation.
type ChangeContext struct {
	TaskID    uint
	ProjectID uint
	ActorID   uint

	OldStatus *string
	NewStatus *string

	OldPriority *string
	NewPriority *string

	OldAssigneeID *uint
	NewAssigneeID *uint

	OldDueDate *time.Time
	NewDueDate *time.Time

	LabelsAdded   []uint
	LabelsRemoved []uint
}

// MatchesTrigger decides whether a trigger fires for a change. It is pure and
// total: an unrecognized kind returns false, never an error.
func MatchesTrigger(trigger Trigger, change *ChangeContext) bool {
	if change == nil {
		return false
	}
	switch trigger.Kind {
	case TriggerStatusChanged:
		return change.NewStatus != nil && *change.NewStatus == trigger.Value
	case TriggerPriorityChanged:
		return change.NewPriority != nil && *change.NewPriority == trigger.Value
	case TriggerAssigned:
		// An empty target matches any assignment, including clearing it.
		if trigger.Value == "" {
			return change.NewAssigneeID != nil || change.OldAssigneeID != nil
		}
		if change.NewAssigneeID == nil {
			return false
		}
		target, err := strconv.ParseUint(trigger.Value, 10, 32)
		if err != nil {
			return false
		}
		return *change.NewAssigneeID == uint(target)
	case TriggerDueDateSet:
		// Presence-only: the target value is unused for this kind.
		return change.NewDueDate != nil
	case TriggerLabeled:
		target, err := strconv.ParseUint(trigger.Value, 10, 32)
		if err != nil {
			return false
		}
		for _, id := range change.LabelsAdded {
			if id == uint(target) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
