package models

import "time"

// Workflow execution states. Executing is the only non-terminal state; a run
// always finishes in success or partial_failure and is never retried.
const (
	ExecutionStatusExecuting      = "executing"
	ExecutionStatusSuccess        = "success"
	ExecutionStatusPartialFailure = "partial_failure"
)

// Log entry markers written around the per-action entries.
const (
	LogActionTriggered = "triggered"
	LogActionFailed    = "failed"
)

// Workflow is an automation rule: one trigger plus an ordered action list,
// owned by a project. Actions execute left to right; later actions see the
// effects of earlier ones.
type Workflow struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ProjectID    uint      `gorm:"index" json:"project_id"`
	Name         string    `gorm:"not null" json:"name"`
	Description  string    `gorm:"type:text" json:"description"`
	// No column default: gorm drops zero-valued fields with a default tag on
	// Create, which would silently re-enable rules saved as disabled.
	Enabled      bool      `json:"enabled"`
	TriggerType  string    `gorm:"not null" json:"trigger_type"` // status_changed, priority_changed, assigned, due_date_set, labeled
	TriggerValue string    `json:"trigger_value"`
	Actions      string    `gorm:"type:text" json:"actions"` // JSON: [{type,value,meta}]
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WorkflowExecution records one run of a workflow against one task. Created in
// the executing state when the trigger fires and finalized exactly once.
type WorkflowExecution struct {
	ID         string     `gorm:"primaryKey" json:"id"` // uuid
	WorkflowID uint       `gorm:"index" json:"workflow_id"`
	TaskID     uint       `gorm:"index" json:"task_id"`
	Status     string     `gorm:"index" json:"status"`    // executing, success, partial_failure
	Results    string     `gorm:"type:text" json:"results"` // JSON: []ActionOutcome
	StartedAt  time.Time  `json:"started_at"`
	ExecutedAt *time.Time `json:"executed_at"`

	Workflow Workflow `gorm:"foreignKey:WorkflowID" json:"workflow,omitempty"`
}

// WorkflowLog is one append-only audit line: a "triggered" entry opens a run,
// followed by one entry per executed or failed action. Never updated or deleted.
type WorkflowLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WorkflowID  uint      `gorm:"index" json:"workflow_id"`
	TaskID      uint      `gorm:"index" json:"task_id"`
	ExecutionID string    `gorm:"index" json:"execution_id"`
	Action      string    `gorm:"not null" json:"action"` // action kind, or triggered/failed
	Message     string    `json:"message"`
	Detail      string    `gorm:"type:text" json:"detail"` // serialized outcome or error
	CreatedAt   time.Time `json:"created_at"`
}
