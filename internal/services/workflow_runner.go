package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"flowboard/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ExecutionResult is what one triggered workflow reports back to the caller.
type ExecutionResult struct {
	WorkflowID   uint            `json:"workflow_id"`
	WorkflowName string          `json:"workflow_name"`
	ExecutionID  string          `json:"execution_id"`
	Triggered    bool            `json:"triggered"`
	Status       string          `json:"status"`
	Actions      []ActionOutcome `json:"actions_executed"`
}

// WorkflowRunner finds enabled workflows matching a change, executes their
// actions strictly in list order and persists an execution record plus one log
// entry per action. Workflows matching the same change run serially so two
// rules never race on the same task field.
type WorkflowRunner struct {
	db            *gorm.DB
	logger        *logrus.Logger
	executor      *ActionExecutor
	tasks         TaskStore
	actionTimeout time.Duration
}

func NewWorkflowRunner(db *gorm.DB, logger *logrus.Logger, executor *ActionExecutor, tasks TaskStore, actionTimeout time.Duration) *WorkflowRunner {
	if logger == nil {
		logger = logrus.New()
	}
	if actionTimeout <= 0 {
		actionTimeout = 5 * time.Second
	}
	return &WorkflowRunner{
		db:            db,
		logger:        logger,
		executor:      executor,
		tasks:         tasks,
		actionTimeout: actionTimeout,
	}
}

// HandleChange runs every enabled workflow of the project whose trigger
// matches the change. A failure to load workflows is the one hard error;
// everything downstream is reported as outcome data, never thrown.
func (r *WorkflowRunner) HandleChange(ctx context.Context, change *ChangeContext) ([]ExecutionResult, error) {
	var workflows []models.Workflow
	if err := r.db.WithContext(ctx).
		Where("project_id = ? AND enabled = ?", change.ProjectID, true).
		Order("id ASC").
		Find(&workflows).Error; err != nil {
		return nil, fmt.Errorf("load workflows: %w", err)
	}

	var results []ExecutionResult
	for _, wf := range workflows {
		trigger := Trigger{Kind: wf.TriggerType, Value: wf.TriggerValue}
		if !MatchesTrigger(trigger, change) {
			continue
		}
		results = append(results, r.run(ctx, wf, change))
	}
	return results, nil
}

// RunWorkflow re-triggers one workflow against one task, bypassing the
// matcher. Used for manual/administrative re-runs; disabled workflows are
// rejected here too.
func (r *WorkflowRunner) RunWorkflow(ctx context.Context, workflowID, taskID uint) (*ExecutionResult, error) {
	var wf models.Workflow
	if err := r.db.WithContext(ctx).First(&wf, workflowID).Error; err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	if !wf.Enabled {
		return nil, fmt.Errorf("workflow %d is disabled", workflowID)
	}
	task, err := r.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	change := &ChangeContext{
		TaskID:    task.ID,
		ProjectID: task.ProjectID,
		ActorID:   task.CreatorID,
	}
	result := r.run(ctx, wf, change)
	return &result, nil
}

// run executes one matched workflow: execution record in executing state, a
// "triggered" log entry, each action in order against a fresh task snapshot,
// then exactly one terminal transition. A workflow never fully fails and is
// never retried automatically.
func (r *WorkflowRunner) run(ctx context.Context, wf models.Workflow, change *ChangeContext) ExecutionResult {
	exec := &models.WorkflowExecution{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		TaskID:     change.TaskID,
		Status:     models.ExecutionStatusExecuting,
		StartedAt:  time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(exec).Error; err != nil {
		r.logger.Warnf("workflow %d: create execution failed: %v", wf.ID, err)
	}
	r.appendLog(ctx, wf.ID, change.TaskID, exec.ID, models.LogActionTriggered,
		fmt.Sprintf("workflow %q triggered by %s", wf.Name, wf.TriggerType), "")

	result := ExecutionResult{
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		ExecutionID:  exec.ID,
		Triggered:    true,
	}

	actions, err := ParseActions(wf.Actions)
	if err != nil {
		// Saved rules are validated, so this only happens to rows written
		// before validation existed. Surface it in the audit trail.
		r.appendLog(ctx, wf.ID, change.TaskID, exec.ID, models.LogActionFailed, "invalid action list", err.Error())
		result.Status = models.ExecutionStatusPartialFailure
		r.finalize(ctx, exec, result.Status, nil)
		return result
	}

	var outcomes []ActionOutcome
	allOK := true
	for _, act := range actions {
		// Re-read the task before each action so later actions observe the
		// effects of earlier ones in the same run.
		task, err := r.tasks.GetTask(ctx, change.TaskID)
		if err != nil {
			outcome := failure(act.Type, fmt.Errorf("load task snapshot: %w", err))
			outcomes = append(outcomes, outcome)
			allOK = false
			r.logOutcome(ctx, wf.ID, change, exec.ID, outcome)
			continue
		}

		actCtx, cancel := context.WithTimeout(ctx, r.actionTimeout)
		outcome := r.executor.Execute(actCtx, wf.ID, act, change, task)
		cancel()

		outcomes = append(outcomes, outcome)
		if !outcome.Success {
			allOK = false
		}
		r.logOutcome(ctx, wf.ID, change, exec.ID, outcome)
	}

	result.Actions = outcomes
	if allOK {
		result.Status = models.ExecutionStatusSuccess
	} else {
		result.Status = models.ExecutionStatusPartialFailure
	}
	r.finalize(ctx, exec, result.Status, outcomes)
	return result
}

func (r *WorkflowRunner) logOutcome(ctx context.Context, workflowID uint, change *ChangeContext, executionID string, outcome ActionOutcome) {
	if outcome.Success {
		detail, _ := json.Marshal(outcome.Detail)
		r.appendLog(ctx, workflowID, change.TaskID, executionID, outcome.Type,
			fmt.Sprintf("action %s executed", outcome.Type), string(detail))
		return
	}
	r.appendLog(ctx, workflowID, change.TaskID, executionID, models.LogActionFailed,
		fmt.Sprintf("action %s failed", outcome.Type), outcome.Error)
}

// appendLog writes one immutable audit line. Log failures are reported but do
// not affect the run.
func (r *WorkflowRunner) appendLog(ctx context.Context, workflowID, taskID uint, executionID, action, message, detail string) {
	entry := &models.WorkflowLog{
		WorkflowID:  workflowID,
		TaskID:      taskID,
		ExecutionID: executionID,
		Action:      action,
		Message:     message,
		Detail:      detail,
		CreatedAt:   time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.logger.Warnf("workflow %d: append log failed: %v", workflowID, err)
	}
}

func (r *WorkflowRunner) finalize(ctx context.Context, exec *models.WorkflowExecution, status string, outcomes []ActionOutcome) {
	now := time.Now()
	results, _ := json.Marshal(outcomes)
	updates := map[string]interface{}{
		"status":      status,
		"results":     string(results),
		"executed_at": &now,
	}
	if err := r.db.WithContext(ctx).Model(&models.WorkflowExecution{}).
		Where("id = ?", exec.ID).
		Updates(updates).Error; err != nil {
		r.logger.Warnf("workflow %d: finalize execution %s failed: %v", exec.WorkflowID, exec.ID, err)
	}
}
