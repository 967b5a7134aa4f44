package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"flowboard/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newWorkflowTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Workflow{},
		&models.WorkflowExecution{},
		&models.WorkflowLog{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func newTestRunner(t *testing.T, db *gorm.DB, f *fakeCollaborators) *WorkflowRunner {
	t.Helper()
	exec := newTestExecutor(f)
	return NewWorkflowRunner(db, nil, exec, f, time.Second)
}

func createWorkflow(t *testing.T, db *gorm.DB, wf models.Workflow) models.Workflow {
	t.Helper()
	if err := db.Create(&wf).Error; err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	return wf
}

func TestWorkflowRunner_SuccessfulRun(t *testing.T) {
	db := newWorkflowTestDB(t)
	f := &fakeCollaborators{}
	runner := newTestRunner(t, db, f)

	wf := createWorkflow(t, db, models.Workflow{
		ProjectID:    1,
		Name:         "on done",
		Enabled:      true,
		TriggerType:  TriggerStatusChanged,
		TriggerValue: "done",
		Actions:      `[{"type":"assign","value":"7"},{"type":"add_label","value":"3"}]`,
	})

	change := &ChangeContext{TaskID: 42, ProjectID: 1, ActorID: 9, NewStatus: strPtr("done")}
	results, err := runner.HandleChange(context.Background(), change)
	if err != nil {
		t.Fatalf("HandleChange failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if !res.Triggered || res.Status != models.ExecutionStatusSuccess {
		t.Errorf("result = %+v, want triggered success", res)
	}
	if len(res.Actions) != 2 || !res.Actions[0].Success || !res.Actions[1].Success {
		t.Errorf("expected 2 successful outcomes, got %+v", res.Actions)
	}

	var exec models.WorkflowExecution
	if err := db.First(&exec, "workflow_id = ?", wf.ID).Error; err != nil {
		t.Fatalf("load execution: %v", err)
	}
	if exec.Status != models.ExecutionStatusSuccess {
		t.Errorf("execution status = %s, want success", exec.Status)
	}
	if exec.ExecutedAt == nil {
		t.Error("finalized execution must have executed_at set")
	}
	if exec.TaskID != 42 {
		t.Errorf("execution task = %d, want 42", exec.TaskID)
	}

	var logs []models.WorkflowLog
	if err := db.Order("id ASC").Find(&logs, "workflow_id = ?", wf.ID).Error; err != nil {
		t.Fatalf("load logs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected triggered + 2 action logs, got %d", len(logs))
	}
	if logs[0].Action != models.LogActionTriggered {
		t.Errorf("first log = %s, want triggered", logs[0].Action)
	}
	if logs[1].Action != ActionAssign || logs[2].Action != ActionAddLabel {
		t.Errorf("action logs out of order: %s, %s", logs[1].Action, logs[2].Action)
	}
	for _, entry := range logs {
		if entry.ExecutionID != exec.ID {
			t.Errorf("log %d not tied to execution %s", entry.ID, exec.ID)
		}
	}
}

func TestWorkflowRunner_NoMatchLeavesNoTrace(t *testing.T) {
	db := newWorkflowTestDB(t)
	f := &fakeCollaborators{}
	runner := newTestRunner(t, db, f)

	createWorkflow(t, db, models.Workflow{
		ProjectID:    1,
		Name:         "on done",
		Enabled:      true,
		TriggerType:  TriggerStatusChanged,
		TriggerValue: "done",
		Actions:      `[{"type":"assign","value":"7"}]`,
	})

	change := &ChangeContext{TaskID: 42, ProjectID: 1, NewPriority: strPtr("high")}
	results, err := runner.HandleChange(context.Background(), change)
	if err != nil {
		t.Fatalf("HandleChange failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}

	var execCount, logCount int64
	db.Model(&models.WorkflowExecution{}).Count(&execCount)
	db.Model(&models.WorkflowLog{}).Count(&logCount)
	if execCount != 0 || logCount != 0 {
		t.Errorf("non-matching change must leave no records, got %d executions, %d logs", execCount, logCount)
	}
	if len(f.calls) != 0 {
		t.Errorf("no actions should run, got %v", f.calls)
	}
}

// failingStatusStore fails SetStatus but leaves every other collaborator
// working, to exercise continue-on-failure.
type failingStatusStore struct {
	*fakeCollaborators
}

func (f *failingStatusStore) SetStatus(ctx context.Context, taskID uint, status string) error {
	f.calls = append(f.calls, "status-failed")
	return errors.New("column is locked")
}

func TestWorkflowRunner_PartialFailureKeepsGoing(t *testing.T) {
	db := newWorkflowTestDB(t)
	inner := &fakeCollaborators{}
	f := &failingStatusStore{fakeCollaborators: inner}
	exec := NewActionExecutor(f, inner, inner, inner, inner, nil)
	runner := NewWorkflowRunner(db, nil, exec, f, time.Second)

	wf := createWorkflow(t, db, models.Workflow{
		ProjectID:    1,
		Name:         "escalate",
		Enabled:      true,
		TriggerType:  TriggerPriorityChanged,
		TriggerValue: "high",
		Actions:      `[{"type":"change_status","value":"done"},{"type":"send_webhook","meta":{"url":"https://example.com/h"}}]`,
	})

	change := &ChangeContext{TaskID: 42, ProjectID: 1, NewPriority: strPtr("high")}
	results, err := runner.HandleChange(context.Background(), change)
	if err != nil {
		t.Fatalf("HandleChange failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Status != models.ExecutionStatusPartialFailure {
		t.Errorf("status = %s, want partial_failure", res.Status)
	}
	if len(res.Actions) != 2 {
		t.Fatalf("both actions must report an outcome, got %d", len(res.Actions))
	}
	if res.Actions[0].Success {
		t.Error("first action should have failed")
	}
	if !res.Actions[1].Success {
		t.Error("webhook after a failed action must still execute")
	}
	if len(inner.sent) != 1 {
		t.Errorf("expected the webhook to be delivered, got %d", len(inner.sent))
	}

	var dbExec models.WorkflowExecution
	if err := db.First(&dbExec, "workflow_id = ?", wf.ID).Error; err != nil {
		t.Fatalf("load execution: %v", err)
	}
	if dbExec.Status != models.ExecutionStatusPartialFailure {
		t.Errorf("persisted status = %s, want partial_failure", dbExec.Status)
	}

	var failedLogs int64
	db.Model(&models.WorkflowLog{}).Where("action = ?", models.LogActionFailed).Count(&failedLogs)
	if failedLogs != 1 {
		t.Errorf("expected 1 failed log entry, got %d", failedLogs)
	}
}

func TestWorkflowRunner_ZeroActionsIsSuccess(t *testing.T) {
	db := newWorkflowTestDB(t)
	f := &fakeCollaborators{}
	runner := newTestRunner(t, db, f)

	createWorkflow(t, db, models.Workflow{
		ProjectID:    1,
		Name:         "empty",
		Enabled:      true,
		TriggerType:  TriggerStatusChanged,
		TriggerValue: "done",
		Actions:      `[]`,
	})

	change := &ChangeContext{TaskID: 42, ProjectID: 1, NewStatus: strPtr("done")}
	results, err := runner.HandleChange(context.Background(), change)
	if err != nil {
		t.Fatalf("HandleChange failed: %v", err)
	}
	if len(results) != 1 || results[0].Status != models.ExecutionStatusSuccess {
		t.Fatalf("empty action list must finish as success, got %+v", results)
	}
	if len(results[0].Actions) != 0 {
		t.Errorf("expected no outcomes, got %+v", results[0].Actions)
	}

	var logCount int64
	db.Model(&models.WorkflowLog{}).Count(&logCount)
	if logCount != 1 {
		t.Errorf("expected only the triggered entry, got %d logs", logCount)
	}
}

func TestWorkflowRunner_DisabledWorkflowNeverFires(t *testing.T) {
	db := newWorkflowTestDB(t)
	f := &fakeCollaborators{}
	runner := newTestRunner(t, db, f)

	wf := createWorkflow(t, db, models.Workflow{
		ProjectID:    1,
		Name:         "paused",
		Enabled:      false,
		TriggerType:  TriggerStatusChanged,
		TriggerValue: "done",
		Actions:      `[{"type":"assign","value":"7"}]`,
	})

	change := &ChangeContext{TaskID: 42, ProjectID: 1, NewStatus: strPtr("done")}
	results, err := runner.HandleChange(context.Background(), change)
	if err != nil {
		t.Fatalf("HandleChange failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("disabled workflow fired: %+v", results)
	}

	// Manual re-runs reject disabled workflows too.
	if _, err := runner.RunWorkflow(context.Background(), wf.ID, 42); err == nil {
		t.Error("RunWorkflow must reject a disabled workflow")
	}
}

func TestWorkflowRunner_ManualRunBypassesMatcher(t *testing.T) {
	db := newWorkflowTestDB(t)
	f := &fakeCollaborators{}
	runner := newTestRunner(t, db, f)

	wf := createWorkflow(t, db, models.Workflow{
		ProjectID:    1,
		Name:         "manual",
		Enabled:      true,
		TriggerType:  TriggerStatusChanged,
		TriggerValue: "done",
		Actions:      `[{"type":"set_priority","value":"high"}]`,
	})

	res, err := runner.RunWorkflow(context.Background(), wf.ID, 42)
	if err != nil {
		t.Fatalf("RunWorkflow failed: %v", err)
	}
	if res.Status != models.ExecutionStatusSuccess {
		t.Errorf("status = %s, want success", res.Status)
	}
	if len(f.calls) != 1 || f.calls[0] != "priority:42:high" {
		t.Errorf("calls = %v", f.calls)
	}
}

func TestWorkflowRunner_MultipleMatchesRunInOrderAndIsolated(t *testing.T) {
	db := newWorkflowTestDB(t)
	inner := &fakeCollaborators{}
	f := &failingStatusStore{fakeCollaborators: inner}
	exec := NewActionExecutor(f, inner, inner, inner, inner, nil)
	runner := NewWorkflowRunner(db, nil, exec, f, time.Second)

	first := createWorkflow(t, db, models.Workflow{
		ProjectID: 1, Name: "first", Enabled: true,
		TriggerType: TriggerStatusChanged, TriggerValue: "done",
		Actions: `[{"type":"change_status","value":"archived"}]`,
	})
	second := createWorkflow(t, db, models.Workflow{
		ProjectID: 1, Name: "second", Enabled: true,
		TriggerType: TriggerStatusChanged, TriggerValue: "done",
		Actions: `[{"type":"assign","value":"7"}]`,
	})

	change := &ChangeContext{TaskID: 42, ProjectID: 1, NewStatus: strPtr("done")}
	results, err := runner.HandleChange(context.Background(), change)
	if err != nil {
		t.Fatalf("HandleChange failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].WorkflowID != first.ID || results[1].WorkflowID != second.ID {
		t.Errorf("workflows ran out of creation order: %+v", results)
	}
	// A failure in the first workflow must not leak into the second.
	if results[0].Status != models.ExecutionStatusPartialFailure {
		t.Errorf("first status = %s, want partial_failure", results[0].Status)
	}
	if results[1].Status != models.ExecutionStatusSuccess {
		t.Errorf("second status = %s, want success", results[1].Status)
	}
}

// statefulTaskStore keeps one mutable task so re-reads between actions observe
// earlier writes from the same run.
type statefulTaskStore struct {
	*fakeCollaborators
	task models.Task
}

func (s *statefulTaskStore) GetTask(ctx context.Context, id uint) (*models.Task, error) {
	snapshot := s.task
	return &snapshot, nil
}

func (s *statefulTaskStore) SetStatus(ctx context.Context, taskID uint, status string) error {
	s.task.Status = status
	return nil
}

func TestWorkflowRunner_LaterActionsSeeEarlierWrites(t *testing.T) {
	db := newWorkflowTestDB(t)
	inner := &fakeCollaborators{}
	store := &statefulTaskStore{
		fakeCollaborators: inner,
		task:              models.Task{ID: 42, ProjectID: 1, Title: "Card", Status: "todo"},
	}
	exec := NewActionExecutor(store, inner, inner, inner, inner, nil)
	runner := NewWorkflowRunner(db, nil, exec, store, time.Second)

	createWorkflow(t, db, models.Workflow{
		ProjectID: 1, Name: "archive and announce", Enabled: true,
		TriggerType: TriggerStatusChanged, TriggerValue: "done",
		Actions: `[{"type":"change_status","value":"archived"},{"type":"send_webhook","meta":{"url":"https://example.com/h"}}]`,
	})

	change := &ChangeContext{TaskID: 42, ProjectID: 1, NewStatus: strPtr("done")}
	results, err := runner.HandleChange(context.Background(), change)
	if err != nil {
		t.Fatalf("HandleChange failed: %v", err)
	}
	if len(results) != 1 || results[0].Status != models.ExecutionStatusSuccess {
		t.Fatalf("expected one successful result, got %+v", results)
	}
	if len(inner.sent) != 1 {
		t.Fatalf("expected one webhook, got %d", len(inner.sent))
	}
	// The webhook runs second, so its snapshot carries the status the first
	// action just wrote.
	if !strings.Contains(string(inner.sent[0].payload), `"task_status":"archived"`) {
		t.Errorf("payload %s should reflect the earlier status change", inner.sent[0].payload)
	}
}

func TestWorkflowRunner_InvalidStoredActionsBecomePartialFailure(t *testing.T) {
	db := newWorkflowTestDB(t)
	f := &fakeCollaborators{}
	runner := newTestRunner(t, db, f)

	createWorkflow(t, db, models.Workflow{
		ProjectID: 1, Name: "legacy", Enabled: true,
		TriggerType: TriggerStatusChanged, TriggerValue: "done",
		Actions: `{broken`,
	})

	change := &ChangeContext{TaskID: 42, ProjectID: 1, NewStatus: strPtr("done")}
	results, err := runner.HandleChange(context.Background(), change)
	if err != nil {
		t.Fatalf("HandleChange failed: %v", err)
	}
	if len(results) != 1 || results[0].Status != models.ExecutionStatusPartialFailure {
		t.Fatalf("expected partial_failure for undecodable actions, got %+v", results)
	}

	var failed int64
	db.Model(&models.WorkflowLog{}).Where("action = ?", models.LogActionFailed).Count(&failed)
	if failed != 1 {
		t.Errorf("expected a failed log entry, got %d", failed)
	}
}
