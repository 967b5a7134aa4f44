package services

import (
	"context"
	"testing"
	"time"

	"flowboard/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newBoardTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Project{}, &models.ProjectMember{},
		&models.Column{}, &models.Label{},
		&models.Task{}, &models.TaskLabel{}, &models.TaskMember{},
		&models.Notification{},
		&models.Workflow{}, &models.WorkflowExecution{}, &models.WorkflowLog{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// seedBoard creates a user, a project and one task; returns their ids.
func seedBoard(t *testing.T, db *gorm.DB) (userID, projectID, taskID uint) {
	t.Helper()
	user := models.User{Username: "alice", Email: "alice@example.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	project := models.Project{Name: "Board", OwnerID: user.ID}
	if err := db.Create(&project).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	task := models.Task{ProjectID: project.ID, CreatorID: user.ID, Title: "Card", Status: "todo", Priority: "normal"}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return user.ID, project.ID, task.ID
}

// wireAutomation attaches a runner backed by the real task service, with a
// fake notifier/webhook transport.
func wireAutomation(db *gorm.DB, tasks *TaskService, f *fakeCollaborators) *WorkflowRunner {
	exec := NewActionExecutor(tasks, tasks, tasks, f, f, nil)
	runner := NewWorkflowRunner(db, nil, exec, tasks, time.Second)
	tasks.SetWorkflowRunner(runner)
	return runner
}

func TestBuildChangeContext(t *testing.T) {
	due := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	assignee := uint(7)
	old := &models.Task{ID: 1, ProjectID: 2, Status: "todo", Priority: "normal"}
	updated := &models.Task{
		ID: 1, ProjectID: 2, Status: "done", Priority: "normal",
		AssigneeID: &assignee, DueDate: &due,
	}

	change := buildChangeContext(old, updated, 9)
	if change.TaskID != 1 || change.ProjectID != 2 || change.ActorID != 9 {
		t.Errorf("identifiers wrong: %+v", change)
	}
	if change.NewStatus == nil || *change.NewStatus != "done" || *change.OldStatus != "todo" {
		t.Errorf("status diff missing: %+v", change)
	}
	if change.NewPriority != nil {
		t.Error("unchanged priority must not appear in the diff")
	}
	if change.NewAssigneeID == nil || *change.NewAssigneeID != 7 {
		t.Errorf("assignee diff missing: %+v", change)
	}
	if change.NewDueDate == nil || !change.NewDueDate.Equal(due) {
		t.Errorf("due date diff missing: %+v", change)
	}
}

func TestTaskService_UpdateTaskFiresWorkflows(t *testing.T) {
	db := newBoardTestDB(t)
	svc := NewTaskService(db, nil)
	f := &fakeCollaborators{}
	wireAutomation(db, svc, f)
	userID, projectID, taskID := seedBoard(t, db)

	wf := models.Workflow{
		ProjectID: projectID, Name: "celebrate", Enabled: true,
		TriggerType: TriggerStatusChanged, TriggerValue: "done",
		Actions: `[{"type":"notify","meta":{"message":"card done"}}]`,
	}
	if err := db.Create(&wf).Error; err != nil {
		t.Fatalf("seed workflow: %v", err)
	}

	status := "done"
	task, results, err := svc.UpdateTask(context.Background(), taskID, &TaskUpdateRequest{Status: &status}, userID)
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if task.Status != "done" {
		t.Errorf("status = %s, want done", task.Status)
	}
	if task.CompletedAt == nil {
		t.Error("moving to done must stamp completed_at")
	}
	if len(results) != 1 || results[0].Status != models.ExecutionStatusSuccess {
		t.Fatalf("expected one successful workflow result, got %+v", results)
	}
	if len(f.calls) != 1 {
		t.Errorf("expected one notify call, got %v", f.calls)
	}
}

func TestTaskService_ActionsDoNotRetrigger(t *testing.T) {
	db := newBoardTestDB(t)
	svc := NewTaskService(db, nil)
	f := &fakeCollaborators{}
	wireAutomation(db, svc, f)
	userID, projectID, taskID := seedBoard(t, db)

	// A rule whose action would itself satisfy a status trigger. Only the
	// handler-facing mutation may dispatch, so exactly one execution happens.
	wf := models.Workflow{
		ProjectID: projectID, Name: "archive done cards", Enabled: true,
		TriggerType: TriggerStatusChanged, TriggerValue: "done",
		Actions: `[{"type":"change_status","value":"archived"}]`,
	}
	if err := db.Create(&wf).Error; err != nil {
		t.Fatalf("seed workflow: %v", err)
	}

	status := "done"
	_, results, err := svc.UpdateTask(context.Background(), taskID, &TaskUpdateRequest{Status: &status}, userID)
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}

	task, err := svc.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.Status != "archived" {
		t.Errorf("status = %s, want archived", task.Status)
	}

	var execCount int64
	db.Model(&models.WorkflowExecution{}).Count(&execCount)
	if execCount != 1 {
		t.Errorf("expected exactly one execution, got %d", execCount)
	}
}

func TestTaskService_AddLabelFiresLabeledWorkflow(t *testing.T) {
	db := newBoardTestDB(t)
	svc := NewTaskService(db, nil)
	f := &fakeCollaborators{}
	wireAutomation(db, svc, f)
	userID, projectID, taskID := seedBoard(t, db)

	label := models.Label{ProjectID: projectID, Name: "urgent"}
	if err := db.Create(&label).Error; err != nil {
		t.Fatalf("seed label: %v", err)
	}
	wf := models.Workflow{
		ProjectID: projectID, Name: "escalate urgent", Enabled: true,
		TriggerType: TriggerLabeled, TriggerValue: "1",
		Actions: `[{"type":"set_priority","value":"urgent"}]`,
	}
	if err := db.Create(&wf).Error; err != nil {
		t.Fatalf("seed workflow: %v", err)
	}

	results, err := svc.AddLabel(context.Background(), taskID, label.ID, userID)
	if err != nil {
		t.Fatalf("AddLabel failed: %v", err)
	}
	if len(results) != 1 || results[0].Status != models.ExecutionStatusSuccess {
		t.Fatalf("expected one successful result, got %+v", results)
	}

	task, err := svc.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.Priority != "urgent" {
		t.Errorf("priority = %s, want urgent", task.Priority)
	}
	if len(task.Labels) != 1 {
		t.Errorf("expected the label attached, got %d", len(task.Labels))
	}

	// Removing the label must not fire the labeled trigger again.
	results, err = svc.RemoveLabel(context.Background(), taskID, label.ID, userID)
	if err != nil {
		t.Fatalf("RemoveLabel failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("label removal fired workflows: %+v", results)
	}
}

func TestTaskService_UpdateWithoutRunner(t *testing.T) {
	db := newBoardTestDB(t)
	svc := NewTaskService(db, nil)
	userID, _, taskID := seedBoard(t, db)

	priority := "high"
	task, results, err := svc.UpdateTask(context.Background(), taskID, &TaskUpdateRequest{Priority: &priority}, userID)
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if task.Priority != "high" {
		t.Errorf("priority = %s, want high", task.Priority)
	}
	if results != nil {
		t.Errorf("no runner wired, expected nil results, got %+v", results)
	}
}

func TestTaskService_SetAssigneeValidatesUser(t *testing.T) {
	db := newBoardTestDB(t)
	svc := NewTaskService(db, nil)
	userID, _, taskID := seedBoard(t, db)

	if err := svc.SetAssignee(context.Background(), taskID, 999); err == nil {
		t.Error("assigning an unknown user must fail")
	}
	if err := svc.SetAssignee(context.Background(), taskID, userID); err != nil {
		t.Errorf("SetAssignee failed: %v", err)
	}

	task, err := svc.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.AssigneeID == nil || *task.AssigneeID != userID {
		t.Errorf("assignee = %v, want %d", task.AssigneeID, userID)
	}
}

func TestTaskService_AttachLabelIsIdempotent(t *testing.T) {
	db := newBoardTestDB(t)
	svc := NewTaskService(db, nil)
	_, projectID, taskID := seedBoard(t, db)

	label := models.Label{ProjectID: projectID, Name: "bug"}
	if err := db.Create(&label).Error; err != nil {
		t.Fatalf("seed label: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.AttachLabel(context.Background(), taskID, label.ID); err != nil {
			t.Fatalf("AttachLabel failed: %v", err)
		}
	}
	var count int64
	db.Model(&models.TaskLabel{}).Where("task_id = ?", taskID).Count(&count)
	if count != 1 {
		t.Errorf("expected one link row, got %d", count)
	}

	if err := svc.AttachLabel(context.Background(), taskID, 999); err == nil {
		t.Error("attaching an unknown label must fail")
	}
}

func TestTaskService_ListTasksFilters(t *testing.T) {
	db := newBoardTestDB(t)
	svc := NewTaskService(db, nil)
	userID, projectID, _ := seedBoard(t, db)

	extra := models.Task{ProjectID: projectID, CreatorID: userID, Title: "Ship release", Status: "in_progress", Priority: "high"}
	if err := db.Create(&extra).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}

	tasks, total, err := svc.ListTasks(context.Background(), &TaskListRequest{
		ProjectID: &projectID,
		Status:    []string{"in_progress"},
	})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if total != 1 || len(tasks) != 1 || tasks[0].Title != "Ship release" {
		t.Errorf("filter wrong: total=%d tasks=%+v", total, tasks)
	}

	_, total, err = svc.ListTasks(context.Background(), &TaskListRequest{Search: "Ship"})
	if err != nil {
		t.Fatalf("ListTasks search failed: %v", err)
	}
	if total != 1 {
		t.Errorf("search total = %d, want 1", total)
	}
}
