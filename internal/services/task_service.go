package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowboard/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskService owns task CRUD and is the task store the action executor writes
// through. Its single-field setters never dispatch workflows, so an action
// that mutates a task cannot re-trigger rules within the same run. Only
// UpdateTask and AddLabel/RemoveLabel, the handler-facing mutation paths,
// build a ChangeContext and invoke the runner.
type TaskService struct {
	db     *gorm.DB
	logger *logrus.Logger
	runner *WorkflowRunner
	hub    *BoardHub
}

func NewTaskService(db *gorm.DB, logger *logrus.Logger) *TaskService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TaskService{db: db, logger: logger}
}

// SetWorkflowRunner injects the automation runner.
func (s *TaskService) SetWorkflowRunner(runner *WorkflowRunner) {
	s.runner = runner
}

// SetBoardHub injects the websocket hub for live board updates.
func (s *TaskService) SetBoardHub(hub *BoardHub) {
	s.hub = hub
}

// TaskCreateRequest creates a task.
type TaskCreateRequest struct {
	ProjectID   uint       `json:"project_id" binding:"required"`
	ColumnID    *uint      `json:"column_id"`
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	AssigneeID  *uint      `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

// TaskUpdateRequest updates a task; nil fields are left untouched.
type TaskUpdateRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	ColumnID    *uint      `json:"column_id"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	AssigneeID  *uint      `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
	Position    *int       `json:"position"`
}

// TaskListRequest filters and pages the task list.
type TaskListRequest struct {
	Page       int      `form:"page,default=1"`
	PageSize   int      `form:"page_size,default=20"`
	ProjectID  *uint    `form:"project_id"`
	ColumnID   *uint    `form:"column_id"`
	Status     []string `form:"status"`
	Priority   []string `form:"priority"`
	AssigneeID *uint    `form:"assignee_id"`
	Search     string   `form:"search"`
	SortBy     string   `form:"sort_by,default=created_at"`
	SortOrder  string   `form:"sort_order,default=desc"`
}

// NewTask creates a task from a request.
func (s *TaskService) NewTask(ctx context.Context, req *TaskCreateRequest, creatorID uint) (*models.Task, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, req.ProjectID).Error; err != nil {
		return nil, fmt.Errorf("project not found: %w", err)
	}

	task := &models.Task{
		ProjectID:   req.ProjectID,
		ColumnID:    req.ColumnID,
		CreatorID:   creatorID,
		AssigneeID:  req.AssigneeID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
	}
	if req.Priority != "" {
		task.Priority = req.Priority
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, err
	}
	s.broadcast("task_created", task)
	return task, nil
}

// UpdateTask applies the requested field changes, then builds a ChangeContext
// from the diff and runs matching workflows. The task mutation succeeds or
// fails on its own: automation failures are logged and surfaced in the result
// list, never rolled back into the update.
func (s *TaskService) UpdateTask(ctx context.Context, id uint, req *TaskUpdateRequest, actorID uint) (*models.Task, []ExecutionResult, error) {
	old, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.ColumnID != nil {
		updates["column_id"] = *req.ColumnID
	}
	if req.Status != nil {
		updates["status"] = *req.Status
		if *req.Status == "done" {
			now := time.Now()
			updates["completed_at"] = &now
		}
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.AssigneeID != nil {
		updates["assignee_id"] = *req.AssigneeID
	}
	if req.DueDate != nil {
		updates["due_date"] = *req.DueDate
	}
	if req.Position != nil {
		updates["position"] = *req.Position
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Task{}).
			Where("id = ?", id).
			Updates(updates).Error; err != nil {
			return nil, nil, err
		}
	}

	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	s.broadcast("task_updated", task)

	change := buildChangeContext(old, task, actorID)
	results := s.runWorkflows(ctx, change)
	return task, results, nil
}

// AddLabel attaches a label and fires "labeled" workflows.
func (s *TaskService) AddLabel(ctx context.Context, taskID, labelID, actorID uint) ([]ExecutionResult, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.AttachLabel(ctx, taskID, labelID); err != nil {
		return nil, err
	}
	s.broadcast("task_updated", task)

	change := &ChangeContext{
		TaskID:      task.ID,
		ProjectID:   task.ProjectID,
		ActorID:     actorID,
		LabelsAdded: []uint{labelID},
	}
	return s.runWorkflows(ctx, change), nil
}

// RemoveLabel detaches a label. Removal is tracked in the context but no
// trigger kind currently matches on it.
func (s *TaskService) RemoveLabel(ctx context.Context, taskID, labelID, actorID uint) ([]ExecutionResult, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.DetachLabel(ctx, taskID, labelID); err != nil {
		return nil, err
	}
	s.broadcast("task_updated", task)

	change := &ChangeContext{
		TaskID:        task.ID,
		ProjectID:     task.ProjectID,
		ActorID:       actorID,
		LabelsRemoved: []uint{labelID},
	}
	return s.runWorkflows(ctx, change), nil
}

// runWorkflows invokes the runner when one is wired. A rule-store failure is
// the runner's only hard error; it is logged here, not returned, so the task
// mutation that already committed stays committed.
func (s *TaskService) runWorkflows(ctx context.Context, change *ChangeContext) []ExecutionResult {
	if s.runner == nil {
		return nil
	}
	results, err := s.runner.HandleChange(ctx, change)
	if err != nil {
		s.logger.Warnf("task %d: run workflows failed: %v", change.TaskID, err)
		return nil
	}
	if s.hub != nil {
		for _, res := range results {
			s.hub.Broadcast(BoardEvent{
				Type:      "workflow_executed",
				ProjectID: change.ProjectID,
				Data:      res,
				Timestamp: time.Now(),
			})
		}
	}
	return results
}

// buildChangeContext diffs two task snapshots into the ephemeral change record
// the matcher consumes. Old/new pairs are only set for fields that changed.
func buildChangeContext(old, updated *models.Task, actorID uint) *ChangeContext {
	change := &ChangeContext{
		TaskID:    updated.ID,
		ProjectID: updated.ProjectID,
		ActorID:   actorID,
	}
	if old.Status != updated.Status {
		change.OldStatus = &old.Status
		change.NewStatus = &updated.Status
	}
	if old.Priority != updated.Priority {
		change.OldPriority = &old.Priority
		change.NewPriority = &updated.Priority
	}
	if !uintPtrEqual(old.AssigneeID, updated.AssigneeID) {
		change.OldAssigneeID = old.AssigneeID
		change.NewAssigneeID = updated.AssigneeID
	}
	if !timePtrEqual(old.DueDate, updated.DueDate) {
		change.OldDueDate = old.DueDate
		change.NewDueDate = updated.DueDate
	}
	return change
}

func uintPtrEqual(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// ListTasks returns a filtered, paged task list.
func (s *TaskService) ListTasks(ctx context.Context, req *TaskListRequest) ([]models.Task, int64, error) {
	page, pageSize := 1, 20
	if req.Page > 0 {
		page = req.Page
	}
	if req.PageSize > 0 && req.PageSize <= 100 {
		pageSize = req.PageSize
	}

	query := s.db.WithContext(ctx).Model(&models.Task{})
	if req.ProjectID != nil {
		query = query.Where("project_id = ?", *req.ProjectID)
	}
	if req.ColumnID != nil {
		query = query.Where("column_id = ?", *req.ColumnID)
	}
	if len(req.Status) > 0 {
		query = query.Where("status IN ?", req.Status)
	}
	if len(req.Priority) > 0 {
		query = query.Where("priority IN ?", req.Priority)
	}
	if req.AssigneeID != nil {
		query = query.Where("assignee_id = ?", *req.AssigneeID)
	}
	if req.Search != "" {
		like := "%" + req.Search + "%"
		query = query.Where("title LIKE ? OR description LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := req.SortBy
	switch sortBy {
	case "created_at", "updated_at", "due_date", "priority", "position":
	default:
		sortBy = "created_at"
	}
	order := sortBy + " DESC"
	if req.SortOrder == "asc" {
		order = sortBy + " ASC"
	}

	var tasks []models.Task
	if err := query.
		Preload("Labels").
		Order(order).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&tasks).Error; err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// DeleteTask soft-deletes a task.
func (s *TaskService) DeleteTask(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Task{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	s.broadcast("task_deleted", &models.Task{ID: id})
	return nil
}

func (s *TaskService) broadcast(eventType string, task *models.Task) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(BoardEvent{
		Type:      eventType,
		ProjectID: task.ProjectID,
		Data:      task,
		Timestamp: time.Now(),
	})
}

// --- TaskStore / LabelStore / MembershipStore collaborator implementations.
// Single-field, independently-applied writes: no workflow dispatch here.

func (s *TaskService) GetTask(ctx context.Context, id uint) (*models.Task, error) {
	var task models.Task
	if err := s.db.WithContext(ctx).
		Preload("Labels").
		Preload("Members").
		First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) SetAssignee(ctx context.Context, taskID, userID uint) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return fmt.Errorf("user not found: %w", err)
	}
	return s.updateField(ctx, taskID, "assignee_id", userID)
}

func (s *TaskService) SetStatus(ctx context.Context, taskID uint, status string) error {
	return s.updateField(ctx, taskID, "status", status)
}

func (s *TaskService) SetPriority(ctx context.Context, taskID uint, priority string) error {
	return s.updateField(ctx, taskID, "priority", priority)
}

func (s *TaskService) SetDueDate(ctx context.Context, taskID uint, due time.Time) error {
	return s.updateField(ctx, taskID, "due_date", due)
}

func (s *TaskService) CreateTask(ctx context.Context, task *models.Task) error {
	return s.db.WithContext(ctx).Create(task).Error
}

func (s *TaskService) AttachLabel(ctx context.Context, taskID, labelID uint) error {
	var label models.Label
	if err := s.db.WithContext(ctx).First(&label, labelID).Error; err != nil {
		return fmt.Errorf("label not found: %w", err)
	}
	var existing models.TaskLabel
	err := s.db.WithContext(ctx).
		Where("task_id = ? AND label_id = ?", taskID, labelID).
		First(&existing).Error
	if err == nil {
		return nil // already attached
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Create(&models.TaskLabel{TaskID: taskID, LabelID: labelID}).Error
}

func (s *TaskService) DetachLabel(ctx context.Context, taskID, labelID uint) error {
	return s.db.WithContext(ctx).
		Where("task_id = ? AND label_id = ?", taskID, labelID).
		Delete(&models.TaskLabel{}).Error
}

func (s *TaskService) AddMember(ctx context.Context, taskID, userID uint) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return fmt.Errorf("user not found: %w", err)
	}
	var existing models.TaskMember
	err := s.db.WithContext(ctx).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Create(&models.TaskMember{TaskID: taskID, UserID: userID}).Error
}

func (s *TaskService) updateField(ctx context.Context, taskID uint, field string, value interface{}) error {
	result := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", taskID).
		Update(field, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}
