package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"flowboard/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

// WorkflowService is the rule store: CRUD for workflow definitions scoped by
// project, plus reads over the append-only execution log. It performs no
// matching or execution; that is the runner's job.
type WorkflowService struct {
	db         *gorm.DB
	logger     *logrus.Logger
	maxActions int
}

func NewWorkflowService(db *gorm.DB, logger *logrus.Logger, maxActions int) *WorkflowService {
	if logger == nil {
		logger = logrus.New()
	}
	if maxActions <= 0 {
		maxActions = 20
	}
	return &WorkflowService{db: db, logger: logger, maxActions: maxActions}
}

// WorkflowRequest creates or updates a workflow definition.
type WorkflowRequest struct {
	Name         string   `json:"name" binding:"required"`
	Description  string   `json:"description"`
	TriggerType  string   `json:"trigger_type" binding:"required"`
	TriggerValue string   `json:"trigger_value"`
	Actions      []Action `json:"actions"`
	Enabled      *bool    `json:"enabled"`
}

// WorkflowLogListRequest pages through the audit trail, newest first.
type WorkflowLogListRequest struct {
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size,default=20"`
}

func (s *WorkflowService) validate(req *WorkflowRequest) error {
	if req == nil {
		return fmt.Errorf("request required")
	}
	if !IsSupportedTrigger(req.TriggerType) {
		return fmt.Errorf("unsupported trigger: %s", req.TriggerType)
	}
	if len(req.Actions) > s.maxActions {
		return fmt.Errorf("too many actions: %d (max %d)", len(req.Actions), s.maxActions)
	}
	// Malformed actions are rejected here rather than silently skipped at
	// run-time, so misconfigured rules surface immediately.
	for i, act := range req.Actions {
		if err := ValidateAction(act); err != nil {
			return fmt.Errorf("actions[%d]: %w", i, err)
		}
	}
	return nil
}

// CreateWorkflow persists a new rule after validating its trigger and actions.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, projectID uint, req *WorkflowRequest) (*models.Workflow, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	actJSON, err := json.Marshal(req.Actions)
	if err != nil {
		return nil, fmt.Errorf("invalid actions: %w", err)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	wf := &models.Workflow{
		ProjectID:    projectID,
		Name:         req.Name,
		Description:  req.Description,
		Enabled:      enabled,
		TriggerType:  req.TriggerType,
		TriggerValue: req.TriggerValue,
		Actions:      string(actJSON),
	}
	if err := s.db.WithContext(ctx).Create(wf).Error; err != nil {
		return nil, err
	}
	return wf, nil
}

// UpdateWorkflow edits a rule in place. The trigger kind is immutable: a rule
// with a different kind is a new rule, not an edit.
func (s *WorkflowService) UpdateWorkflow(ctx context.Context, id uint, req *WorkflowRequest) (*models.Workflow, error) {
	var wf models.Workflow
	if err := s.db.WithContext(ctx).First(&wf, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	if req != nil && req.TriggerType != wf.TriggerType {
		return nil, fmt.Errorf("trigger kind is immutable; create a new workflow instead")
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}

	actJSON, err := json.Marshal(req.Actions)
	if err != nil {
		return nil, fmt.Errorf("invalid actions: %w", err)
	}

	wf.Name = req.Name
	wf.Description = req.Description
	wf.TriggerValue = req.TriggerValue
	wf.Actions = string(actJSON)
	if req.Enabled != nil {
		wf.Enabled = *req.Enabled
	}
	if err := s.db.WithContext(ctx).Save(&wf).Error; err != nil {
		return nil, err
	}
	return &wf, nil
}

// ListWorkflows returns a project's rules, newest first.
func (s *WorkflowService) ListWorkflows(ctx context.Context, projectID uint) ([]models.Workflow, error) {
	var workflows []models.Workflow
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("id DESC").
		Find(&workflows).Error; err != nil {
		return nil, err
	}
	return workflows, nil
}

func (s *WorkflowService) GetWorkflow(ctx context.Context, id uint) (*models.Workflow, error) {
	var wf models.Workflow
	if err := s.db.WithContext(ctx).First(&wf, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	return &wf, nil
}

func (s *WorkflowService) DeleteWorkflow(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Workflow{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

// ListLogs pages through a workflow's audit entries, newest first. Entries are
// append-only; there is no update or delete path.
func (s *WorkflowService) ListLogs(ctx context.Context, workflowID uint, req *WorkflowLogListRequest) ([]models.WorkflowLog, int64, error) {
	page, pageSize := 1, 20
	if req != nil {
		if req.Page > 0 {
			page = req.Page
		}
		if req.PageSize > 0 && req.PageSize <= 100 {
			pageSize = req.PageSize
		}
	}

	query := s.db.WithContext(ctx).Model(&models.WorkflowLog{}).Where("workflow_id = ?", workflowID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []models.WorkflowLog
	if err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// ListExecutions returns a workflow's execution records, newest first.
func (s *WorkflowService) ListExecutions(ctx context.Context, workflowID uint) ([]models.WorkflowExecution, error) {
	var execs []models.WorkflowExecution
	if err := s.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("started_at DESC").
		Find(&execs).Error; err != nil {
		return nil, err
	}
	return execs, nil
}
