package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"flowboard/internal/models"

	"github.com/sirupsen/logrus"
)

// Action kinds.
const (
	ActionNotify       = "notify"
	ActionAssign       = "assign"
	ActionChangeStatus = "change_status"
	ActionAddLabel     = "add_label"
	ActionRemoveLabel  = "remove_label"
	ActionSetPriority  = "set_priority"
	ActionSetDueDate   = "set_due_date"
	ActionAddMember    = "add_member"
	ActionCreateTask   = "create_task"
	ActionSendWebhook  = "send_webhook"
)

// Action is one side-effecting step of a workflow. Value carries the plain
// parameter (user/label/status identifier); Meta carries structured parameters
// for the kinds that need them (webhook url/method/payload, new-task fields,
// explicit due date).
type Action struct {
	Type  string            `json:"type"`
	Value string            `json:"value,omitempty"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// ActionOutcome is the structured result of executing one action. Failures are
// data, not errors: the executor never propagates an exception past this type.
type ActionOutcome struct {
	Type    string            `json:"type"`
	Success bool              `json:"success"`
	Detail  map[string]string `json:"detail,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Collaborator contracts the executor performs its side effects through. They
// are implemented by the task/project/notification services and faked in tests.
type TaskStore interface {
	GetTask(ctx context.Context, id uint) (*models.Task, error)
	SetAssignee(ctx context.Context, taskID, userID uint) error
	SetStatus(ctx context.Context, taskID uint, status string) error
	SetPriority(ctx context.Context, taskID uint, priority string) error
	SetDueDate(ctx context.Context, taskID uint, due time.Time) error
	CreateTask(ctx context.Context, task *models.Task) error
}

type LabelStore interface {
	AttachLabel(ctx context.Context, taskID, labelID uint) error
	DetachLabel(ctx context.Context, taskID, labelID uint) error
}

type MembershipStore interface {
	AddMember(ctx context.Context, taskID, userID uint) error
}

type NotificationSink interface {
	Notify(ctx context.Context, userID uint, title, message, link string) error
}

// WebhookTransport delivers fire-and-forget HTTP calls. Send returns only
// construction errors; delivery failures are not awaited.
type WebhookTransport interface {
	Send(url, method string, payload []byte) error
}

// ActionExecutor maps each action kind to exactly one collaborator call.
type ActionExecutor struct {
	tasks    TaskStore
	labels   LabelStore
	members  MembershipStore
	notifier NotificationSink
	webhooks WebhookTransport
	logger   *logrus.Logger
}

func NewActionExecutor(tasks TaskStore, labels LabelStore, members MembershipStore, notifier NotificationSink, webhooks WebhookTransport, logger *logrus.Logger) *ActionExecutor {
	if logger == nil {
		logger = logrus.New()
	}
	return &ActionExecutor{
		tasks:    tasks,
		labels:   labels,
		members:  members,
		notifier: notifier,
		webhooks: webhooks,
		logger:   logger,
	}
}

// Execute performs one action against the current task snapshot. Every error,
// including a missing required parameter, becomes a failure outcome so that
// sibling actions keep running and operators see the reason in the log.
func (e *ActionExecutor) Execute(ctx context.Context, workflowID uint, act Action, change *ChangeContext, task *models.Task) ActionOutcome {
	switch act.Type {
	case ActionNotify:
		// Value optionally names the recipient; without it the actor is notified.
		recipient := change.ActorID
		if act.Value != "" {
			userID, err := parseIDParam(act.Value)
			if err != nil {
				return failure(act.Type, err)
			}
			recipient = userID
		}
		title := act.Meta["title"]
		if title == "" {
			title = "Workflow notification"
		}
		message := act.Meta["message"]
		if message == "" {
			message = fmt.Sprintf("Task %q was updated", task.Title)
		}
		link := fmt.Sprintf("/tasks/%d", change.TaskID)
		if err := e.notifier.Notify(ctx, recipient, title, message, link); err != nil {
			return failure(act.Type, err)
		}
		return success(act.Type, map[string]string{"type": "notification", "user_id": strconv.FormatUint(uint64(recipient), 10)})

	case ActionAssign:
		userID, err := parseIDParam(act.Value)
		if err != nil {
			return failure(act.Type, err)
		}
		if err := e.tasks.SetAssignee(ctx, change.TaskID, userID); err != nil {
			return failure(act.Type, err)
		}
		return success(act.Type, map[string]string{"type": "assignment", "user_id": act.Value})

	case ActionChangeStatus:
		if act.Value == "" {
			return failure(act.Type, errMissingValue)
		}
		if err := e.tasks.SetStatus(ctx, change.TaskID, act.Value); err != nil {
			return failure(act.Type, err)
		}
		return success(act.Type, map[string]string{"type": "status", "new_status": act.Value})

	case ActionAddLabel:
		labelID, err := parseIDParam(act.Value)
		if err != nil {
			return failure(act.Type, err)
		}
		if err := e.labels.AttachLabel(ctx, change.TaskID, labelID); err != nil {
			return failure(act.Type, err)
		}
		return success(act.Type, map[string]string{"type": "label_added", "label_id": act.Value})

	case ActionRemoveLabel:
		labelID, err := parseIDParam(act.Value)
		if err != nil {
			return failure(act.Type, err)
		}
		if err := e.labels.DetachLabel(ctx, change.TaskID, labelID); err != nil {
			return failure(act.Type, err)
		}
		return success(act.Type, map[string]string{"type": "label_removed", "label_id": act.Value})

	case ActionSetPriority:
		if act.Value == "" {
			return failure(act.Type, errMissingValue)
		}
		if err := e.tasks.SetPriority(ctx, change.TaskID, act.Value); err != nil {
			return failure(act.Type, err)
		}
		return success(act.Type, map[string]string{"type": "priority", "new_priority": act.Value})

	case ActionSetDueDate:
		raw := act.Meta["due_date"]
		if raw == "" {
			return failure(act.Type, fmt.Errorf("missing required parameter: meta.due_date"))
		}
		due, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return failure(act.Type, fmt.Errorf("invalid due_date %q: %w", raw, err))
		}
		if err := e.tasks.SetDueDate(ctx, change.TaskID, due); err != nil {
			return failure(act.Type, err)
		}
		return success(act.Type, map[string]string{"type": "due_date", "new_date": raw})

	case ActionAddMember:
		userID, err := parseIDParam(act.Value)
		if err != nil {
			return failure(act.Type, err)
		}
		if err := e.members.AddMember(ctx, change.TaskID, userID); err != nil {
			return failure(act.Type, err)
		}
		return success(act.Type, map[string]string{"type": "member_added", "user_id": act.Value})

	case ActionCreateTask:
		name := act.Meta["task_name"]
		if name == "" {
			return failure(act.Type, fmt.Errorf("missing required parameter: meta.task_name"))
		}
		newTask := &models.Task{
			ProjectID:   change.ProjectID,
			CreatorID:   change.ActorID,
			Title:       name,
			Description: act.Meta["description"],
		}
		if p := act.Meta["priority"]; p != "" {
			newTask.Priority = p
		}
		if err := e.tasks.CreateTask(ctx, newTask); err != nil {
			return failure(act.Type, err)
		}
		return success(act.Type, map[string]string{
			"type":      "task_created",
			"task_id":   strconv.FormatUint(uint64(newTask.ID), 10),
			"task_name": name,
		})

	case ActionSendWebhook:
		url := act.Meta["url"]
		if url == "" {
			return failure(act.Type, fmt.Errorf("missing required parameter: meta.url"))
		}
		method := act.Meta["method"]
		if method == "" {
			method = "POST"
		}
		// The snapshot is re-read per action, so the payload reflects any
		// mutations earlier actions in the same run already applied.
		payload, err := json.Marshal(map[string]interface{}{
			"workflow_id": workflowID,
			"task_id":     change.TaskID,
			"project_id":  change.ProjectID,
			"task_title":  task.Title,
			"task_status": task.Status,
			"payload":     act.Meta["payload"],
		})
		if err != nil {
			return failure(act.Type, err)
		}
		// Delivery is not awaited; only a construction error fails the action.
		if err := e.webhooks.Send(url, method, payload); err != nil {
			return failure(act.Type, err)
		}
		return success(act.Type, map[string]string{"type": "webhook_sent", "url": url})

	default:
		return failure(act.Type, fmt.Errorf("unsupported action type: %s", act.Type))
	}
}

var errMissingValue = fmt.Errorf("missing required parameter: value")

func parseIDParam(value string) (uint, error) {
	if value == "" {
		return 0, errMissingValue
	}
	id, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier %q: %w", value, err)
	}
	return uint(id), nil
}

func success(kind string, detail map[string]string) ActionOutcome {
	return ActionOutcome{Type: kind, Success: true, Detail: detail}
}

func failure(kind string, err error) ActionOutcome {
	return ActionOutcome{Type: kind, Success: false, Error: err.Error()}
}

// ValidateAction rejects malformed actions at workflow save-time so that rules
// cannot reach the runner with a missing required parameter.
func ValidateAction(act Action) error {
	switch act.Type {
	case ActionNotify:
		if act.Value != "" {
			if _, err := parseIDParam(act.Value); err != nil {
				return fmt.Errorf("action %s: %w", act.Type, err)
			}
		}
		return nil
	case ActionAssign, ActionAddLabel, ActionRemoveLabel, ActionAddMember:
		if _, err := parseIDParam(act.Value); err != nil {
			return fmt.Errorf("action %s: %w", act.Type, err)
		}
		return nil
	case ActionChangeStatus, ActionSetPriority:
		if act.Value == "" {
			return fmt.Errorf("action %s: %w", act.Type, errMissingValue)
		}
		return nil
	case ActionSetDueDate:
		raw := act.Meta["due_date"]
		if raw == "" {
			return fmt.Errorf("action %s: missing required parameter: meta.due_date", act.Type)
		}
		if _, err := time.Parse(time.RFC3339, raw); err != nil {
			return fmt.Errorf("action %s: invalid due_date %q", act.Type, raw)
		}
		return nil
	case ActionCreateTask:
		if act.Meta["task_name"] == "" {
			return fmt.Errorf("action %s: missing required parameter: meta.task_name", act.Type)
		}
		return nil
	case ActionSendWebhook:
		if act.Meta["url"] == "" {
			return fmt.Errorf("action %s: missing required parameter: meta.url", act.Type)
		}
		return nil
	default:
		return fmt.Errorf("unsupported action type: %s", act.Type)
	}
}

// ParseActions decodes a workflow's serialized action list.
func ParseActions(raw string) ([]Action, error) {
	if raw == "" {
		return nil, nil
	}
	var actions []Action
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		return nil, fmt.Errorf("invalid actions: %w", err)
	}
	return actions, nil
}
