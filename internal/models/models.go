package models

import (
	"time"

	"gorm.io/gorm"
)

// User is any account that can own projects, be assigned tasks or receive notifications.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"unique;not null" json:"username"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Name      string         `json:"name"`
	Avatar    string         `json:"avatar"`
	Role      string         `gorm:"default:'member'" json:"role"`   // member, admin
	Status    string         `gorm:"default:'active'" json:"status"` // active, inactive
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Project is a board; it owns columns, tasks, labels and workflows.
type Project struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	OwnerID     uint           `gorm:"index" json:"owner_id"`
	Archived    bool           `gorm:"default:false" json:"archived"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Owner     User       `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Columns   []Column   `gorm:"foreignKey:ProjectID" json:"columns,omitempty"`
	Tasks     []Task     `gorm:"foreignKey:ProjectID" json:"tasks,omitempty"`
	Labels    []Label    `gorm:"foreignKey:ProjectID" json:"labels,omitempty"`
	Workflows []Workflow `gorm:"foreignKey:ProjectID" json:"workflows,omitempty"`
}

// ProjectMember links users to a project.
type ProjectMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"index" json:"project_id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Role      string    `gorm:"default:'member'" json:"role"` // owner, member, viewer
	CreatedAt time.Time `json:"created_at"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Column is a board lane tasks are sorted into.
type Column struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"index" json:"project_id"`
	Name      string    `gorm:"not null" json:"name"`
	Position  int       `gorm:"default:0" json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Label is a project-scoped tag attachable to tasks.
type Label struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"index" json:"project_id"`
	Name      string    `gorm:"not null" json:"name"`
	Color     string    `gorm:"default:'#cccccc'" json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is a card on the board.
type Task struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ProjectID   uint           `gorm:"index" json:"project_id"`
	ColumnID    *uint          `gorm:"index" json:"column_id"`
	CreatorID   uint           `gorm:"index" json:"creator_id"`
	AssigneeID  *uint          `gorm:"index" json:"assignee_id"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Status      string         `gorm:"default:'todo'" json:"status"`     // todo, in_progress, in_review, done, archived
	Priority    string         `gorm:"default:'normal'" json:"priority"` // low, normal, high, urgent
	Position    int            `gorm:"default:0" json:"position"`
	DueDate     *time.Time     `json:"due_date"`
	CompletedAt *time.Time     `json:"completed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Creator  User         `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Assignee *User        `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	Labels   []TaskLabel  `gorm:"foreignKey:TaskID" json:"labels,omitempty"`
	Members  []TaskMember `gorm:"foreignKey:TaskID" json:"members,omitempty"`
}

// TaskLabel associates a label with a task.
type TaskLabel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TaskID    uint      `gorm:"index" json:"task_id"`
	LabelID   uint      `gorm:"index" json:"label_id"`
	CreatedAt time.Time `json:"created_at"`

	Label Label `gorm:"foreignKey:LabelID" json:"label,omitempty"`
}

// TaskMember is a watcher/collaborator on a task beyond the single assignee.
type TaskMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TaskID    uint      `gorm:"index" json:"task_id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Notification is an in-app message delivered to one user.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Title     string    `gorm:"not null" json:"title"`
	Message   string    `gorm:"type:text" json:"message"`
	Link      string    `json:"link"`
	Read      bool      `gorm:"default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
