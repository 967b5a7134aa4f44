package services

import (
	"context"
	"errors"
	"fmt"

	"flowboard/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrProjectNotFound = errors.New("project not found")

// ProjectService manages projects, board columns, labels and project members.
type ProjectService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewProjectService(db *gorm.DB, logger *logrus.Logger) *ProjectService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ProjectService{db: db, logger: logger}
}

// ProjectCreateRequest creates a project with its default columns.
type ProjectCreateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type ColumnRequest struct {
	Name     string `json:"name" binding:"required"`
	Position *int   `json:"position"`
}

type LabelRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
}

var defaultColumns = []string{"To Do", "In Progress", "In Review", "Done"}

// CreateProject creates a project owned by ownerID with the default lanes.
func (s *ProjectService) CreateProject(ctx context.Context, req *ProjectCreateRequest, ownerID uint) (*models.Project, error) {
	project := &models.Project{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     ownerID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		for i, name := range defaultColumns {
			col := &models.Column{ProjectID: project.ID, Name: name, Position: i}
			if err := tx.Create(col).Error; err != nil {
				return err
			}
		}
		member := &models.ProjectMember{ProjectID: project.ID, UserID: ownerID, Role: "owner"}
		return tx.Create(member).Error
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *ProjectService) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).
		Preload("Columns", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Labels").
		First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}

// ListProjects returns the projects a user owns or is a member of.
func (s *ProjectService) ListProjects(ctx context.Context, userID uint) ([]models.Project, error) {
	var projects []models.Project
	if err := s.db.WithContext(ctx).
		Distinct("projects.*").
		Joins("LEFT JOIN project_members ON project_members.project_id = projects.id").
		Where("projects.owner_id = ? OR project_members.user_id = ?", userID, userID).
		Order("projects.id DESC").
		Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *ProjectService) DeleteProject(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Project{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// AddProjectMember adds a user to a project; adding twice is a no-op.
func (s *ProjectService) AddProjectMember(ctx context.Context, projectID, userID uint, role string) error {
	if role == "" {
		role = "member"
	}
	var existing models.ProjectMember
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Create(&models.ProjectMember{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
	}).Error
}

// CreateColumn appends a lane to the board.
func (s *ProjectService) CreateColumn(ctx context.Context, projectID uint, req *ColumnRequest) (*models.Column, error) {
	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		var max int
		s.db.WithContext(ctx).Model(&models.Column{}).
			Where("project_id = ?", projectID).
			Select("COALESCE(MAX(position), -1)").Scan(&max)
		position = max + 1
	}
	col := &models.Column{ProjectID: projectID, Name: req.Name, Position: position}
	if err := s.db.WithContext(ctx).Create(col).Error; err != nil {
		return nil, err
	}
	return col, nil
}

func (s *ProjectService) DeleteColumn(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Column{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("column not found")
	}
	return nil
}

// CreateLabel adds a project-scoped label.
func (s *ProjectService) CreateLabel(ctx context.Context, projectID uint, req *LabelRequest) (*models.Label, error) {
	label := &models.Label{ProjectID: projectID, Name: req.Name}
	if req.Color != "" {
		label.Color = req.Color
	}
	if err := s.db.WithContext(ctx).Create(label).Error; err != nil {
		return nil, err
	}
	return label, nil
}

func (s *ProjectService) ListLabels(ctx context.Context, projectID uint) ([]models.Label, error) {
	var labels []models.Label
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("id ASC").
		Find(&labels).Error; err != nil {
		return nil, err
	}
	return labels, nil
}

func (s *ProjectService) DeleteLabel(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("label_id = ?", id).Delete(&models.TaskLabel{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Label{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("label not found")
		}
		return nil
	})
}
