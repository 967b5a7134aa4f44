package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"flowboard/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	var (
		dsn     string
		host    string
		port    string
		user    string
		pass    string
		name    string
		sslmode string
		tz      string
		seed    bool
	)
	flag.StringVar(&dsn, "dsn", os.Getenv("DB_DSN"), "Postgres DSN, if set overrides other DB flags")
	flag.StringVar(&host, "db-host", getenv("DB_HOST", "localhost"), "database host")
	flag.StringVar(&port, "db-port", getenv("DB_PORT", "5432"), "database port")
	flag.StringVar(&user, "db-user", getenv("DB_USER", "flowboard"), "database user")
	flag.StringVar(&pass, "db-pass", getenv("DB_PASSWORD", "flowboard"), "database password")
	flag.StringVar(&name, "db-name", getenv("DB_NAME", "flowboard"), "database name")
	flag.StringVar(&sslmode, "db-sslmode", getenv("DB_SSLMODE", "disable"), "sslmode")
	flag.StringVar(&tz, "db-timezone", getenv("DB_TIMEZONE", "UTC"), "database timezone")
	flag.BoolVar(&seed, "seed", false, "insert demo data after migrating")
	flag.Parse()

	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			host, user, pass, name, port, sslmode, tz)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Info)})
	if err != nil {
		log.Fatalf("connect: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{}, &models.Project{}, &models.ProjectMember{},
		&models.Column{}, &models.Label{},
		&models.Task{}, &models.TaskLabel{}, &models.TaskMember{},
		&models.Notification{},
		&models.Workflow{}, &models.WorkflowExecution{}, &models.WorkflowLog{},
	); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// Composite indexes AutoMigrate does not create.
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_workflows_project_enabled ON workflows (project_id, enabled)",
		"CREATE INDEX IF NOT EXISTS idx_workflow_logs_workflow_created ON workflow_logs (workflow_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_workflow_executions_workflow ON workflow_executions (workflow_id, started_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_project_status ON tasks (project_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_notifications_user_read ON notifications (user_id, read)",
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			log.Fatalf("index: %v", err)
		}
	}

	if seed {
		if err := seedDemoData(db); err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.Println("demo data inserted")
	}

	log.Println("migration complete")
}

func seedDemoData(db *gorm.DB) error {
	owner := models.User{Username: "demo", Email: "demo@example.com", Name: "Demo User"}
	if err := db.FirstOrCreate(&owner, models.User{Username: "demo"}).Error; err != nil {
		return err
	}

	project := models.Project{Name: "Demo Board", Description: "Seeded demo project", OwnerID: owner.ID}
	if err := db.FirstOrCreate(&project, models.Project{Name: "Demo Board", OwnerID: owner.ID}).Error; err != nil {
		return err
	}
	if err := db.FirstOrCreate(&models.ProjectMember{}, models.ProjectMember{
		ProjectID: project.ID, UserID: owner.ID, Role: "owner",
	}).Error; err != nil {
		return err
	}

	for i, name := range []string{"To Do", "In Progress", "In Review", "Done"} {
		col := models.Column{ProjectID: project.ID, Name: name, Position: i}
		if err := db.FirstOrCreate(&col, models.Column{ProjectID: project.ID, Name: name}).Error; err != nil {
			return err
		}
	}

	urgent := models.Label{ProjectID: project.ID, Name: "urgent", Color: "#e53935"}
	if err := db.FirstOrCreate(&urgent, models.Label{ProjectID: project.ID, Name: "urgent"}).Error; err != nil {
		return err
	}

	due := time.Now().Add(72 * time.Hour)
	task := models.Task{
		ProjectID:   project.ID,
		Title:       "Try out automations",
		Description: "Move this card to done and watch the rules fire",
		Status:      "todo",
		Priority:    "normal",
		CreatorID:   owner.ID,
		DueDate:     &due,
	}
	if err := db.FirstOrCreate(&task, models.Task{ProjectID: project.ID, Title: "Try out automations"}).Error; err != nil {
		return err
	}

	workflow := models.Workflow{
		ProjectID:    project.ID,
		Name:         "Notify on done",
		Description:  "Ping the board owner when a card lands in done",
		Enabled:      true,
		TriggerType:  "status_changed",
		TriggerValue: "done",
		Actions:      fmt.Sprintf(`[{"type":"notify","value":"%d","meta":{"message":"A card was completed"}}]`, owner.ID),
	}
	return db.FirstOrCreate(&workflow, models.Workflow{ProjectID: project.ID, Name: "Notify on done"}).Error
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
