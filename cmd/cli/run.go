package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flowboard/internal/config"
	"flowboard/internal/handlers"
	"flowboard/internal/middleware"
	"flowboard/internal/models"
	"flowboard/internal/observability"
	"flowboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the flowboard server",
	Run:   run,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) {
	cfg := config.Load()

	if err := config.InitLogger(cfg); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	shutdownOTel, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Project{}, &models.ProjectMember{},
		&models.Column{}, &models.Label{},
		&models.Task{}, &models.TaskLabel{}, &models.TaskMember{},
		&models.Notification{},
		&models.Workflow{}, &models.WorkflowExecution{}, &models.WorkflowLog{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	boardHub := services.NewBoardHub()
	go boardHub.Run()

	taskService := services.NewTaskService(db, appLogger)
	taskService.SetBoardHub(boardHub)
	projectService := services.NewProjectService(db, appLogger)
	notificationService := services.NewNotificationService(db, appLogger)
	notificationService.SetBoardHub(boardHub)
	webhookService := services.NewWebhookService(cfg.Workflow.WebhookTimeout, appLogger)
	workflowService := services.NewWorkflowService(db, appLogger, cfg.Workflow.MaxActions)

	executor := services.NewActionExecutor(
		taskService, taskService, taskService,
		notificationService, webhookService, appLogger,
	)
	runner := services.NewWorkflowRunner(db, appLogger, executor, taskService, cfg.Workflow.ActionTimeout)
	taskService.SetWorkflowRunner(runner)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(cfg))
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg))
	handlers.RegisterProjectRoutes(api, handlers.NewProjectHandler(projectService))
	handlers.RegisterTaskRoutes(api, handlers.NewTaskHandler(taskService))
	handlers.RegisterWorkflowRoutes(api, handlers.NewWorkflowHandler(workflowService, runner))
	handlers.RegisterNotificationRoutes(api, handlers.NewNotificationHandler(notificationService))

	v1 := r.Group("/api/v1")
	{
		wsHandler := handlers.NewBoardSocketHandler(boardHub)
		v1.GET("/ws", wsHandler.HandleWebSocket)
		v1.GET("/ws/stats", wsHandler.GetStats)
	}

	listenAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: listenAddr, Handler: r}
	go func() {
		appLogger.Infof("Starting server on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}
