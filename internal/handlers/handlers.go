package handlers

import (
	"net/http"
	"time"

	"flowboard/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type BoardSocketHandler struct {
	hub *services.BoardHub
}

func NewBoardSocketHandler(hub *services.BoardHub) *BoardSocketHandler {
	return &BoardSocketHandler{hub: hub}
}

func (h *BoardSocketHandler) HandleWebSocket(c *gin.Context) {
	h.hub.HandleWebSocket(c)
}

func (h *BoardSocketHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": h.hub.ClientCount(),
		"status":            "running",
	})
}

type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Ready checks the database connection before reporting ready.
func (h *HealthHandler) Ready(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
