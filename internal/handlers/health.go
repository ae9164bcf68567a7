package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/lingopair/backend/internal/languages"
	"github.com/lingopair/backend/internal/models"
)

// HealthHandler provides the health check endpoint.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	dbStatus := "ok"
	sqlDB, err := models.GetDB().DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	var pendingCount int64
	models.GetDB().Model(&models.ReviewRequest{}).
		Where("status = ?", models.StatusPending).
		Count(&pendingCount)

	var claimedCount int64
	models.GetDB().Model(&models.ReviewRequest{}).
		Where("status = ?", models.StatusClaimed).
		Count(&claimedCount)

	c.JSON(200, gin.H{
		"status":  overall,
		"service": "lingopair",
		"components": gin.H{
			"database":        dbStatus,
			"pending_reviews": pendingCount,
			"claimed_reviews": claimedCount,
		},
	})
}

// Languages lists the supported review languages.
// GET /api/languages
func (h *HealthHandler) Languages(c *gin.Context) {
	c.JSON(200, gin.H{"languages": languages.Supported})
}
