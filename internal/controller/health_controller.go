package controller

import (
	"net/http"

	"palette_backend/internal/service"
	"palette_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthController struct {
	DB      *gorm.DB
	Monitor *service.ConnectivityMonitor
}

func NewHealthController(db *gorm.DB, monitor *service.ConnectivityMonitor) *HealthController {
	return &HealthController{DB: db, Monitor: monitor}
}

// @Summary Health check
// @Description Reports local store health and Canvas reachability. Canvas being down is not unhealthy; the app is offline-first.
// @Tags system
// @Produce json
// @Success 200 {object} util.Response
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}
	if err := sqlDB.Ping(); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	canvas := "offline"
	if c.Monitor.IsOnline() {
		canvas = "online"
	}
	util.Success(ctx, gin.H{
		"status": "ok",
		"components": gin.H{
			"database": "up",
			"canvas":   canvas,
		},
	})
}
