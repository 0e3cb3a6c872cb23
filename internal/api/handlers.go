package api

import (
	"net/http"

	"gatehouse/internal/auth"
	"gatehouse/internal/config"

	"github.com/gin-gonic/gin"
)

// GET /health
func healthHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"status": "ok"}
		if d.Store != nil {
			if sqlDB, err := d.Store.DB().DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				status["status"] = "degraded"
				status["database"] = "unreachable"
			}
		}
		c.JSON(http.StatusOK, status)
	}
}

// GET /config
func configHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only return non-sensitive config fields
		c.JSON(http.StatusOK, gin.H{
			"app": gin.H{
				"name":  cfg.App.Name,
				"title": cfg.App.Title,
			},
			"server": gin.H{
				"subpath": cfg.Server.Subpath,
			},
			"hosting_enabled": cfg.Hosting.Enabled(),
			"smtp_enabled":    cfg.SMTP.Enabled,
		})
	}
}

// OnlineUserCountHandler returns the number of unique online users.
func OnlineUserCountHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := auth.OnlineUserCount(c.Request.Context(), d.Redis)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to count online users"}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"online": count})
	}
}
