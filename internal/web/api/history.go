package api

import (
	"strconv"

	"aerofarm/internal/db"

	"github.com/gin-gonic/gin"
)

const defaultLimit = 100

// RegisterHistoryRoutes exposes the audit trail for dashboards: issued
// actuator commands, recent sensor readings, and raised alerts.
func RegisterHistoryRoutes(r *gin.Engine, database *db.DB) {
	history := r.Group("/api/history")
	{
		history.GET("/actuators", func(c *gin.Context) {
			deviceID, limit := listParams(c)
			logs, err := database.ActuatorHistory(c, deviceID, limit)
			if err != nil {
				c.JSON(500, gin.H{"error": "failed to fetch actuator history"})
				return
			}
			c.JSON(200, logs)
		})

		history.GET("/sensors", func(c *gin.Context) {
			deviceID, limit := listParams(c)
			logs, err := database.SensorHistory(c, deviceID, limit)
			if err != nil {
				c.JSON(500, gin.H{"error": "failed to fetch sensor history"})
				return
			}
			c.JSON(200, logs)
		})
	}

	r.GET("/api/alerts", func(c *gin.Context) {
		_, limit := listParams(c)
		alerts, err := database.Alerts(c, limit)
		if err != nil {
			c.JSON(500, gin.H{"error": "failed to fetch alerts"})
			return
		}
		c.JSON(200, alerts)
	})
}

func listParams(c *gin.Context) (deviceID int64, limit int) {
	deviceID, _ = strconv.ParseInt(c.Query("device_id"), 10, 64)
	limit, _ = strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > 1000 {
		limit = defaultLimit
	}
	return deviceID, limit
}
