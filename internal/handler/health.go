package handler

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *sql.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient}
}

// Check handles GET /health. The core stays up when Redis is down (the
// location cache falls back in-process), so a Redis failure reports
// degraded, not unhealthy.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()

	status := "ok"
	code := http.StatusOK
	deps := gin.H{}

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			deps["database"] = "down"
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		} else {
			deps["database"] = "ok"
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			deps["redis"] = "down"
			if status == "ok" {
				status = "degraded"
			}
		} else {
			deps["redis"] = "ok"
		}
	}

	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}
