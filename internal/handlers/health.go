package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/realtime"
	"github.com/charlesng35/taskboard/pkg/errors"
	"github.com/charlesng35/taskboard/pkg/response"
)

var errDatabaseUnavailable = errors.New("DATABASE_UNAVAILABLE", "Database is unavailable", http.StatusServiceUnavailable)

// Health pings the database and reports live connection counts. registry may be nil.
func Health(db *gorm.DB, registry *realtime.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			response.Error(c, errDatabaseUnavailable.WithInternal(err))
			return
		}

		ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			response.Error(c, errDatabaseUnavailable.WithInternal(err))
			return
		}

		payload := gin.H{"status": "ok", "database": "ok"}
		if registry != nil {
			payload["live_users"] = len(registry.Users())
		}
		response.Success(c, http.StatusOK, payload)
	}
}
