package api

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/services"
)

// NewServices constructs the domain services over db. Team and task events are published
// through notifier.
func NewServices(db *gorm.DB, notifier services.Notifier) (Services, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return Services{}, fmt.Errorf("audit service: %w", err)
	}
	users, err := services.NewUserService(db, audit)
	if err != nil {
		return Services{}, fmt.Errorf("user service: %w", err)
	}
	teams, err := services.NewTeamService(db, audit, notifier)
	if err != nil {
		return Services{}, fmt.Errorf("team service: %w", err)
	}
	tasks, err := services.NewTaskService(db, audit, notifier)
	if err != nil {
		return Services{}, fmt.Errorf("task service: %w", err)
	}
	export, err := services.NewExportService(db)
	if err != nil {
		return Services{}, fmt.Errorf("export service: %w", err)
	}
	analytics, err := services.NewAnalyticsService(db)
	if err != nil {
		return Services{}, fmt.Errorf("analytics service: %w", err)
	}

	return Services{
		Users:     users,
		Teams:     teams,
		Tasks:     tasks,
		Audit:     audit,
		Export:    export,
		Analytics: analytics,
	}, nil
}
