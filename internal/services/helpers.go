package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/models"
	"github.com/charlesng35/taskboard/internal/notifications"
	apperrors "github.com/charlesng35/taskboard/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Notifier persists and pushes notifications. Implemented by notifications.Dispatcher.
type Notifier interface {
	Create(ctx context.Context, in notifications.CreateInput) (*models.Notification, error)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func sanitizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func sanitizePageSize(size int) int {
	switch {
	case size < 1:
		return defaultPageSize
	case size > maxPageSize:
		return maxPageSize
	default:
		return size
	}
}

// loadActor resolves the user performing an operation. Inactive accounts are rejected.
func loadActor(ctx context.Context, db *gorm.DB, actorID string) (*models.User, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	var actor models.User
	err := db.WithContext(ctx).Take(&actor, "id = ?", actorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if !actor.IsActive {
		return nil, apperrors.ErrForbidden
	}
	return &actor, nil
}

// notify sends a notification after the primary write. Failures are logged and swallowed.
func notify(ctx context.Context, notifier Notifier, log *zap.Logger, in notifications.CreateInput) {
	if notifier == nil {
		return
	}
	if _, err := notifier.Create(ctx, in); err != nil {
		log.Warn("notification failed",
			zap.String("kind", string(in.Kind)),
			zap.String("user_id", in.UserID),
			zap.Error(err),
		)
	}
}

func normaliseIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func containsString(values []string, target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	for _, value := range values {
		if strings.TrimSpace(value) == target {
			return true
		}
	}
	return false
}

func stringPtr(value string) *string {
	return &value
}
