package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/models"
)

// Filter narrows a notification query. Results are always ordered newest first.
type Filter struct {
	UserID     string
	UnreadOnly bool
	Offset     int
	Limit      int
}

// Store persists notifications.
type Store interface {
	Insert(ctx context.Context, n *models.Notification) error
	// Get loads the notification only when it belongs to userID.
	Get(ctx context.Context, id, userID string) (*models.Notification, error)
	Update(ctx context.Context, n *models.Notification) error
	// Delete removes the notification only when it belongs to userID.
	Delete(ctx context.Context, id, userID string) error
	Query(ctx context.Context, filter Filter) ([]models.Notification, int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	PurgeReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a gorm-backed store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("notification store: db is required")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Insert(ctx context.Context, n *models.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("notification store: insert: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id, userID string) (*models.Notification, error) {
	var n models.Notification
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notification store: get: %w", err)
	}
	return &n, nil
}

func (s *GormStore) Update(ctx context.Context, n *models.Notification) error {
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", n.ID, n.UserID).
		Updates(map[string]any{"is_read": n.IsRead, "read_at": n.ReadAt})
	if result.Error != nil {
		return fmt.Errorf("notification store: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, id, userID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification store: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *GormStore) Query(ctx context.Context, filter Filter) ([]models.Notification, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", filter.UserID)
	if filter.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("notification store: count: %w", err)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").Order("id DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("notification store: query: %w", err)
	}
	return rows, total, nil
}

func (s *GormStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification store: count unread: %w", err)
	}
	return count, nil
}

func (s *GormStore) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": at})
	if result.Error != nil {
		return 0, fmt.Errorf("notification store: mark all read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormStore) PurgeReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification store: purge: %w", result.Error)
	}
	return result.RowsAffected, nil
}
