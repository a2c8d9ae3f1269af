package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/taskboard/internal/models"
	"github.com/charlesng35/taskboard/internal/realtime"
	apperrors "github.com/charlesng35/taskboard/pkg/errors"
	"github.com/charlesng35/taskboard/pkg/logger"
	"github.com/charlesng35/taskboard/pkg/metrics"
)

const (
	// DefaultPageSize is used when a list request does not specify one.
	DefaultPageSize = 20
	// MaxPageSize caps list page sizes.
	MaxPageSize = 100
)

// Sender pushes live messages to a user's connections. Implemented by the
// realtime registry and by the Redis relay.
type Sender interface {
	SendToUser(ctx context.Context, userID string, msg realtime.Message) int
}

// CreateInput describes a notification to persist and push.
type CreateInput struct {
	UserID        string
	Kind          Kind
	Title         string
	Message       string
	RelatedTaskID *string
	RelatedTeamID *string
}

// ListInput selects a page of a user's notifications.
type ListInput struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}

// ListResult is a page of notifications, newest first.
type ListResult struct {
	Items      []models.Notification `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// LivePayload is the data carried by a live notification message.
type LivePayload struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	RelatedTaskID *string   `json:"related_task_id"`
	RelatedTeamID *string   `json:"related_team_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Dispatcher persists notifications and pushes them to live connections.
type Dispatcher struct {
	store  Store
	sender Sender
	now    func() time.Time
	log    *zap.Logger
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the time source used for read timestamps.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithDispatcherLogger overrides the dispatcher logger.
func WithDispatcherLogger(log *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDispatcher constructs a dispatcher over store and sender.
func NewDispatcher(store Store, sender Sender, opts ...DispatcherOption) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("notification dispatcher: store is required")
	}
	if sender == nil {
		return nil, errors.New("notification dispatcher: sender is required")
	}

	d := &Dispatcher{
		store:  store,
		sender: sender,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.WithModule("notifications"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Create persists a notification and then pushes it to the owner's live
// connections. Only persistence failures are returned.
func (d *Dispatcher) Create(ctx context.Context, in CreateInput) (*models.Notification, error) {
	if !in.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("Notification recipient is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("Notification title is required")
	}

	record := &models.Notification{
		UserID:        userID,
		Type:          string(in.Kind),
		Title:         title,
		Message:       strings.TrimSpace(in.Message),
		RelatedTaskID: in.RelatedTaskID,
		RelatedTeamID: in.RelatedTeamID,
	}
	if err := d.store.Insert(ctx, record); err != nil {
		return nil, err
	}
	metrics.NotificationsCreated.WithLabelValues(record.Type).Inc()

	delivered := d.sender.SendToUser(ctx, userID, NewLiveMessage(record))
	d.log.Debug("notification dispatched",
		zap.String("notification_id", record.ID),
		zap.String("user_id", userID),
		zap.String("kind", record.Type),
		zap.Int("delivered", delivered),
	)
	return record, nil
}

// CreateAll creates every input and aggregates the failures.
func (d *Dispatcher) CreateAll(ctx context.Context, inputs ...CreateInput) (int, error) {
	var (
		created int
		errs    error
	)
	for _, in := range inputs {
		if _, err := d.Create(ctx, in); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("notify %s: %w", in.UserID, err))
			continue
		}
		created++
	}
	return created, errs
}

// MarkRead flags a notification owned by userID as read.
func (d *Dispatcher) MarkRead(ctx context.Context, id, userID string) (*models.Notification, error) {
	record, err := d.store.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if record.IsRead {
		return record, nil
	}

	now := d.now()
	record.IsRead = true
	record.ReadAt = &now
	if err := d.store.Update(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// MarkAllRead flags every unread notification of userID and returns how many changed.
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return d.store.MarkAllRead(ctx, userID, d.now())
}

// Delete removes a notification owned by userID.
func (d *Dispatcher) Delete(ctx context.Context, id, userID string) error {
	return d.store.Delete(ctx, id, userID)
}

// UnreadCount returns the number of unread notifications for userID.
func (d *Dispatcher) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return d.store.CountUnread(ctx, userID)
}

// List returns a page of userID's notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, in ListInput) (*ListResult, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	size := in.PageSize
	switch {
	case size < 1:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}

	rows, total, err := d.store.Query(ctx, Filter{
		UserID:     in.UserID,
		UnreadOnly: in.UnreadOnly,
		Offset:     (page - 1) * size,
		Limit:      size,
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.Notification{}
	}

	return &ListResult{
		Items:      rows,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}, nil
}

// PurgeRead deletes read notifications created before cutoff.
func (d *Dispatcher) PurgeRead(ctx context.Context, cutoff time.Time) (int64, error) {
	return d.store.PurgeReadBefore(ctx, cutoff)
}

// NewLiveMessage builds the live message pushed for a persisted notification.
func NewLiveMessage(n *models.Notification) realtime.Message {
	return realtime.Message{
		Type: realtime.MessageTypeNotification,
		Data: LivePayload{
			ID:            n.ID,
			Type:          n.Type,
			Title:         n.Title,
			Message:       n.Message,
			RelatedTaskID: n.RelatedTaskID,
			RelatedTeamID: n.RelatedTeamID,
			CreatedAt:     n.CreatedAt,
		},
	}
}
