package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/taskboard/internal/models"
	"github.com/charlesng35/taskboard/internal/notifications"
)

// ReminderResult summarises a due-date scan.
type ReminderResult struct {
	DueSoon int
	Overdue int
}

// SendDueReminders notifies about open tasks due within window and tasks that became
// overdue. Each task is reminded once per state; a failed notification is retried on
// the next scan.
func (s *TaskService) SendDueReminders(ctx context.Context, window time.Duration) (ReminderResult, error) {
	ctx = ensureContext(ctx)

	var result ReminderResult
	if s.notifier == nil {
		return result, errors.New("task service: notifier is required for reminders")
	}

	now := s.now()
	closed := []string{models.TaskStatusCompleted, models.TaskStatusArchived}

	var dueSoon []models.Task
	if err := s.db.WithContext(ctx).
		Where("due_date IS NOT NULL AND due_date > ? AND due_date <= ?", now, now.Add(window)).
		Where("status NOT IN ?", closed).
		Where("due_soon_notified_at IS NULL").
		Order("due_date ASC").
		Find(&dueSoon).Error; err != nil {
		return result, fmt.Errorf("task service: find due soon tasks: %w", err)
	}

	var overdue []models.Task
	if err := s.db.WithContext(ctx).
		Where("due_date IS NOT NULL AND due_date <= ?", now).
		Where("status NOT IN ?", closed).
		Where("overdue_notified_at IS NULL").
		Order("due_date ASC").
		Find(&overdue).Error; err != nil {
		return result, fmt.Errorf("task service: find overdue tasks: %w", err)
	}

	var errs error
	for i := range dueSoon {
		task := &dueSoon[i]
		in := notifications.TaskDueSoon(task, reminderRecipient(task), task.DueDate.Sub(now))
		if err := s.remind(ctx, task, in, "due_soon_notified_at", now); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		result.DueSoon++
	}
	for i := range overdue {
		task := &overdue[i]
		in := notifications.TaskOverdue(task, reminderRecipient(task), now.Sub(*task.DueDate))
		if err := s.remind(ctx, task, in, "overdue_notified_at", now); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		result.Overdue++
	}

	if result.DueSoon > 0 || result.Overdue > 0 {
		s.log.Info("due date reminders sent", zap.Int("due_soon", result.DueSoon), zap.Int("overdue", result.Overdue))
	}
	return result, errs
}

func (s *TaskService) remind(ctx context.Context, task *models.Task, in notifications.CreateInput, column string, now time.Time) error {
	if _, err := s.notifier.Create(ctx, in); err != nil {
		return fmt.Errorf("remind task %s: %w", task.ID, err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", task.ID).UpdateColumn(column, now).Error; err != nil {
		return fmt.Errorf("stamp task %s: %w", task.ID, err)
	}
	return nil
}

func reminderRecipient(task *models.Task) string {
	if task.AssigneeID != nil && *task.AssigneeID != "" {
		return *task.AssigneeID
	}
	return task.OwnerID
}
