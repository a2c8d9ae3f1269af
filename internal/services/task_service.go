package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/models"
	"github.com/charlesng35/taskboard/internal/notifications"
	apperrors "github.com/charlesng35/taskboard/pkg/errors"
	"github.com/charlesng35/taskboard/pkg/logger"
)

var (
	// ErrTaskNotFound indicates the requested task does not exist.
	ErrTaskNotFound = apperrors.New("TASK_NOT_FOUND", "Task not found", http.StatusNotFound)
	// ErrTaskParentNotFound rejects subtasks pointing at a missing parent.
	ErrTaskParentNotFound = apperrors.New("TASK_PARENT_NOT_FOUND", "Parent task not found", http.StatusBadRequest)
)

// CreateTaskInput captures the attributes of a new task.
type CreateTaskInput struct {
	Title          string
	Description    string
	Priority       string
	Status         string
	Category       string
	EstimatedHours *float64
	DueDate        *time.Time
	AssigneeID     *string
	TeamID         *string
	ParentTaskID   *string
}

// UpdateTaskInput lists mutable task attributes. An empty AssigneeID or TeamID clears the link.
type UpdateTaskInput struct {
	Title           *string
	Description     *string
	Priority        *string
	Status          *string
	Category        *string
	EstimatedHours  *float64
	ActualHours     *float64
	ProgressPercent *int
	DueDate         *time.Time
	ClearDueDate    bool
	AssigneeID      *string
	TeamID          *string
}

// TaskFilters narrows a task search.
type TaskFilters struct {
	Statuses   []string
	Priorities []string
	Categories []string
	AssigneeID string
	TeamID     string
	OwnerID    string
	IsOverdue  *bool
	IsArchived *bool
	Query      string
	DueFrom    *time.Time
	DueTo      *time.Time
}

// SearchTasksOptions controls search pagination and ordering.
type SearchTasksOptions struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
	Filters   TaskFilters
}

// TaskService manages tasks and emits task notifications.
type TaskService struct {
	db           *gorm.DB
	auditService *AuditService
	notifier     Notifier
	now          func() time.Time
	log          *zap.Logger
}

// TaskServiceOption customises a TaskService.
type TaskServiceOption func(*TaskService)

// WithTaskClock overrides the clock used for transitions and overdue checks.
func WithTaskClock(now func() time.Time) TaskServiceOption {
	return func(s *TaskService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTaskService constructs a TaskService. notifier may be nil.
func NewTaskService(db *gorm.DB, auditService *AuditService, notifier Notifier, opts ...TaskServiceOption) (*TaskService, error) {
	if db == nil {
		return nil, errors.New("task service: db is required")
	}
	s := &TaskService{
		db:           db,
		auditService: auditService,
		notifier:     notifier,
		now:          func() time.Time { return time.Now().UTC() },
		log:          logger.WithModule("tasks"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create stores a new task owned by the actor and notifies the assignee.
func (s *TaskService) Create(ctx context.Context, actorID string, input CreateTaskInput) (*models.Task, error) {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("task title is required")
	}

	task := &models.Task{
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Priority:       defaultIfEmpty(input.Priority, models.TaskPriorityMedium),
		Status:         defaultIfEmpty(input.Status, models.TaskStatusTodo),
		Category:       defaultIfEmpty(input.Category, models.TaskCategoryOther),
		EstimatedHours: input.EstimatedHours,
		DueDate:        utcPtr(input.DueDate),
		OwnerID:        actor.ID,
	}
	if err := validateTaskEnums(task.Priority, task.Status, task.Category); err != nil {
		return nil, err
	}

	if id := trimmedPtr(input.AssigneeID); id != nil {
		if err := s.ensureUserExists(ctx, *id); err != nil {
			return nil, err
		}
		task.AssigneeID = id
	}
	if id := trimmedPtr(input.TeamID); id != nil {
		if err := s.ensureTeamAccess(ctx, actor, *id); err != nil {
			return nil, err
		}
		task.TeamID = id
	}
	if id := trimmedPtr(input.ParentTaskID); id != nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", *id).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("task service: check parent: %w", err)
		}
		if count == 0 {
			return nil, ErrTaskParentNotFound
		}
		task.ParentTaskID = id
	}

	applyStatusTransition(task, "", s.now())

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("task service: create task: %w", err)
	}

	recordAudit(s.auditService, ctx, actorEntry(actor, "task.create", "task:"+task.ID, map[string]any{
		"title": task.Title,
	}))

	if task.AssigneeID != nil && *task.AssigneeID != actor.ID {
		notify(ctx, s.notifier, s.log, notifications.TaskAssigned(task, *task.AssigneeID, actor.DisplayName()))
	}

	return s.load(ctx, task.ID)
}

// Get returns a task visible to the actor.
func (s *TaskService) Get(ctx context.Context, actorID, taskID string) (*models.Task, error) {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ok, err := s.canView(ctx, actor, task)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}
	return task, nil
}

// Update modifies a task. Allowed for administrators, the owner and the assignee.
func (s *TaskService) Update(ctx context.Context, actorID, taskID string, input UpdateTaskInput) (*models.Task, error) {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !canModifyTask(actor, task) {
		return nil, apperrors.ErrForbidden
	}

	previousStatus := task.Status
	previousAssignee := ""
	if task.AssigneeID != nil {
		previousAssignee = *task.AssigneeID
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewBadRequest("task title is required")
		}
		task.Title = title
	}
	if input.Description != nil {
		task.Description = strings.TrimSpace(*input.Description)
	}
	if input.Priority != nil {
		task.Priority = *input.Priority
	}
	if input.Status != nil {
		task.Status = *input.Status
	}
	if input.Category != nil {
		task.Category = *input.Category
	}
	if err := validateTaskEnums(task.Priority, task.Status, task.Category); err != nil {
		return nil, err
	}
	if input.EstimatedHours != nil {
		task.EstimatedHours = input.EstimatedHours
	}
	if input.ActualHours != nil {
		task.ActualHours = input.ActualHours
	}
	if input.ProgressPercent != nil {
		if *input.ProgressPercent < 0 || *input.ProgressPercent > 100 {
			return nil, apperrors.NewBadRequest("progress_percent must be between 0 and 100")
		}
		task.ProgressPercent = *input.ProgressPercent
	}
	if input.ClearDueDate {
		task.DueDate = nil
	} else if input.DueDate != nil {
		task.DueDate = utcPtr(input.DueDate)
	}
	if input.DueDate != nil || input.ClearDueDate {
		task.DueSoonNotifiedAt = nil
		task.OverdueNotifiedAt = nil
	}
	if input.AssigneeID != nil {
		if id := trimmedPtr(input.AssigneeID); id != nil {
			if err := s.ensureUserExists(ctx, *id); err != nil {
				return nil, err
			}
			task.AssigneeID = id
		} else {
			task.AssigneeID = nil
		}
	}
	if input.TeamID != nil {
		if id := trimmedPtr(input.TeamID); id != nil {
			if err := s.ensureTeamAccess(ctx, actor, *id); err != nil {
				return nil, err
			}
			task.TeamID = id
		} else {
			task.TeamID = nil
		}
	}

	applyStatusTransition(task, previousStatus, s.now())

	err = s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", task.ID).Updates(taskColumns(task)).Error
	if err != nil {
		return nil, fmt.Errorf("task service: update task: %w", err)
	}

	recordAudit(s.auditService, ctx, actorEntry(actor, "task.update", "task:"+task.ID, map[string]any{
		"status": task.Status,
	}))

	s.notifyUpdate(ctx, actor, task, previousStatus, previousAssignee)

	return s.load(ctx, task.ID)
}

func (s *TaskService) notifyUpdate(ctx context.Context, actor *models.User, task *models.Task, previousStatus, previousAssignee string) {
	actorName := actor.DisplayName()

	if task.AssigneeID != nil && *task.AssigneeID != previousAssignee && *task.AssigneeID != actor.ID {
		notify(ctx, s.notifier, s.log, notifications.TaskAssigned(task, *task.AssigneeID, actorName))
	}

	if actor.ID == task.OwnerID {
		return
	}
	if task.Status == models.TaskStatusCompleted && previousStatus != models.TaskStatusCompleted {
		notify(ctx, s.notifier, s.log, notifications.TaskCompleted(task, task.OwnerID, actorName))
		return
	}
	notify(ctx, s.notifier, s.log, notifications.TaskUpdated(task, task.OwnerID, actorName))
}

// Delete removes a task. Allowed for administrators and the owner.
func (s *TaskService) Delete(ctx context.Context, actorID, taskID string) error {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return err
	}
	task, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && task.OwnerID != actor.ID {
		return apperrors.ErrForbidden
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Task{}).Where("parent_task_id = ?", task.ID).Update("parent_task_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Task{}, "id = ?", task.ID).Error
	})
	if err != nil {
		return fmt.Errorf("task service: delete task: %w", err)
	}

	recordAudit(s.auditService, ctx, actorEntry(actor, "task.delete", "task:"+task.ID, map[string]any{
		"title": task.Title,
	}))
	return nil
}

// Search lists tasks visible to the actor that match the filters.
func (s *TaskService) Search(ctx context.Context, actorID string, opts SearchTasksOptions) ([]models.Task, int64, error) {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, 0, err
	}

	page := sanitizePage(opts.Page)
	perPage := sanitizePageSize(opts.PageSize)

	query := s.visibleTasks(ctx, actor)
	query = applyTaskFilters(query, opts.Filters, s.now())

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("task service: count tasks: %w", err)
	}

	var tasks []models.Task
	if err := query.
		Preload("Owner").
		Preload("Assignee").
		Order(taskOrder(opts.SortBy, opts.SortOrder)).
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&tasks).Error; err != nil {
		return nil, 0, fmt.Errorf("task service: search tasks: %w", err)
	}
	return tasks, total, nil
}

// Subtasks returns the direct children of a task visible to the actor.
func (s *TaskService) Subtasks(ctx context.Context, actorID, taskID string) ([]models.Task, error) {
	if _, err := s.Get(ctx, actorID, taskID); err != nil {
		return nil, err
	}

	var tasks []models.Task
	if err := s.db.WithContext(ensureContext(ctx)).
		Where("parent_task_id = ?", taskID).
		Order("created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("task service: list subtasks: %w", err)
	}
	return tasks, nil
}

// visibleTasks scopes a query to tasks the actor may see.
func (s *TaskService) visibleTasks(ctx context.Context, actor *models.User) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Task{})
	if actor.IsAdmin() {
		return query
	}
	memberships := s.db.Model(&models.TeamMember{}).Select("team_id").Where("user_id = ?", actor.ID)
	return query.Where("owner_id = ? OR assignee_id = ? OR team_id IN (?)", actor.ID, actor.ID, memberships)
}

func (s *TaskService) canView(ctx context.Context, actor *models.User, task *models.Task) (bool, error) {
	if canModifyTask(actor, task) {
		return true, nil
	}
	if task.TeamID == nil {
		return false, nil
	}
	return isTeamMember(ctx, s.db, *task.TeamID, actor.ID)
}

func (s *TaskService) ensureUserExists(ctx context.Context, userID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return fmt.Errorf("task service: check user: %w", err)
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *TaskService) ensureTeamAccess(ctx context.Context, actor *models.User, teamID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Team{}).Where("id = ?", teamID).Count(&count).Error; err != nil {
		return fmt.Errorf("task service: check team: %w", err)
	}
	if count == 0 {
		return ErrTeamNotFound
	}
	if actor.IsAdmin() {
		return nil
	}
	member, err := isTeamMember(ctx, s.db, teamID, actor.ID)
	if err != nil {
		return err
	}
	if !member {
		return apperrors.ErrForbidden
	}
	return nil
}

func (s *TaskService) load(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Preload("Assignee").
		First(&task, "id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("task service: load task: %w", err)
	}
	return &task, nil
}

func canModifyTask(actor *models.User, task *models.Task) bool {
	return actor.IsAdmin() || task.OwnerID == actor.ID || task.IsAssignedTo(actor.ID)
}

// applyStatusTransition stamps lifecycle fields when a task enters a new status.
func applyStatusTransition(task *models.Task, previous string, now time.Time) {
	if task.Status == previous {
		return
	}
	switch task.Status {
	case models.TaskStatusInProgress:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case models.TaskStatusCompleted:
		task.CompletedAt = &now
		task.ProgressPercent = 100
	}
	task.IsArchived = task.Status == models.TaskStatusArchived
}

func validateTaskEnums(priority, status, category string) error {
	if !containsString(models.TaskPriorities, priority) {
		return apperrors.NewBadRequest("invalid task priority")
	}
	if !containsString(models.TaskStatuses, status) {
		return apperrors.NewBadRequest("invalid task status")
	}
	if !containsString(models.TaskCategories, category) {
		return apperrors.NewBadRequest("invalid task category")
	}
	return nil
}

func taskColumns(task *models.Task) map[string]any {
	return map[string]any{
		"title":                task.Title,
		"description":          task.Description,
		"priority":             task.Priority,
		"status":               task.Status,
		"category":             task.Category,
		"estimated_hours":      task.EstimatedHours,
		"actual_hours":         task.ActualHours,
		"progress_percent":     task.ProgressPercent,
		"due_date":             task.DueDate,
		"started_at":           task.StartedAt,
		"completed_at":         task.CompletedAt,
		"is_archived":          task.IsArchived,
		"assignee_id":          task.AssigneeID,
		"team_id":              task.TeamID,
		"due_soon_notified_at": task.DueSoonNotifiedAt,
		"overdue_notified_at":  task.OverdueNotifiedAt,
	}
}

var taskSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"due_date":   "due_date",
	"title":      "title",
	"priority":   "CASE priority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 WHEN 'high' THEN 3 WHEN 'urgent' THEN 4 ELSE 0 END",
}

func taskOrder(sortBy, sortOrder string) string {
	column, ok := taskSortColumns[strings.ToLower(strings.TrimSpace(sortBy))]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(strings.TrimSpace(sortOrder), "asc") {
		direction = "ASC"
	}
	return column + " " + direction
}

func applyTaskFilters(query *gorm.DB, f TaskFilters, now time.Time) *gorm.DB {
	if statuses := normaliseIDs(f.Statuses); len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if priorities := normaliseIDs(f.Priorities); len(priorities) > 0 {
		query = query.Where("priority IN ?", priorities)
	}
	if categories := normaliseIDs(f.Categories); len(categories) > 0 {
		query = query.Where("category IN ?", categories)
	}
	if f.AssigneeID != "" {
		query = query.Where("assignee_id = ?", f.AssigneeID)
	}
	if f.TeamID != "" {
		query = query.Where("team_id = ?", f.TeamID)
	}
	if f.OwnerID != "" {
		query = query.Where("owner_id = ?", f.OwnerID)
	}
	if f.IsArchived != nil {
		query = query.Where("is_archived = ?", *f.IsArchived)
	}
	if f.DueFrom != nil {
		query = query.Where("due_date >= ?", *f.DueFrom)
	}
	if f.DueTo != nil {
		query = query.Where("due_date <= ?", *f.DueTo)
	}
	closed := []string{models.TaskStatusCompleted, models.TaskStatusArchived}
	if f.IsOverdue != nil {
		if *f.IsOverdue {
			query = query.Where("due_date IS NOT NULL AND due_date < ? AND status NOT IN ?", now, closed)
		} else {
			query = query.Where("due_date IS NULL OR due_date >= ? OR status IN ?", now, closed)
		}
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}
	return query
}

func defaultIfEmpty(value, fallback string) string {
	if value = strings.TrimSpace(value); value == "" {
		return fallback
	}
	return value
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
