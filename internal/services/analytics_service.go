package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/models"
	apperrors "github.com/charlesng35/taskboard/pkg/errors"
)

const (
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 365
)

// Count is a labelled tally used by analytics breakdowns.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// TrendPoint is one day of the created/completed trend.
type TrendPoint struct {
	Date      string `json:"date"`
	Created   int    `json:"created"`
	Completed int    `json:"completed"`
}

// TaskAnalytics summarises a set of tasks.
type TaskAnalytics struct {
	TotalTasks             int          `json:"total_tasks"`
	CompletedTasks         int          `json:"completed_tasks"`
	OverdueTasks           int          `json:"overdue_tasks"`
	InProgressTasks        int          `json:"in_progress_tasks"`
	CompletionRate         float64      `json:"completion_rate"`
	AverageCompletionHours *float64     `json:"average_completion_time_hours"`
	StatusBreakdown        []Count      `json:"status_breakdown"`
	PriorityBreakdown      []Count      `json:"priority_breakdown"`
	CategoryBreakdown      []Count      `json:"category_breakdown"`
	CompletionTrend        []TrendPoint `json:"completion_trend"`
}

// MemberStats reports a team member's assigned and completed tasks.
type MemberStats struct {
	UserID         string  `json:"user_id"`
	Username       string  `json:"username"`
	FullName       string  `json:"full_name"`
	Role           string  `json:"role"`
	TasksAssigned  int     `json:"tasks_assigned"`
	TasksCompleted int     `json:"tasks_completed"`
	CompletionRate float64 `json:"completion_rate"`
}

// TeamAnalytics summarises a team's tasks.
type TeamAnalytics struct {
	TeamID         string        `json:"team_id"`
	TeamName       string        `json:"team_name"`
	TotalTasks     int           `json:"total_tasks"`
	CompletedTasks int           `json:"completed_tasks"`
	OverdueTasks   int           `json:"overdue_tasks"`
	CompletionRate float64       `json:"completion_rate"`
	MemberStats    []MemberStats `json:"member_stats"`
}

// UserAnalytics summarises the caller's own work.
type UserAnalytics struct {
	UserID             string         `json:"user_id"`
	TotalTasksOwned    int            `json:"total_tasks_owned"`
	TotalTasksAssigned int            `json:"total_tasks_assigned"`
	Tasks              *TaskAnalytics `json:"tasks"`
	RecentActivity     []models.Task  `json:"recent_activity"`
}

// AnalyticsService computes reporting views over tasks.
type AnalyticsService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAnalyticsService constructs an AnalyticsService.
func NewAnalyticsService(db *gorm.DB) (*AnalyticsService, error) {
	if db == nil {
		return nil, errors.New("analytics service: db is required")
	}
	return &AnalyticsService{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// TaskAnalytics reports on non-archived tasks. Non-administrators only see tasks they
// own or are assigned; teamID narrows to one team.
func (s *AnalyticsService) TaskAnalytics(ctx context.Context, actorID, teamID string, days int) (*TaskAnalytics, error) {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.Task{}).Where("is_archived = ?", false)
	if !actor.IsAdmin() {
		query = query.Where("owner_id = ? OR assignee_id = ?", actor.ID, actor.ID)
	}
	if teamID != "" {
		query = query.Where("team_id = ?", teamID)
	}

	var tasks []models.Task
	if err := query.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("analytics service: load tasks: %w", err)
	}
	return summariseTasks(tasks, s.now(), days), nil
}

// TeamAnalytics reports on a team's tasks. Only administrators and members may view it.
func (s *AnalyticsService) TeamAnalytics(ctx context.Context, actorID, teamID string) (*TeamAnalytics, error) {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}

	var team models.Team
	err = s.db.WithContext(ctx).Preload("Members.User").First(&team, "id = ?", teamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("analytics service: load team: %w", err)
	}
	if !actor.IsAdmin() && findMember(&team, actor.ID) == nil {
		return nil, apperrors.ErrForbidden
	}

	var tasks []models.Task
	if err := s.db.WithContext(ctx).
		Where("team_id = ? AND is_archived = ?", team.ID, false).
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("analytics service: load team tasks: %w", err)
	}

	now := s.now()
	out := &TeamAnalytics{
		TeamID:      team.ID,
		TeamName:    team.Name,
		TotalTasks:  len(tasks),
		MemberStats: make([]MemberStats, 0, len(team.Members)),
	}
	for _, t := range tasks {
		if t.Status == models.TaskStatusCompleted {
			out.CompletedTasks++
		}
		if t.IsOverdueAt(now) {
			out.OverdueTasks++
		}
	}
	out.CompletionRate = percentage(out.CompletedTasks, out.TotalTasks)

	for _, m := range team.Members {
		stats := MemberStats{UserID: m.UserID, Role: m.Role}
		if m.User != nil {
			stats.Username = m.User.Username
			stats.FullName = m.User.FullName
		}
		for _, t := range tasks {
			if !t.IsAssignedTo(m.UserID) {
				continue
			}
			stats.TasksAssigned++
			if t.Status == models.TaskStatusCompleted {
				stats.TasksCompleted++
			}
		}
		stats.CompletionRate = percentage(stats.TasksCompleted, stats.TasksAssigned)
		out.MemberStats = append(out.MemberStats, stats)
	}
	return out, nil
}

// UserAnalytics reports on the actor's own and assigned tasks.
func (s *AnalyticsService) UserAnalytics(ctx context.Context, actorID string, days int) (*UserAnalytics, error) {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}

	var tasks []models.Task
	if err := s.db.WithContext(ctx).
		Where("is_archived = ?", false).
		Where("owner_id = ? OR assignee_id = ?", actor.ID, actor.ID).
		Order("updated_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("analytics service: load user tasks: %w", err)
	}

	out := &UserAnalytics{
		UserID: actor.ID,
		Tasks:  summariseTasks(tasks, s.now(), days),
	}
	for _, t := range tasks {
		if t.OwnerID == actor.ID {
			out.TotalTasksOwned++
		}
		if t.IsAssignedTo(actor.ID) {
			out.TotalTasksAssigned++
		}
	}
	recent := tasks
	if len(recent) > 10 {
		recent = recent[:10]
	}
	out.RecentActivity = recent
	return out, nil
}

func summariseTasks(tasks []models.Task, now time.Time, days int) *TaskAnalytics {
	if days <= 0 {
		days = defaultAnalyticsDays
	}
	if days > maxAnalyticsDays {
		days = maxAnalyticsDays
	}

	out := &TaskAnalytics{TotalTasks: len(tasks)}
	statuses := map[string]int{}
	priorities := map[string]int{}
	categories := map[string]int{}

	var (
		completionHours float64
		completedTimed  int
	)
	for _, t := range tasks {
		statuses[t.Status]++
		priorities[t.Priority]++
		categories[t.Category]++

		switch t.Status {
		case models.TaskStatusCompleted:
			out.CompletedTasks++
		case models.TaskStatusInProgress:
			out.InProgressTasks++
		}
		if t.IsOverdueAt(now) {
			out.OverdueTasks++
		}
		if t.CompletedAt != nil {
			completionHours += t.CompletedAt.Sub(t.CreatedAt).Hours()
			completedTimed++
		}
	}

	out.CompletionRate = percentage(out.CompletedTasks, out.TotalTasks)
	if completedTimed > 0 {
		avg := round2(completionHours / float64(completedTimed))
		out.AverageCompletionHours = &avg
	}
	out.StatusBreakdown = breakdown(models.TaskStatuses, statuses)
	out.PriorityBreakdown = breakdown(models.TaskPriorities, priorities)
	out.CategoryBreakdown = breakdown(models.TaskCategories, categories)
	out.CompletionTrend = completionTrend(tasks, now, days)
	return out
}

// completionTrend buckets creations and completions per UTC day, oldest first.
func completionTrend(tasks []models.Task, now time.Time, days int) []TrendPoint {
	today := now.UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(days - 1))

	points := make([]TrendPoint, days)
	index := make(map[string]int, days)
	for i := range points {
		day := start.AddDate(0, 0, i).Format(time.DateOnly)
		points[i].Date = day
		index[day] = i
	}

	for _, t := range tasks {
		if i, ok := index[t.CreatedAt.UTC().Format(time.DateOnly)]; ok {
			points[i].Created++
		}
		if t.CompletedAt != nil {
			if i, ok := index[t.CompletedAt.UTC().Format(time.DateOnly)]; ok {
				points[i].Completed++
			}
		}
	}
	return points
}

func breakdown(keys []string, counts map[string]int) []Count {
	out := make([]Count, 0, len(keys))
	for _, key := range keys {
		if counts[key] > 0 {
			out = append(out, Count{Key: key, Count: counts[key]})
		}
	}
	return out
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
