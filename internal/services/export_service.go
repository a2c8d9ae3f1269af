package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/models"
	apperrors "github.com/charlesng35/taskboard/pkg/errors"
)

// Export formats.
const (
	ExportFormatCSV  = "csv"
	ExportFormatJSON = "json"
)

var exportHeader = []string{
	"ID", "Title", "Description", "Status", "Priority", "Category", "Owner", "Assignee",
	"Due Date", "Estimated Hours", "Actual Hours", "Progress %", "Created At", "Updated At", "Completed At",
}

// ExportOptions selects the tasks to export.
type ExportOptions struct {
	Format   string
	Statuses []string
	TeamID   string
}

// ExportResult is a rendered export ready to be served as an attachment.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
	Count       int
}

type exportUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type exportTask struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Status          string      `json:"status"`
	Priority        string      `json:"priority"`
	Category        string      `json:"category"`
	Owner           *exportUser `json:"owner"`
	Assignee        *exportUser `json:"assignee"`
	DueDate         *time.Time  `json:"due_date"`
	EstimatedHours  *float64    `json:"estimated_hours"`
	ActualHours     *float64    `json:"actual_hours"`
	ProgressPercent int         `json:"progress_percent"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	CompletedAt     *time.Time  `json:"completed_at"`
	IsOverdue       bool        `json:"is_overdue"`
}

// ExportService renders task exports.
type ExportService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(db *gorm.DB) (*ExportService, error) {
	if db == nil {
		return nil, errors.New("export service: db is required")
	}
	return &ExportService{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// ExportTasks renders the tasks visible to the actor (all for administrators, owned or
// assigned otherwise), newest first.
func (s *ExportService) ExportTasks(ctx context.Context, actorID string, opts ExportOptions) (*ExportResult, error) {
	ctx = ensureContext(ctx)

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatJSON {
		return nil, apperrors.NewBadRequest("format must be csv or json")
	}

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.Task{}).Preload("Owner").Preload("Assignee")
	if !actor.IsAdmin() {
		query = query.Where("owner_id = ? OR assignee_id = ?", actor.ID, actor.ID)
	}
	if statuses := normaliseIDs(opts.Statuses); len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if teamID := strings.TrimSpace(opts.TeamID); teamID != "" {
		query = query.Where("team_id = ?", teamID)
	}

	var tasks []models.Task
	if err := query.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("export service: load tasks: %w", err)
	}

	now := s.now()
	result := &ExportResult{
		Filename: fmt.Sprintf("tasks_export_%s.%s", now.Format("20060102_150405"), format),
		Count:    len(tasks),
	}

	switch format {
	case ExportFormatCSV:
		result.ContentType = "text/csv"
		result.Body, err = tasksToCSV(tasks)
	default:
		result.ContentType = "application/json"
		result.Body, err = tasksToJSON(tasks, now)
	}
	if err != nil {
		return nil, fmt.Errorf("export service: render %s: %w", format, err)
	}
	return result, nil
}

func tasksToCSV(tasks []models.Task) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, t := range tasks {
		row := []string{
			t.ID,
			t.Title,
			t.Description,
			t.Status,
			t.Priority,
			t.Category,
			usernameOf(t.Owner),
			usernameOf(t.Assignee),
			formatTime(t.DueDate),
			formatHours(t.EstimatedHours),
			formatHours(t.ActualHours),
			strconv.Itoa(t.ProgressPercent),
			t.CreatedAt.UTC().Format(time.RFC3339),
			t.UpdatedAt.UTC().Format(time.RFC3339),
			formatTime(t.CompletedAt),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func tasksToJSON(tasks []models.Task, now time.Time) ([]byte, error) {
	items := make([]exportTask, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, exportTask{
			ID:              t.ID,
			Title:           t.Title,
			Description:     t.Description,
			Status:          t.Status,
			Priority:        t.Priority,
			Category:        t.Category,
			Owner:           summariseUser(t.Owner),
			Assignee:        summariseUser(t.Assignee),
			DueDate:         t.DueDate,
			EstimatedHours:  t.EstimatedHours,
			ActualHours:     t.ActualHours,
			ProgressPercent: t.ProgressPercent,
			CreatedAt:       t.CreatedAt,
			UpdatedAt:       t.UpdatedAt,
			CompletedAt:     t.CompletedAt,
			IsOverdue:       t.IsOverdueAt(now),
		})
	}
	return json.MarshalIndent(map[string]any{
		"tasks":       items,
		"exported_at": now,
	}, "", "  ")
}

func summariseUser(u *models.User) *exportUser {
	if u == nil {
		return nil
	}
	return &exportUser{ID: u.ID, Username: u.Username, FullName: u.FullName}
}

func usernameOf(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.Username
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatHours(h *float64) string {
	if h == nil {
		return ""
	}
	return strconv.FormatFloat(*h, 'f', -1, 64)
}
