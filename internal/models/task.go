package models

import "time"

// Task priorities.
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
	TaskPriorityUrgent = "urgent"
)

// Task statuses.
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusInReview   = "in_review"
	TaskStatusCompleted  = "completed"
	TaskStatusArchived   = "archived"
)

// Task categories.
const (
	TaskCategoryBug           = "bug"
	TaskCategoryFeature       = "feature"
	TaskCategoryImprovement   = "improvement"
	TaskCategoryDocumentation = "documentation"
	TaskCategoryMaintenance   = "maintenance"
	TaskCategoryResearch      = "research"
	TaskCategoryOther         = "other"
)

var (
	// TaskPriorities lists valid priorities from lowest to highest.
	TaskPriorities = []string{TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent}
	// TaskStatuses lists valid workflow states.
	TaskStatuses = []string{TaskStatusTodo, TaskStatusInProgress, TaskStatusInReview, TaskStatusCompleted, TaskStatusArchived}
	// TaskCategories lists valid categories.
	TaskCategories = []string{
		TaskCategoryBug, TaskCategoryFeature, TaskCategoryImprovement, TaskCategoryDocumentation,
		TaskCategoryMaintenance, TaskCategoryResearch, TaskCategoryOther,
	}
)

// Task is a unit of work owned by a user and optionally assigned to another user or team.
type Task struct {
	BaseModel

	Title       string `gorm:"size:255;not null;index" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	Priority string `gorm:"size:16;not null;default:medium;index" json:"priority"`
	Status   string `gorm:"size:16;not null;default:todo;index" json:"status"`
	Category string `gorm:"size:32;not null;default:other" json:"category"`

	EstimatedHours  *float64 `json:"estimated_hours"`
	ActualHours     *float64 `json:"actual_hours"`
	ProgressPercent int      `gorm:"default:0" json:"progress_percent"`

	DueDate     *time.Time `gorm:"index" json:"due_date"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	IsArchived  bool       `gorm:"default:false;index" json:"is_archived"`

	OwnerID      string  `gorm:"type:uuid;not null;index" json:"owner_id"`
	AssigneeID   *string `gorm:"type:uuid;index" json:"assignee_id"`
	TeamID       *string `gorm:"type:uuid;index" json:"team_id"`
	ParentTaskID *string `gorm:"type:uuid;index" json:"parent_task_id"`

	DueSoonNotifiedAt *time.Time `json:"-"`
	OverdueNotifiedAt *time.Time `json:"-"`

	Owner    *User `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Assignee *User `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	Team     *Team `gorm:"foreignKey:TeamID" json:"-"`
}

// IsOverdueAt reports whether the task's due date has passed at now while still open.
func (t *Task) IsOverdueAt(now time.Time) bool {
	if t == nil || t.DueDate == nil {
		return false
	}
	if t.Status == TaskStatusCompleted || t.Status == TaskStatusArchived {
		return false
	}
	return t.DueDate.Before(now)
}

// IsAssignedTo reports whether userID is the task's assignee.
func (t *Task) IsAssignedTo(userID string) bool {
	return t != nil && t.AssigneeID != nil && *t.AssigneeID == userID
}
