package notifications

import (
	"net/http"

	apperrors "github.com/charlesng35/taskboard/pkg/errors"
)

// Kind classifies a notification.
type Kind string

// Notification kinds.
const (
	KindTaskAssigned  Kind = "task_assigned"
	KindTaskUpdated   Kind = "task_updated"
	KindTaskCompleted Kind = "task_completed"
	KindTaskDueSoon   Kind = "task_due_soon"
	KindTaskOverdue   Kind = "task_overdue"
	KindTeamInvited   Kind = "team_invited"
	KindTeamRemoved   Kind = "team_removed"
	KindCommentAdded  Kind = "comment_added"
	KindMention       Kind = "mention"
	KindSystem        Kind = "system"
)

// Kinds lists every valid notification kind.
var Kinds = []Kind{
	KindTaskAssigned, KindTaskUpdated, KindTaskCompleted, KindTaskDueSoon, KindTaskOverdue,
	KindTeamInvited, KindTeamRemoved, KindCommentAdded, KindMention, KindSystem,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

var (
	// ErrNotificationNotFound covers both missing notifications and notifications owned by someone else.
	ErrNotificationNotFound = apperrors.New("NOTIFICATION_NOT_FOUND", "Notification not found", http.StatusNotFound)
	// ErrInvalidKind rejects notifications with an unknown kind.
	ErrInvalidKind = apperrors.New("INVALID_NOTIFICATION_TYPE", "Unknown notification type", http.StatusBadRequest)
)
