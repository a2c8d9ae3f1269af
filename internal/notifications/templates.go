package notifications

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/charlesng35/taskboard/internal/models"
)

// TaskAssigned notifies assigneeID that assignerName handed them task.
func TaskAssigned(task *models.Task, assigneeID, assignerName string) CreateInput {
	return taskInput(task, assigneeID, KindTaskAssigned, "New Task Assigned",
		fmt.Sprintf("%s assigned you to task %q", assignerName, task.Title))
}

// TaskUpdated notifies userID that updaterName changed task.
func TaskUpdated(task *models.Task, userID, updaterName string) CreateInput {
	return taskInput(task, userID, KindTaskUpdated, "Task Updated",
		fmt.Sprintf("%s updated task %q", updaterName, task.Title))
}

// TaskCompleted notifies userID that completerName finished task.
func TaskCompleted(task *models.Task, userID, completerName string) CreateInput {
	return taskInput(task, userID, KindTaskCompleted, "Task Completed",
		fmt.Sprintf("%s completed task %q", completerName, task.Title))
}

// TaskDueSoon reminds userID that task is due in dueIn.
func TaskDueSoon(task *models.Task, userID string, dueIn time.Duration) CreateInput {
	return taskInput(task, userID, KindTaskDueSoon, "Task Due Soon",
		fmt.Sprintf("Task %q is due %s", task.Title, relative(dueIn)))
}

// TaskOverdue tells userID that task passed its due date since ago.
func TaskOverdue(task *models.Task, userID string, since time.Duration) CreateInput {
	return taskInput(task, userID, KindTaskOverdue, "Task Overdue",
		fmt.Sprintf("Task %q was due %s", task.Title, relative(-since)))
}

// TeamInvited notifies userID that inviterName added them to team.
func TeamInvited(team *models.Team, userID, inviterName string) CreateInput {
	return teamInput(team, userID, KindTeamInvited, "Team Invitation",
		fmt.Sprintf("%s added you to team %q", inviterName, team.Name))
}

// TeamRemoved notifies userID that removerName removed them from team.
func TeamRemoved(team *models.Team, userID, removerName string) CreateInput {
	return teamInput(team, userID, KindTeamRemoved, "Removed From Team",
		fmt.Sprintf("%s removed you from team %q", removerName, team.Name))
}

// CommentAdded notifies userID of a new comment on task.
func CommentAdded(task *models.Task, userID, commenterName string) CreateInput {
	return taskInput(task, userID, KindCommentAdded, "New Comment",
		fmt.Sprintf("%s commented on task %q", commenterName, task.Title))
}

// Mention notifies userID that mentionerName mentioned them in task.
func Mention(task *models.Task, userID, mentionerName string) CreateInput {
	return taskInput(task, userID, KindMention, "You Were Mentioned",
		fmt.Sprintf("%s mentioned you in task %q", mentionerName, task.Title))
}

// System builds a free-form system notification.
func System(userID, title, message string) CreateInput {
	return CreateInput{UserID: userID, Kind: KindSystem, Title: title, Message: message}
}

func taskInput(task *models.Task, userID string, kind Kind, title, message string) CreateInput {
	in := CreateInput{UserID: userID, Kind: kind, Title: title, Message: message}
	if task.ID != "" {
		id := task.ID
		in.RelatedTaskID = &id
	}
	if task.TeamID != nil && *task.TeamID != "" {
		teamID := *task.TeamID
		in.RelatedTeamID = &teamID
	}
	return in
}

func teamInput(team *models.Team, userID string, kind Kind, title, message string) CreateInput {
	in := CreateInput{UserID: userID, Kind: kind, Title: title, Message: message}
	if team.ID != "" {
		id := team.ID
		in.RelatedTeamID = &id
	}
	return in
}

// relative renders an offset from now, e.g. "3 hours from now" or "2 days ago".
func relative(offset time.Duration) string {
	ref := time.Unix(0, 0)
	return humanize.RelTime(ref.Add(offset), ref, "ago", "from now")
}
