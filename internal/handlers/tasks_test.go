package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskboard/internal/handlers/testutil"
	"github.com/charlesng35/taskboard/internal/models"
)

type taskPayload struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	Priority        string  `json:"priority"`
	ProgressPercent int     `json:"progress_percent"`
	OwnerID         string  `json:"owner_id"`
	AssigneeID      *string `json:"assignee_id"`
}

type notificationList struct {
	Items []struct {
		ID            string  `json:"id"`
		Type          string  `json:"type"`
		Title         string  `json:"title"`
		IsRead        bool    `json:"is_read"`
		RelatedTaskID *string `json:"related_task_id"`
	} `json:"items"`
	Total int64 `json:"total"`
}

func createTask(t *testing.T, env *testutil.Env, token string, body map[string]any) taskPayload {
	t.Helper()
	resp := env.Request(http.MethodPost, "/api/tasks", body, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var task taskPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &task)
	return task
}

func listNotifications(t *testing.T, env *testutil.Env, token, query string) notificationList {
	t.Helper()
	resp := env.Request(http.MethodGet, "/api/notifications"+query, nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var list notificationList
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &list)
	return list
}

func TestTaskCreateAssignsAndNotifies(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser(models.UserRoleMember, "Secret123!")
	assignee := env.CreateUser(models.UserRoleMember, "Secret123!")
	ownerLogin := env.Login(owner.Username, "Secret123!")
	assigneeLogin := env.Login(assignee.Username, "Secret123!")

	task := createTask(t, env, ownerLogin.AccessToken, map[string]any{
		"title":       "Write release notes",
		"priority":    "high",
		"assignee_id": assignee.ID,
	})
	require.Equal(t, owner.ID, task.OwnerID)
	require.Equal(t, "todo", task.Status)
	require.NotNil(t, task.AssigneeID)

	list := listNotifications(t, env, assigneeLogin.AccessToken, "")
	require.EqualValues(t, 1, list.Total)
	require.Equal(t, "task_assigned", list.Items[0].Type)
	require.NotNil(t, list.Items[0].RelatedTaskID)
	require.Equal(t, task.ID, *list.Items[0].RelatedTaskID)

	// The owner assigned the task and receives nothing.
	require.EqualValues(t, 0, listNotifications(t, env, ownerLogin.AccessToken, "").Total)
}

func TestTaskCreateValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.UserRoleMember, "Secret123!")
	login := env.Login(user.Username, "Secret123!")

	resp := env.Request(http.MethodPost, "/api/tasks", map[string]any{"title": "x", "priority": "critical"}, login.AccessToken)
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodPost, "/api/tasks", map[string]any{"description": "no title"}, login.AccessToken)
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
}

func TestTaskCompletionNotifiesOwner(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser(models.UserRoleMember, "Secret123!")
	assignee := env.CreateUser(models.UserRoleMember, "Secret123!")
	ownerLogin := env.Login(owner.Username, "Secret123!")
	assigneeLogin := env.Login(assignee.Username, "Secret123!")

	task := createTask(t, env, ownerLogin.AccessToken, map[string]any{
		"title":       "Ship it",
		"assignee_id": assignee.ID,
	})

	resp := env.Request(http.MethodPatch, "/api/tasks/"+task.ID, map[string]any{"status": "completed"}, assigneeLogin.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var updated taskPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &updated)
	require.Equal(t, "completed", updated.Status)
	require.Equal(t, 100, updated.ProgressPercent)

	list := listNotifications(t, env, ownerLogin.AccessToken, "")
	require.EqualValues(t, 1, list.Total)
	require.Equal(t, "task_completed", list.Items[0].Type)
}

func TestTaskVisibility(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser(models.UserRoleMember, "Secret123!")
	outsider := env.CreateUser(models.UserRoleMember, "Secret123!")
	admin := env.CreateAdmin("Secret123!")
	ownerLogin := env.Login(owner.Username, "Secret123!")
	outsiderLogin := env.Login(outsider.Username, "Secret123!")
	adminLogin := env.Login(admin.Username, "Secret123!")

	task := createTask(t, env, ownerLogin.AccessToken, map[string]any{"title": "Private"})

	resp := env.Request(http.MethodGet, "/api/tasks/"+task.ID, nil, outsiderLogin.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodDelete, "/api/tasks/"+task.ID, nil, outsiderLogin.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/tasks/"+task.ID, nil, adminLogin.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/tasks/does-not-exist", nil, adminLogin.AccessToken)
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodDelete, "/api/tasks/"+task.ID, nil, ownerLogin.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestTaskListFilters(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.UserRoleMember, "Secret123!")
	login := env.Login(user.Username, "Secret123!")

	createTask(t, env, login.AccessToken, map[string]any{"title": "Fix login bug", "priority": "urgent", "category": "bug"})
	createTask(t, env, login.AccessToken, map[string]any{"title": "Write docs", "priority": "low", "category": "documentation"})
	createTask(t, env, login.AccessToken, map[string]any{"title": "Refactor cache", "priority": "medium"})

	resp := env.Request(http.MethodGet, "/api/tasks?priority=urgent,low&sort_by=title&sort_order=asc", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	body := testutil.DecodeResponse(t, resp)
	var tasks []taskPayload
	testutil.DecodeInto(t, body.Data, &tasks)
	require.Len(t, tasks, 2)
	require.Equal(t, "Fix login bug", tasks[0].Title)
	require.Equal(t, "Write docs", tasks[1].Title)
	require.NotNil(t, body.Meta)
	require.EqualValues(t, 2, body.Meta.Total)

	resp = env.Request(http.MethodGet, "/api/tasks?search=cache", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &tasks)
	require.Len(t, tasks, 1)

	resp = env.Request(http.MethodGet, "/api/tasks?due_from=yesterday", nil, login.AccessToken)
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
}

func TestTaskExportAttachment(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.UserRoleMember, "Secret123!")
	login := env.Login(user.Username, "Secret123!")
	createTask(t, env, login.AccessToken, map[string]any{"title": "Exported"})

	resp := env.Request(http.MethodGet, "/api/export/tasks?format=csv", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Contains(t, resp.Header().Get("Content-Disposition"), "tasks_export_")
	require.Contains(t, resp.Body.String(), "Exported")

	resp = env.Request(http.MethodGet, "/api/export/tasks?format=xml", nil, login.AccessToken)
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
}
