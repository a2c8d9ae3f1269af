package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskboard/internal/handlers/testutil"
	"github.com/charlesng35/taskboard/internal/models"
)

func unreadCount(t *testing.T, env *testutil.Env, token string) int64 {
	t.Helper()
	resp := env.Request(http.MethodGet, "/api/notifications/unread-count", nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body struct {
		UnreadCount int64 `json:"unread_count"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &body)
	return body.UnreadCount
}

func TestNotificationInboxLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser(models.UserRoleMember, "Secret123!")
	assignee := env.CreateUser(models.UserRoleMember, "Secret123!")
	ownerLogin := env.Login(owner.Username, "Secret123!")
	login := env.Login(assignee.Username, "Secret123!")

	for _, title := range []string{"first", "second", "third"} {
		createTask(t, env, ownerLogin.AccessToken, map[string]any{"title": title, "assignee_id": assignee.ID})
	}
	require.EqualValues(t, 3, unreadCount(t, env, login.AccessToken))

	list := listNotifications(t, env, login.AccessToken, "?page_size=2")
	require.EqualValues(t, 3, list.Total)
	require.Len(t, list.Items, 2)

	first := list.Items[0].ID
	resp := env.Request(http.MethodPost, "/api/notifications/"+first+"/read", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.EqualValues(t, 2, unreadCount(t, env, login.AccessToken))

	unread := listNotifications(t, env, login.AccessToken, "?unread_only=true")
	require.EqualValues(t, 2, unread.Total)
	for _, item := range unread.Items {
		require.False(t, item.IsRead)
	}

	resp = env.Request(http.MethodPost, "/api/notifications/read-all", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var marked struct {
		Updated int64 `json:"updated"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &marked)
	require.EqualValues(t, 2, marked.Updated)
	require.EqualValues(t, 0, unreadCount(t, env, login.AccessToken))

	resp = env.Request(http.MethodDelete, "/api/notifications/"+first, nil, login.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.EqualValues(t, 2, listNotifications(t, env, login.AccessToken, "").Total)
}

func TestNotificationsAreScopedToOwner(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser(models.UserRoleMember, "Secret123!")
	assignee := env.CreateUser(models.UserRoleMember, "Secret123!")
	ownerLogin := env.Login(owner.Username, "Secret123!")
	assigneeLogin := env.Login(assignee.Username, "Secret123!")

	createTask(t, env, ownerLogin.AccessToken, map[string]any{"title": "mine", "assignee_id": assignee.ID})
	id := listNotifications(t, env, assigneeLogin.AccessToken, "").Items[0].ID

	resp := env.Request(http.MethodPost, "/api/notifications/"+id+"/read", nil, ownerLogin.AccessToken)
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodDelete, "/api/notifications/"+id, nil, ownerLogin.AccessToken)
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())

	require.EqualValues(t, 1, unreadCount(t, env, assigneeLogin.AccessToken))
}

func TestNotificationBroadcast(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateAdmin("Secret123!")
	member := env.CreateUser(models.UserRoleMember, "Secret123!")
	inactive := env.CreateUser(models.UserRoleMember, "Secret123!")
	require.NoError(t, env.DB.Model(inactive).Update("is_active", false).Error)

	adminLogin := env.Login(admin.Username, "Secret123!")
	memberLogin := env.Login(member.Username, "Secret123!")

	payload := map[string]string{"title": "Maintenance", "message": "Downtime at 22:00"}

	resp := env.Request(http.MethodPost, "/api/notifications/broadcast", payload, memberLogin.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodPost, "/api/notifications/broadcast", payload, adminLogin.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var result struct {
		Recipients int `json:"recipients"`
		Created    int `json:"created"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &result)
	require.Equal(t, 2, result.Recipients)
	require.Equal(t, 2, result.Created)

	list := listNotifications(t, env, memberLogin.AccessToken, "")
	require.EqualValues(t, 1, list.Total)
	require.Equal(t, "system", list.Items[0].Type)
	require.Equal(t, "Maintenance", list.Items[0].Title)

	var count int64
	require.NoError(t, env.DB.Model(&models.Notification{}).Where("user_id = ?", inactive.ID).Count(&count).Error)
	require.Zero(t, count)
}
