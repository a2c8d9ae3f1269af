package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskboard/internal/database/testutil"
	"github.com/charlesng35/taskboard/internal/models"
	"github.com/charlesng35/taskboard/internal/realtime"
)

type pushed struct {
	userID string
	msg    realtime.Message
}

type recordingSender struct {
	mu    sync.Mutex
	calls []pushed
}

func (s *recordingSender) SendToUser(_ context.Context, userID string, msg realtime.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, pushed{userID: userID, msg: msg})
	return 0
}

func (s *recordingSender) pushes() []pushed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pushed(nil), s.calls...)
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) Insert(context.Context, *models.Notification) error {
	return f.err
}

type liveConn struct {
	mu       sync.Mutex
	received []realtime.Message
}

func (c *liveConn) Send(_ context.Context, msg realtime.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, msg)
	return nil
}

func (c *liveConn) Close() error { return nil }

func (c *liveConn) messages() []realtime.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Message(nil), c.received...)
}

func newTestDispatcher(t *testing.T, sender Sender) (*Dispatcher, *GormStore) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store, err := NewGormStore(db)
	require.NoError(t, err)
	d, err := NewDispatcher(store, sender)
	require.NoError(t, err)
	return d, store
}

func TestNewDispatcherRequiresDependencies(t *testing.T) {
	_, err := NewDispatcher(nil, &recordingSender{})
	require.Error(t, err)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store, err := NewGormStore(db)
	require.NoError(t, err)
	_, err = NewDispatcher(store, nil)
	require.Error(t, err)
}

func TestCreatePersistsWithoutLiveConnection(t *testing.T) {
	d, _ := newTestDispatcher(t, realtime.NewRegistry())
	ctx := context.Background()

	task := &models.Task{BaseModel: models.BaseModel{ID: "42"}, Title: "Ship release"}
	record, err := d.Create(ctx, TaskAssigned(task, "u1", "alice"))
	require.NoError(t, err)

	require.Equal(t, string(KindTaskAssigned), record.Type)
	require.Equal(t, "New Task Assigned", record.Title)
	require.Contains(t, record.Message, "alice")
	require.Contains(t, record.Message, "Ship release")
	require.NotNil(t, record.RelatedTaskID)
	require.Equal(t, "42", *record.RelatedTaskID)
	require.False(t, record.IsRead)

	count, err := d.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestCreatePushesPersistedRecord(t *testing.T) {
	sender := &recordingSender{}
	d, _ := newTestDispatcher(t, sender)

	record, err := d.Create(context.Background(), System("u1", "Maintenance", "Back at 5pm"))
	require.NoError(t, err)

	calls := sender.pushes()
	require.Len(t, calls, 1)
	require.Equal(t, "u1", calls[0].userID)
	require.Equal(t, realtime.MessageTypeNotification, calls[0].msg.Type)

	payload, ok := calls[0].msg.Data.(LivePayload)
	require.True(t, ok)
	require.Equal(t, record.ID, payload.ID)
	require.NotEmpty(t, payload.ID)
	require.Equal(t, "system", payload.Type)
	require.Equal(t, "Maintenance", payload.Title)
	require.False(t, payload.CreatedAt.IsZero())
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	sender := &recordingSender{}
	d, _ := newTestDispatcher(t, sender)
	ctx := context.Background()

	_, err := d.Create(ctx, CreateInput{UserID: "u1", Kind: "party", Title: "x"})
	require.ErrorIs(t, err, ErrInvalidKind)

	_, err = d.Create(ctx, CreateInput{Kind: KindSystem, Title: "x"})
	require.Error(t, err)

	_, err = d.Create(ctx, CreateInput{UserID: "u1", Kind: KindSystem, Title: "  "})
	require.Error(t, err)

	require.Empty(t, sender.pushes())
}

func TestCreateStoreFailureSkipsPush(t *testing.T) {
	sender := &recordingSender{}
	boom := errors.New("disk full")
	d, err := NewDispatcher(failingStore{err: boom}, sender)
	require.NoError(t, err)

	_, err = d.Create(context.Background(), System("u1", "Hello", "world"))
	require.ErrorIs(t, err, boom)
	require.Empty(t, sender.pushes())
}

func TestCreateFansOutToEveryConnection(t *testing.T) {
	registry := realtime.NewRegistry()
	d, store := newTestDispatcher(t, registry)
	ctx := context.Background()

	c1, c2 := &liveConn{}, &liveConn{}
	registry.Connect(c1, "u1")
	registry.Connect(c2, "u1")

	team := &models.Team{BaseModel: models.BaseModel{ID: "team-1"}, Name: "Platform"}
	record, err := d.Create(ctx, TeamInvited(team, "u1", "bob"))
	require.NoError(t, err)

	for _, conn := range []*liveConn{c1, c2} {
		msgs := conn.messages()
		require.Len(t, msgs, 1)
		require.Equal(t, record.ID, msgs[0].Data.(LivePayload).ID)
	}

	_, total, err := store.Query(ctx, Filter{UserID: "u1", Limit: 10})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	registry.Disconnect(c1, "u1")
	_, err = d.Create(ctx, TaskUpdated(&models.Task{BaseModel: models.BaseModel{ID: "t1"}, Title: "Docs"}, "u1", "bob"))
	require.NoError(t, err)

	require.Len(t, c1.messages(), 1)
	require.Len(t, c2.messages(), 2)
	require.Equal(t, 1, registry.ConnectionCount("u1"))
}

func TestOwnershipIsolation(t *testing.T) {
	d, _ := newTestDispatcher(t, &recordingSender{})
	ctx := context.Background()

	record, err := d.Create(ctx, System("owner", "Private", "only for owner"))
	require.NoError(t, err)

	_, err = d.MarkRead(ctx, record.ID, "intruder")
	require.ErrorIs(t, err, ErrNotificationNotFound)

	err = d.Delete(ctx, record.ID, "intruder")
	require.ErrorIs(t, err, ErrNotificationNotFound)

	_, err = d.MarkRead(ctx, "does-not-exist", "owner")
	require.ErrorIs(t, err, ErrNotificationNotFound)

	// the owner's record is untouched
	count, err := d.UnreadCount(ctx, "owner")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	require.NoError(t, d.Delete(ctx, record.ID, "owner"))
	require.ErrorIs(t, d.Delete(ctx, record.ID, "owner"), ErrNotificationNotFound)
}

func TestMarkReadSetsTimestamp(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store, err := NewGormStore(db)
	require.NoError(t, err)
	d, err := NewDispatcher(store, &recordingSender{}, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	ctx := context.Background()

	record, err := d.Create(ctx, System("u1", "Hi", "there"))
	require.NoError(t, err)

	updated, err := d.MarkRead(ctx, record.ID, "u1")
	require.NoError(t, err)
	require.True(t, updated.IsRead)
	require.NotNil(t, updated.ReadAt)
	require.True(t, fixed.Equal(*updated.ReadAt))

	stored, err := store.Get(ctx, record.ID, "u1")
	require.NoError(t, err)
	require.True(t, stored.IsRead)

	// marking again keeps the original timestamp
	again, err := d.MarkRead(ctx, record.ID, "u1")
	require.NoError(t, err)
	require.True(t, fixed.Equal(*again.ReadAt))
}

func TestMarkAllReadIsIdempotent(t *testing.T) {
	d, store := newTestDispatcher(t, &recordingSender{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		record, err := d.Create(ctx, System("u1", "Note", "body"))
		require.NoError(t, err)
		ids = append(ids, record.ID)
	}
	for _, id := range ids[:2] {
		_, err := d.MarkRead(ctx, id, "u1")
		require.NoError(t, err)
	}

	changed, err := d.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 3, changed)

	rows, total, err := store.Query(ctx, Filter{UserID: "u1", Limit: 10})
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	for _, row := range rows {
		require.True(t, row.IsRead)
	}

	changed, err = d.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, changed)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	d, _ := newTestDispatcher(t, &recordingSender{})
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := d.Create(ctx, System("u1", "Note", "body"))
		require.NoError(t, err)
	}
	_, err := d.Create(ctx, System("u2", "Other", "body"))
	require.NoError(t, err)

	first, err := d.List(ctx, ListInput{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 1, first.Page)
	require.Equal(t, DefaultPageSize, first.PageSize)
	require.EqualValues(t, 25, first.Total)
	require.Equal(t, 2, first.TotalPages)
	require.Len(t, first.Items, 20)
	for i := 1; i < len(first.Items); i++ {
		require.False(t, first.Items[i].CreatedAt.After(first.Items[i-1].CreatedAt))
	}

	second, err := d.List(ctx, ListInput{UserID: "u1", Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, second.Items, 5)

	clamped, err := d.List(ctx, ListInput{UserID: "u1", PageSize: 1000})
	require.NoError(t, err)
	require.Equal(t, MaxPageSize, clamped.PageSize)
	require.Equal(t, 1, clamped.TotalPages)

	_, err = d.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	unread, err := d.List(ctx, ListInput{UserID: "u1", UnreadOnly: true})
	require.NoError(t, err)
	require.Empty(t, unread.Items)
	require.NotNil(t, unread.Items)
	require.Zero(t, unread.TotalPages)
}

func TestCreateAllAggregatesFailures(t *testing.T) {
	d, _ := newTestDispatcher(t, &recordingSender{})

	created, err := d.CreateAll(context.Background(),
		System("u1", "ok", "body"),
		System("", "missing user", "body"),
		System("u2", "ok", "body"),
		CreateInput{UserID: "u3", Kind: "bogus", Title: "bad"},
	)
	require.Equal(t, 2, created)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestPurgeReadRemovesOnlyOldReadRows(t *testing.T) {
	d, store := newTestDispatcher(t, &recordingSender{})
	ctx := context.Background()

	old, err := d.Create(ctx, System("u1", "old", "body"))
	require.NoError(t, err)
	_, err = d.MarkRead(ctx, old.ID, "u1")
	require.NoError(t, err)
	_, err = d.Create(ctx, System("u1", "unread", "body"))
	require.NoError(t, err)

	removed, err := d.PurgeRead(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, total, err := store.Query(ctx, Filter{UserID: "u1", Limit: 10})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
}
