package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	testutil "github.com/charlesng35/taskboard/internal/database/testutil"
	"github.com/charlesng35/taskboard/internal/models"
	"github.com/charlesng35/taskboard/internal/notifications"
	"github.com/charlesng35/taskboard/internal/realtime"
	"github.com/charlesng35/taskboard/internal/services"
)

type fixedClock struct {
	current time.Time
}

func (c fixedClock) Now() time.Time {
	return c.current
}

type fakeReminders struct {
	windows []time.Duration
	err     error
}

func (f *fakeReminders) SendDueReminders(_ context.Context, window time.Duration) (services.ReminderResult, error) {
	f.windows = append(f.windows, window)
	return services.ReminderResult{DueSoon: 1}, f.err
}

type fakePurger struct {
	cutoffs []time.Time
	err     error
}

func (f *fakePurger) PurgeRead(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 2, f.err
}

type fakeSessions struct{ calls int }

func (f *fakeSessions) CleanupExpired(context.Context) (int64, error) {
	f.calls++
	return 0, nil
}

type fakeActivity struct{ days []int }

func (f *fakeActivity) CleanupOlderThan(_ context.Context, days int) (int64, error) {
	f.days = append(f.days, days)
	return 0, nil
}

type fakeCache struct {
	calls int
	err   error
}

func (f *fakeCache) PurgeExpired(context.Context) (int64, error) {
	f.calls++
	return 0, f.err
}

func TestPurgeAppliesRetention(t *testing.T) {
	clock := fixedClock{current: time.Date(2024, 5, 20, 3, 0, 0, 0, time.UTC)}
	purger := &fakePurger{}
	activity := &fakeActivity{}

	cleaner := NewCleaner(Dependencies{Notifications: purger, Activity: activity},
		WithNow(clock.Now),
		WithNotificationRetentionDays(30),
		WithActivityRetentionDays(7),
	)

	require.NoError(t, cleaner.Purge(context.Background()))
	require.Equal(t, []time.Time{clock.current.AddDate(0, 0, -30)}, purger.cutoffs)
	require.Equal(t, []int{7}, activity.days)
}

func TestPurgeContinuesAfterFailure(t *testing.T) {
	purger := &fakePurger{err: errors.New("db locked")}
	sessions := &fakeSessions{}
	activity := &fakeActivity{}
	cacheStore := &fakeCache{err: errors.New("cache down")}

	cleaner := NewCleaner(Dependencies{
		Notifications: purger,
		Sessions:      sessions,
		Activity:      activity,
		Cache:         cacheStore,
	})

	err := cleaner.Purge(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "purge notifications: db locked")
	require.ErrorContains(t, err, "purge cache: cache down")

	require.Equal(t, 1, sessions.calls)
	require.Equal(t, []int{defaultActivityRetention}, activity.days)
	require.Equal(t, 1, cacheStore.calls)
}

func TestScanDueUsesWindow(t *testing.T) {
	reminders := &fakeReminders{}
	cleaner := NewCleaner(Dependencies{Reminders: reminders}, WithDueSoonWindow(2*time.Hour))

	require.NoError(t, cleaner.ScanDue(context.Background()))
	require.Equal(t, []time.Duration{2 * time.Hour}, reminders.windows)
}

func TestScanDueWithoutReminders(t *testing.T) {
	cleaner := NewCleaner(Dependencies{})
	require.NoError(t, cleaner.ScanDue(context.Background()))
}

func TestRunOnceRunsBothJobs(t *testing.T) {
	reminders := &fakeReminders{err: errors.New("scan failed")}
	purger := &fakePurger{}

	cleaner := NewCleaner(Dependencies{Reminders: reminders, Notifications: purger})

	err := cleaner.RunOnce(context.Background())
	require.ErrorContains(t, err, "scan failed")
	require.Len(t, reminders.windows, 1)
	require.Len(t, purger.cutoffs, 1)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	cleaner := NewCleaner(Dependencies{Reminders: &fakeReminders{}},
		WithCron(cron.New()),
		WithScanSchedule("not a schedule"),
	)
	require.Error(t, cleaner.Start())
}

func TestStartAndStop(t *testing.T) {
	c := cron.New()
	cleaner := NewCleaner(Dependencies{Reminders: &fakeReminders{}, Notifications: &fakePurger{}}, WithCron(c))

	require.NoError(t, cleaner.Start())
	require.Len(t, c.Entries(), 2)

	select {
	case <-cleaner.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type discardSender struct{}

func (discardSender) SendToUser(context.Context, string, realtime.Message) int { return 0 }

func TestPurgeRemovesOldReadNotifications(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Now().UTC()

	user := models.User{Username: "purge", Email: "purge@example.com", Password: "hashed", IsActive: true}
	require.NoError(t, db.Create(&user).Error)

	rows := []models.Notification{
		{UserID: user.ID, Type: "system", Title: "old read", Message: "m", IsRead: true, BaseModel: models.BaseModel{CreatedAt: now.AddDate(0, 0, -40)}},
		{UserID: user.ID, Type: "system", Title: "old unread", Message: "m", BaseModel: models.BaseModel{CreatedAt: now.AddDate(0, 0, -40)}},
		{UserID: user.ID, Type: "system", Title: "new read", Message: "m", IsRead: true, BaseModel: models.BaseModel{CreatedAt: now.AddDate(0, 0, -1)}},
	}
	require.NoError(t, db.Create(&rows).Error)

	store, err := notifications.NewGormStore(db)
	require.NoError(t, err)
	dispatcher, err := notifications.NewDispatcher(store, discardSender{})
	require.NoError(t, err)

	cleaner := NewCleaner(Dependencies{Notifications: dispatcher}, WithNotificationRetentionDays(30))
	require.NoError(t, cleaner.Purge(context.Background()))

	var titles []string
	require.NoError(t, db.Model(&models.Notification{}).Order("title").Pluck("title", &titles).Error)
	require.Equal(t, []string{"new read", "old unread"}, titles)
}
