package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/cache"
	"github.com/charlesng35/taskboard/internal/database/testutil"
	"github.com/charlesng35/taskboard/internal/models"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func setupSessionService(t *testing.T, withCache bool) (*gorm.DB, *SessionService, *fakeClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fakeClock{current: time.Now().UTC().Truncate(time.Second)}

	jwtSvc, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "taskboard", Clock: clock.Now})
	require.NoError(t, err)

	cfg := SessionConfig{RefreshTokenTTL: time.Hour, Clock: clock.Now}
	if withCache {
		cfg.Cache = NewSessionCache(cache.NewDatabaseStore(db))
	}
	svc, err := NewSessionService(db, jwtSvc, cfg)
	require.NoError(t, err)
	return db, svc, clock
}

func createSessionUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "hash",
		Role:     models.UserRoleManager,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestCreateSessionIssuesTokens(t *testing.T) {
	db, svc, clock := setupSessionService(t, false)
	user := createSessionUser(t, db, "creator")

	pair, session, err := svc.CreateSession(context.Background(), user, SessionMetadata{IPAddress: " 10.0.0.1 ", UserAgent: "unit-test"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, int64(DefaultAccessTokenTTL.Seconds()), pair.ExpiresIn)
	require.Equal(t, "10.0.0.1", session.IPAddress)

	var reloaded models.Session
	require.NoError(t, db.Take(&reloaded, "id = ?", session.ID).Error)
	require.Equal(t, pair.RefreshToken, reloaded.RefreshToken)
	require.True(t, reloaded.ExpiresAt.After(clock.Now()))

	claims, err := svc.jwt.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, session.ID, claims.SessionID)
	require.Equal(t, models.UserRoleManager, claims.Role)

	_, _, err = svc.CreateSession(context.Background(), nil, SessionMetadata{})
	require.Error(t, err)
}

func TestRefreshSessionRotatesToken(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		db, svc, clock := setupSessionService(t, withCache)
		user := createSessionUser(t, db, "rotator")
		ctx := context.Background()

		pair, session, err := svc.CreateSession(ctx, user, SessionMetadata{})
		require.NoError(t, err)

		clock.Advance(5 * time.Minute)
		rotated, updated, err := svc.RefreshSession(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
		require.Equal(t, session.ID, updated.ID)
		require.True(t, updated.LastUsedAt.Equal(clock.Now()))

		_, _, err = svc.RefreshSession(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrSessionNotFound)

		_, _, err = svc.RefreshSession(ctx, rotated.RefreshToken)
		require.NoError(t, err)
	}
}

func TestRefreshSessionFailures(t *testing.T) {
	db, svc, clock := setupSessionService(t, false)
	ctx := context.Background()
	user := createSessionUser(t, db, "failing")

	_, _, err := svc.RefreshSession(ctx, "  ")
	require.ErrorIs(t, err, ErrSessionInvalidToken)

	pair, _, err := svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, _, err = svc.RefreshSession(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)

	pair, session, err := svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.RevokeSession(ctx, session.ID))
	_, _, err = svc.RefreshSession(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
	require.ErrorIs(t, svc.RevokeSession(ctx, session.ID), ErrSessionRevoked)
	require.ErrorIs(t, svc.RevokeSession(ctx, "missing"), ErrSessionNotFound)

	pair, _, err = svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, db.Model(user).Update("is_active", false).Error)
	_, _, err = svc.RefreshSession(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionUserInactive)
}

func TestRevokeUserSessionsInvalidatesCachedTokens(t *testing.T) {
	db, svc, _ := setupSessionService(t, true)
	ctx := context.Background()
	user := createSessionUser(t, db, "revoker")

	first, _, err := svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)
	second, _, err := svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeUserSessions(ctx, user.ID))

	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		_, _, err := svc.RefreshSession(ctx, token)
		require.ErrorIs(t, err, ErrSessionRevoked)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	db, svc, clock := setupSessionService(t, false)
	ctx := context.Background()
	user := createSessionUser(t, db, "cleaner")

	_, _, err := svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)
	_, revoked, err := svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.RevokeSession(ctx, revoked.ID))

	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	clock.Advance(2 * time.Hour)
	removed, err = svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	var remaining int64
	require.NoError(t, db.Model(&models.Session{}).Count(&remaining).Error)
	require.Zero(t, remaining)
}
