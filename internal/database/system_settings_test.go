package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/models"
)

func TestGetAndUpsertSystemSetting(t *testing.T) {
	db := openSystemSettingTestDB(t)

	value, err := GetSystemSetting(context.Background(), db, "missing")
	require.NoError(t, err)
	require.Equal(t, "", value)

	require.NoError(t, UpsertSystemSetting(context.Background(), db, "sample", "value1"))

	retrieved, err := GetSystemSetting(context.Background(), db, "sample")
	require.NoError(t, err)
	require.Equal(t, "value1", retrieved)

	require.NoError(t, UpsertSystemSetting(context.Background(), db, "sample", "value2"))

	retrieved, err = GetSystemSetting(context.Background(), db, "sample")
	require.NoError(t, err)
	require.Equal(t, "value2", retrieved)
}

func TestEnsureJWTSecretPersistsFirstValue(t *testing.T) {
	db := openSystemSettingTestDB(t)
	ctx := context.Background()

	secret, err := EnsureJWTSecret(ctx, db, "generated-1", false)
	require.NoError(t, err)
	require.Equal(t, "generated-1", secret)

	// a second generated candidate must not replace the stored secret
	secret, err = EnsureJWTSecret(ctx, db, "generated-2", false)
	require.NoError(t, err)
	require.Equal(t, "generated-1", secret)

	secret, err = EnsureJWTSecret(ctx, db, "configured", true)
	require.NoError(t, err)
	require.Equal(t, "configured", secret)

	value, err := GetSystemSetting(ctx, db, JWTSecretSetting)
	require.NoError(t, err)
	require.Equal(t, "configured", value)
}

func TestEnsureJWTSecretRejectsEmpty(t *testing.T) {
	db := openSystemSettingTestDB(t)

	_, err := EnsureJWTSecret(context.Background(), db, "  ", false)
	require.Error(t, err)
}

func openSystemSettingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.SystemSetting{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
