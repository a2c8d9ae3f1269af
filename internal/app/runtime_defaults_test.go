package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskboard/internal/database/testutil"
)

func TestApplyRuntimeDefaultsGeneratesMissingSecrets(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Auth.JWT.Secret)
	require.True(t, generated[JWTSecretKey])
}

func TestApplyRuntimeDefaultsPreservesExistingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = strings.Repeat("a", 10)

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, strings.Repeat("a", 10), cfg.Auth.JWT.Secret)
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	require.ErrorContains(t, err, "config is nil")
}

func TestPersistRuntimeSecrets(t *testing.T) {
	ctx := context.Background()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	first := &Config{}
	generated, err := ApplyRuntimeDefaults(first)
	require.NoError(t, err)
	require.NoError(t, PersistRuntimeSecrets(ctx, db, first, generated))
	stored := first.Auth.JWT.Secret

	// A second start with another generated secret reuses the stored one.
	second := &Config{}
	generated, err = ApplyRuntimeDefaults(second)
	require.NoError(t, err)
	require.NotEqual(t, stored, second.Auth.JWT.Secret)
	require.NoError(t, PersistRuntimeSecrets(ctx, db, second, generated))
	require.Equal(t, stored, second.Auth.JWT.Secret)

	// An explicit secret wins and replaces the stored one.
	explicit := &Config{}
	explicit.Auth.JWT.Secret = "configured-secret"
	generated, err = ApplyRuntimeDefaults(explicit)
	require.NoError(t, err)
	require.NoError(t, PersistRuntimeSecrets(ctx, db, explicit, generated))
	require.Equal(t, "configured-secret", explicit.Auth.JWT.Secret)

	third := &Config{}
	generated, err = ApplyRuntimeDefaults(third)
	require.NoError(t, err)
	require.NoError(t, PersistRuntimeSecrets(ctx, db, third, generated))
	require.Equal(t, "configured-secret", third.Auth.JWT.Secret)
}
