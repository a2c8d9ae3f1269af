package app

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/database"
	"github.com/charlesng35/taskboard/pkg/crypto"
)

const jwtSecretBytes = 48

// JWTSecretKey names the generated JWT secret in the map returned by ApplyRuntimeDefaults.
const JWTSecretKey = "auth.jwt.secret"

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated[JWTSecretKey] = true
	}

	return generated, nil
}

// PersistRuntimeSecrets reconciles the JWT secret with the one stored in system settings.
// A generated secret yields to a previously stored one so issued tokens survive restarts;
// an explicitly configured secret replaces the stored value.
func PersistRuntimeSecrets(ctx context.Context, db *gorm.DB, cfg *Config, generated map[string]bool) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	secret, err := database.EnsureJWTSecret(ctx, db, cfg.Auth.JWT.Secret, !generated[JWTSecretKey])
	if err != nil {
		return fmt.Errorf("persist jwt secret: %w", err)
	}
	cfg.Auth.JWT.Secret = secret
	return nil
}
