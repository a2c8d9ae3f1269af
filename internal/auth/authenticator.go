package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/models"
	"github.com/charlesng35/taskboard/pkg/crypto"
	apperrors "github.com/charlesng35/taskboard/pkg/errors"
	"github.com/charlesng35/taskboard/pkg/metrics"
)

// ErrAccountDisabled is returned when a deactivated user tries to sign in.
var ErrAccountDisabled = apperrors.New("ACCOUNT_DISABLED", "Account is disabled", http.StatusForbidden)

// AuthenticatorConfig tunes lockout behaviour.
type AuthenticatorConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// Credentials identify a user by username or email plus password.
type Credentials struct {
	Identifier string
	Password   string
	IPAddress  string
}

// RegisterInput captures a self-registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
}

// Authenticator verifies local credentials and registers new accounts.
type Authenticator struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

// NewAuthenticator builds an Authenticator. Defaults: 5 failures lock the account for 15 minutes.
func NewAuthenticator(db *gorm.DB, cfg AuthenticatorConfig) (*Authenticator, error) {
	if db == nil {
		return nil, errors.New("authenticator: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}
	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = 15 * time.Minute
	}
	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &Authenticator{db: db, clock: clock, threshold: threshold, duration: duration}, nil
}

// Authenticate checks the credentials and returns the user on success. Unknown users and
// wrong passwords share ErrInvalidCredentials; repeated failures lock the account.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*models.User, error) {
	user, err := a.authenticate(ctx, creds)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return user, nil
}

func (a *Authenticator) authenticate(ctx context.Context, creds Credentials) (*models.User, error) {
	identity := strings.TrimSpace(creds.Identifier)
	if identity == "" || creds.Password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := a.db.WithContext(ctx).
		Where("LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)", identity, identity).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("authenticator: query user: %w", err)
	}

	now := a.clock().UTC()
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, apperrors.ErrAccountLocked
	}
	if user.LockedUntil != nil {
		user.LockedUntil = nil
		user.FailedAttempts = 0
	}

	if !crypto.VerifyPassword(user.Password, creds.Password) {
		return nil, a.recordFailure(ctx, &user, now)
	}

	user.FailedAttempts = 0
	user.LastLoginAt = &now
	user.LastLoginIP = strings.TrimSpace(creds.IPAddress)

	if err := a.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   user.LastLoginIP,
	}).Error; err != nil {
		return nil, fmt.Errorf("authenticator: record login: %w", err)
	}
	return &user, nil
}

func (a *Authenticator) recordFailure(ctx context.Context, user *models.User, now time.Time) error {
	user.FailedAttempts++
	updates := map[string]any{
		"failed_attempts": user.FailedAttempts,
		"locked_until":    nil,
	}
	locked := user.FailedAttempts >= a.threshold
	if locked {
		until := now.Add(a.duration)
		user.LockedUntil = &until
		updates["locked_until"] = until
	}

	if err := a.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("authenticator: record failed attempt: %w", err)
	}
	if locked {
		return apperrors.ErrAccountLocked
	}
	return apperrors.ErrInvalidCredentials
}

// Register creates an active member account.
func (a *Authenticator) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" || input.Password == "" {
		return nil, apperrors.NewBadRequest("username, email and password are required")
	}

	var existing int64
	if err := a.db.WithContext(ctx).Model(&models.User{}).
		Where("LOWER(username) = LOWER(?) OR LOWER(email) = ?", username, email).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("authenticator: check existing user: %w", err)
	}
	if existing > 0 {
		return nil, apperrors.NewConflict("username or email already registered")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooShort) {
			return nil, apperrors.NewBadRequest(err.Error())
		}
		return nil, fmt.Errorf("authenticator: hash password: %w", err)
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: hashed,
		FullName: strings.TrimSpace(input.FullName),
		Role:     models.UserRoleMember,
		IsActive: true,
	}
	if err := a.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("authenticator: create user: %w", err)
	}
	return user, nil
}

// ChangePassword replaces a user's password after verifying the current one.
func (a *Authenticator) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	var user models.User
	if err := a.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrInvalidCredentials
		}
		return fmt.Errorf("authenticator: find user: %w", err)
	}
	if !crypto.VerifyPassword(user.Password, currentPassword) {
		return apperrors.ErrInvalidCredentials
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooShort) {
			return apperrors.NewBadRequest(err.Error())
		}
		return fmt.Errorf("authenticator: hash password: %w", err)
	}
	return a.db.WithContext(ctx).Model(&user).Update("password", hashed).Error
}
