package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/models"
	"github.com/charlesng35/taskboard/pkg/crypto"
	apperrors "github.com/charlesng35/taskboard/pkg/errors"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrCannotDeleteSelf prevents administrators from removing their own account.
	ErrCannotDeleteSelf = apperrors.New("USER_DELETE_SELF", "Cannot delete your own account", http.StatusBadRequest)
)

// UpdateUserInput enumerates mutable user attributes. Role and IsActive require an administrator.
type UpdateUserInput struct {
	Email     *string
	FullName  *string
	Bio       *string
	AvatarURL *string
	Password  *string
	Role      *string
	IsActive  *bool
}

// UserFilters captures listing filters.
type UserFilters struct {
	Role     string
	IsActive *bool
	Query    string
}

// ListUsersOptions controls pagination for user listing.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Filters  UserFilters
}

// UserService manages user profiles and administration.
type UserService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, auditService *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{
		db:           db,
		auditService: auditService,
	}, nil
}

// GetByID loads a user by identifier.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// Get returns a user profile visible to actorID: their own, or any when actor is an admin.
func (s *UserService) Get(ctx context.Context, actorID, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID != id && !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	return s.GetByID(ctx, id)
}

// List retrieves users matching the supplied filters with pagination.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	page := sanitizePage(opts.Page)
	perPage := sanitizePageSize(opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.User{})
	if role := strings.TrimSpace(opts.Filters.Role); role != "" {
		query = query.Where("role = ?", role)
	}
	if opts.Filters.IsActive != nil {
		query = query.Where("is_active = ?", *opts.Filters.IsActive)
	}
	if q := strings.TrimSpace(opts.Filters.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}

// ActiveUserIDs returns the IDs of every active account.
func (s *UserService) ActiveUserIDs(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)

	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("user service: list active users: %w", err)
	}
	return ids, nil
}

// Update persists mutable attributes. Users may edit themselves; administrators may edit
// anyone and are the only ones allowed to change role or activation.
func (s *UserService) Update(ctx context.Context, actorID, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID != id && !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	if (input.Role != nil || input.IsActive != nil) && !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}

	if input.Email != nil {
		if email := strings.ToLower(strings.TrimSpace(*input.Email)); email != "" && email != user.Email {
			updates["email"] = email
		}
	}
	if input.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*input.FullName)
	}
	if input.Bio != nil {
		updates["bio"] = strings.TrimSpace(*input.Bio)
	}
	if input.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*input.AvatarURL)
	}
	if input.Role != nil {
		role := strings.TrimSpace(*input.Role)
		if !containsString(models.UserRoles, role) {
			return nil, apperrors.NewBadRequest("invalid role")
		}
		updates["role"] = role
	}
	if input.IsActive != nil {
		if !*input.IsActive && actor.ID == user.ID {
			return nil, apperrors.NewBadRequest("cannot deactivate your own account")
		}
		updates["is_active"] = *input.IsActive
	}
	if input.Password != nil {
		hashed, err := crypto.HashPassword(*input.Password)
		if err != nil {
			if errors.Is(err, crypto.ErrPasswordTooShort) {
				return nil, apperrors.NewBadRequest(err.Error())
			}
			return nil, fmt.Errorf("user service: hash password: %w", err)
		}
		updates["password"] = hashed
	}

	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("email already exists")
		}
		return nil, fmt.Errorf("user service: update user: %w", err)
	}

	reloaded, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	delete(updates, "password")
	recordAudit(s.auditService, ctx, actorEntry(actor, "user.update", "user:"+user.ID, updates))

	return reloaded, nil
}

// Delete removes a user. Administrators cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actorID, id string) error {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return apperrors.ErrForbidden
	}
	if actor.ID == id {
		return ErrCannotDeleteSelf
	}

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.TeamMember{}).Error; err != nil {
			return fmt.Errorf("user service: remove memberships: %w", err)
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("user service: remove sessions: %w", err)
		}
		if err := tx.Model(&models.Task{}).Where("assignee_id = ?", user.ID).Update("assignee_id", nil).Error; err != nil {
			return fmt.Errorf("user service: unassign tasks: %w", err)
		}
		if err := tx.Delete(user).Error; err != nil {
			return fmt.Errorf("user service: delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	recordAudit(s.auditService, ctx, actorEntry(actor, "user.delete", "user:"+user.ID, map[string]any{
		"username": user.Username,
	}))
	return nil
}
