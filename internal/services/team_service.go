package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/models"
	"github.com/charlesng35/taskboard/internal/notifications"
	apperrors "github.com/charlesng35/taskboard/pkg/errors"
	"github.com/charlesng35/taskboard/pkg/logger"
)

var (
	// ErrTeamNotFound indicates the requested team does not exist.
	ErrTeamNotFound = apperrors.New("TEAM_NOT_FOUND", "Team not found", http.StatusNotFound)
	// ErrTeamMemberAlreadyExists signals the user is already a member of the team.
	ErrTeamMemberAlreadyExists = apperrors.New("TEAM_MEMBER_EXISTS", "User already assigned to team", http.StatusConflict)
	// ErrTeamMemberNotFound indicates the requested membership does not exist.
	ErrTeamMemberNotFound = apperrors.New("TEAM_MEMBER_NOT_FOUND", "User is not a member of the team", http.StatusNotFound)
	// ErrTeamLastOwner prevents a team from losing its final owner.
	ErrTeamLastOwner = apperrors.New("TEAM_LAST_OWNER", "A team must keep at least one owner", http.StatusBadRequest)
)

// CreateTeamInput captures new team metadata.
type CreateTeamInput struct {
	Name        string
	Description string
}

// UpdateTeamInput describes mutable team fields.
type UpdateTeamInput struct {
	Name        *string
	Description *string
	IsActive    *bool
}

// ListTeamsOptions controls team listing.
type ListTeamsOptions struct {
	Page     int
	PageSize int
	Query    string
}

// TeamService handles team lifecycle and membership management.
type TeamService struct {
	db           *gorm.DB
	auditService *AuditService
	notifier     Notifier
	now          func() time.Time
	log          *zap.Logger
}

// NewTeamService constructs a TeamService instance. notifier may be nil.
func NewTeamService(db *gorm.DB, auditService *AuditService, notifier Notifier) (*TeamService, error) {
	if db == nil {
		return nil, errors.New("team service: db is required")
	}
	return &TeamService{
		db:           db,
		auditService: auditService,
		notifier:     notifier,
		now:          func() time.Time { return time.Now().UTC() },
		log:          logger.WithModule("teams"),
	}, nil
}

// Create registers a new team and makes the creator its owner.
func (s *TeamService) Create(ctx context.Context, actorID string, input CreateTeamInput) (*models.Team, error) {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("team name is required")
	}

	team := &models.Team{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		IsActive:    true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(team).Error; err != nil {
			return err
		}
		owner := models.TeamMember{
			TeamID:   team.ID,
			UserID:   actor.ID,
			Role:     models.TeamRoleOwner,
			JoinedAt: s.now(),
		}
		return tx.Create(&owner).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("team name already exists")
		}
		return nil, fmt.Errorf("team service: create team: %w", err)
	}

	recordAudit(s.auditService, ctx, actorEntry(actor, "team.create", "team:"+team.ID, map[string]any{
		"name": team.Name,
	}))

	return s.load(ctx, team.ID)
}

// Get returns a team with its members. Only administrators and members may view it.
func (s *TeamService) Get(ctx context.Context, actorID, teamID string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}
	team, err := s.load(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && findMember(team, actor.ID) == nil {
		return nil, apperrors.ErrForbidden
	}
	return team, nil
}

// List returns teams visible to the actor: all for administrators, memberships otherwise.
func (s *TeamService) List(ctx context.Context, actorID string, opts ListTeamsOptions) ([]models.Team, int64, error) {
	ctx = ensureContext(ctx)

	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, 0, err
	}

	page := sanitizePage(opts.Page)
	perPage := sanitizePageSize(opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.Team{})
	if !actor.IsAdmin() {
		query = query.Where("id IN (?)", s.db.Model(&models.TeamMember{}).Select("team_id").Where("user_id = ?", actor.ID))
	}
	if q := strings.TrimSpace(opts.Query); q != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("team service: count teams: %w", err)
	}

	var teams []models.Team
	if err := query.
		Preload("Members").
		Order("name ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&teams).Error; err != nil {
		return nil, 0, fmt.Errorf("team service: list teams: %w", err)
	}
	return teams, total, nil
}

// Update modifies team metadata. Requires team management rights.
func (s *TeamService) Update(ctx context.Context, actorID, teamID string, input UpdateTeamInput) (*models.Team, error) {
	ctx = ensureContext(ctx)

	actor, team, err := s.authorizeManage(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("team name is required")
		}
		if name != team.Name {
			updates["name"] = name
		}
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return team, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Team{}).Where("id = ?", team.ID).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("team name already exists")
		}
		return nil, fmt.Errorf("team service: update team: %w", err)
	}

	recordAudit(s.auditService, ctx, actorEntry(actor, "team.update", "team:"+team.ID, updates))
	return s.load(ctx, team.ID)
}

// Delete removes a team and its memberships. Tasks keep their rows but lose the team link.
func (s *TeamService) Delete(ctx context.Context, actorID, teamID string) error {
	ctx = ensureContext(ctx)

	actor, team, err := s.authorizeManage(ctx, actorID, teamID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		if m := findMember(team, actor.ID); m == nil || m.Role != models.TeamRoleOwner {
			return apperrors.ErrForbidden
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Task{}).Where("team_id = ?", team.ID).Update("team_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("team_id = ?", team.ID).Delete(&models.TeamMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Team{}, "id = ?", team.ID).Error
	})
	if err != nil {
		return fmt.Errorf("team service: delete team: %w", err)
	}

	recordAudit(s.auditService, ctx, actorEntry(actor, "team.delete", "team:"+team.ID, map[string]any{
		"name": team.Name,
	}))
	return nil
}

// AddMember adds userID to the team with role and notifies the new member.
func (s *TeamService) AddMember(ctx context.Context, actorID, teamID, userID, role string) (*models.TeamMember, error) {
	ctx = ensureContext(ctx)

	actor, team, err := s.authorizeManage(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}

	role = strings.TrimSpace(role)
	if role == "" {
		role = models.TeamRoleMember
	}
	if !containsString(models.TeamRoles, role) {
		return nil, apperrors.NewBadRequest("invalid team role")
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("team service: load user: %w", err)
	}
	if findMember(team, user.ID) != nil {
		return nil, ErrTeamMemberAlreadyExists
	}

	member := &models.TeamMember{
		TeamID:   team.ID,
		UserID:   user.ID,
		Role:     role,
		JoinedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrTeamMemberAlreadyExists
		}
		return nil, fmt.Errorf("team service: add member: %w", err)
	}
	member.User = &user

	recordAudit(s.auditService, ctx, actorEntry(actor, "team.add_member", "team:"+team.ID, map[string]any{
		"user_id": user.ID,
		"role":    role,
	}))

	if user.ID != actor.ID {
		notify(ctx, s.notifier, s.log, notifications.TeamInvited(team, user.ID, actor.DisplayName()))
	}
	return member, nil
}

// RemoveMember removes userID from the team and notifies them. The last owner cannot be removed.
func (s *TeamService) RemoveMember(ctx context.Context, actorID, teamID, userID string) error {
	ctx = ensureContext(ctx)

	actor, team, err := s.authorizeManage(ctx, actorID, teamID)
	if err != nil {
		return err
	}

	member := findMember(team, userID)
	if member == nil {
		return ErrTeamMemberNotFound
	}
	if member.Role == models.TeamRoleOwner && countOwners(team) <= 1 {
		return ErrTeamLastOwner
	}

	if err := s.db.WithContext(ctx).Delete(&models.TeamMember{}, "id = ?", member.ID).Error; err != nil {
		return fmt.Errorf("team service: remove member: %w", err)
	}

	recordAudit(s.auditService, ctx, actorEntry(actor, "team.remove_member", "team:"+team.ID, map[string]any{
		"user_id": userID,
	}))

	if userID != actor.ID {
		notify(ctx, s.notifier, s.log, notifications.TeamRemoved(team, userID, actor.DisplayName()))
	}
	return nil
}

// UpdateMemberRole changes a member's role. The last owner cannot be demoted.
func (s *TeamService) UpdateMemberRole(ctx context.Context, actorID, teamID, userID, role string) (*models.TeamMember, error) {
	ctx = ensureContext(ctx)

	actor, team, err := s.authorizeManage(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}

	role = strings.TrimSpace(role)
	if !containsString(models.TeamRoles, role) {
		return nil, apperrors.NewBadRequest("invalid team role")
	}

	member := findMember(team, userID)
	if member == nil {
		return nil, ErrTeamMemberNotFound
	}
	if member.Role == role {
		return member, nil
	}
	if member.Role == models.TeamRoleOwner && countOwners(team) <= 1 {
		return nil, ErrTeamLastOwner
	}

	if err := s.db.WithContext(ctx).Model(&models.TeamMember{}).Where("id = ?", member.ID).Update("role", role).Error; err != nil {
		return nil, fmt.Errorf("team service: update member role: %w", err)
	}
	previous := member.Role
	member.Role = role

	recordAudit(s.auditService, ctx, actorEntry(actor, "team.update_member_role", "team:"+team.ID, map[string]any{
		"user_id":  userID,
		"previous": previous,
		"role":     role,
	}))
	return member, nil
}

// IsMember reports whether userID belongs to teamID.
func (s *TeamService) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	return isTeamMember(ensureContext(ctx), s.db, teamID, userID)
}

func (s *TeamService) authorizeManage(ctx context.Context, actorID, teamID string) (*models.User, *models.Team, error) {
	actor, err := loadActor(ctx, s.db, actorID)
	if err != nil {
		return nil, nil, err
	}
	team, err := s.load(ctx, teamID)
	if err != nil {
		return nil, nil, err
	}
	if actor.IsAdmin() {
		return actor, team, nil
	}
	if !findMember(team, actor.ID).CanManage() {
		return nil, nil, apperrors.ErrForbidden
	}
	return actor, team, nil
}

func (s *TeamService) load(ctx context.Context, teamID string) (*models.Team, error) {
	var team models.Team
	err := s.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at ASC") }).
		Preload("Members.User").
		First(&team, "id = ?", teamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load team: %w", err)
	}
	return &team, nil
}

func findMember(team *models.Team, userID string) *models.TeamMember {
	for i := range team.Members {
		if team.Members[i].UserID == userID {
			return &team.Members[i]
		}
	}
	return nil
}

func countOwners(team *models.Team) int {
	owners := 0
	for _, m := range team.Members {
		if m.Role == models.TeamRoleOwner {
			owners++
		}
	}
	return owners
}

func isTeamMember(ctx context.Context, db *gorm.DB, teamID, userID string) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check team membership: %w", err)
	}
	return count > 0, nil
}
