package models

import "time"

// Team member roles, ordered from most to least privileged.
const (
	TeamRoleOwner  = "owner"
	TeamRoleAdmin  = "admin"
	TeamRoleMember = "member"
	TeamRoleViewer = "viewer"
)

// TeamRoles lists every valid team membership role.
var TeamRoles = []string{TeamRoleOwner, TeamRoleAdmin, TeamRoleMember, TeamRoleViewer}

// Team groups users who collaborate on tasks.
type Team struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	Members []TeamMember `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// TeamMember links a user to a team with a role.
type TeamMember struct {
	BaseModel

	TeamID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_team_member" json:"team_id"`
	UserID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_team_member;index" json:"user_id"`
	Role     string    `gorm:"size:16;not null;default:member" json:"role"`
	JoinedAt time.Time `json:"joined_at"`

	Team *Team `gorm:"foreignKey:TeamID" json:"-"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// CanManage reports whether the membership grants team administration.
func (m *TeamMember) CanManage() bool {
	return m != nil && (m.Role == TeamRoleOwner || m.Role == TeamRoleAdmin)
}
