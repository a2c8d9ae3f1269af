package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles recognised by the platform.
const (
	UserRoleAdmin   = "admin"
	UserRoleManager = "manager"
	UserRoleMember  = "member"
	UserRoleViewer  = "viewer"
)

// UserRoles lists every valid user role.
var UserRoles = []string{UserRoleAdmin, UserRoleManager, UserRoleMember, UserRoleViewer}

// User describes a platform account.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	FullName  string `gorm:"size:255" json:"full_name"`
	Bio       string `gorm:"type:text" json:"bio"`
	AvatarURL string `gorm:"size:512" json:"avatar_url"`

	Role        string `gorm:"size:32;not null;default:member;index" json:"role"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
	IsSuperuser bool   `gorm:"default:false" json:"is_superuser"`

	Memberships []TeamMember `gorm:"foreignKey:UserID" json:"-"`
	Sessions    []Session    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`

	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsAdmin reports whether the user holds system-wide administrative rights.
func (u *User) IsAdmin() bool {
	if u == nil {
		return false
	}
	return u.IsSuperuser || u.Role == UserRoleAdmin
}

// DisplayName returns the full name when set, falling back to the username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
