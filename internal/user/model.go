package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Role struct {
	ID          uint                        `gorm:"primaryKey" json:"id"`
	Name        string                      `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Description string                      `gorm:"size:255" json:"description"`
	Level       int                         `gorm:"not null;default:0" json:"level"`
	Permissions datatypes.JSONSlice[string] `json:"permissions"`
}

// HasPermission reports whether p is listed on the role.
func (r Role) HasPermission(p string) bool {
	for _, perm := range r.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}

// Settings is the per-user display preferences document.
type Settings struct {
	DisplayName string `json:"display_name"`
	Theme       string `json:"theme"`
}

type User struct {
	ID             uint                         `gorm:"primaryKey" json:"id"`
	Username       string                       `gorm:"uniqueIndex;size:255;not null" json:"username"`
	Email          string                       `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash   string                       `gorm:"size:255;not null" json:"-"`
	Active         bool                         `gorm:"not null;default:true" json:"active"`
	FsUniquifier   string                       `gorm:"uniqueIndex;size:64;not null" json:"-"`
	Settings       datatypes.JSONType[Settings] `json:"settings"`
	Roles          []Role                       `gorm:"many2many:roles_users;" json:"roles"`
	ConfirmedAt    *time.Time                   `json:"confirmedAt,omitempty"`
	LastLoginAt    *time.Time                   `json:"lastLoginAt,omitempty"`
	CurrentLoginAt *time.Time                   `json:"currentLoginAt,omitempty"`
	LastLoginIP    string                       `gorm:"size:255" json:"-"`
	CurrentLoginIP string                       `gorm:"size:255" json:"-"`
	LoginCount     int                          `json:"loginCount"`
	CreatedAt      time.Time                    `json:"createdAt"`
	UpdatedAt      time.Time                    `json:"updatedAt"`
}

// BeforeCreate assigns the token uniquifier for new rows.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.FsUniquifier == "" {
		u.FsUniquifier = uuid.NewString()
	}
	return nil
}

// MaxLevel is the highest level among the user's roles, or 0 with no roles.
func (u *User) MaxLevel() int {
	level := 0
	for _, r := range u.Roles {
		if r.Level > level {
			level = r.Level
		}
	}
	return level
}

func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// HasPermission reports whether any of the user's roles grants p.
func (u *User) HasPermission(p string) bool {
	for _, r := range u.Roles {
		if r.HasPermission(p) {
			return true
		}
	}
	return false
}

func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// DisplayName falls back to the username when no display name is set.
func (u *User) DisplayName() string {
	if name := u.Settings.Data().DisplayName; name != "" {
		return name
	}
	return u.Username
}
