package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrRoleNotFound  = errors.New("role not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already registered")
)

// Store is the gorm-backed identity store for users, roles and their
// assignments.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) withRoles(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Roles")
}

func (s *Store) FindUserByID(ctx context.Context, id uint) (*User, error) {
	var u User
	if err := s.withRoles(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &u, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := s.withRoles(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := s.withRoles(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&u).Error; err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &u, nil
}

// FindUserByIdentity resolves a login identity, trying email then username.
func (s *Store) FindUserByIdentity(ctx context.Context, identity string) (*User, error) {
	if strings.Contains(identity, "@") {
		if u, err := s.FindUserByEmail(ctx, identity); err == nil {
			return u, nil
		} else if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
	}
	return s.FindUserByUsername(ctx, identity)
}

func (s *Store) FindRole(ctx context.Context, name string) (*Role, error) {
	var r Role
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&r).Error; err != nil {
		return nil, notFound(err, ErrRoleNotFound)
	}
	return &r, nil
}

// FindOrCreateRole returns the role named r.Name, creating it from r when
// absent. An existing role is returned unchanged.
func (s *Store) FindOrCreateRole(ctx context.Context, r Role) (*Role, bool, error) {
	existing, err := s.FindRole(ctx, r.Name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrRoleNotFound) {
		return nil, false, err
	}
	if r.Permissions == nil {
		r.Permissions = datatypes.JSONSlice[string]{}
	}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return nil, false, fmt.Errorf("create role %q: %w", r.Name, err)
	}
	return &r, true, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := s.db.WithContext(ctx).Order("level desc").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// ListRolesBelow returns roles whose level is strictly under level.
func (s *Store) ListRolesBelow(ctx context.Context, level int) ([]Role, error) {
	var roles []Role
	if err := s.db.WithContext(ctx).Where("level < ?", level).Order("level desc").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// ListUsersBelow returns users whose highest role level is strictly under
// level. Users without roles count as level 0.
func (s *Store) ListUsersBelow(ctx context.Context, level int) ([]User, error) {
	var users []User
	if err := s.withRoles(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, err
	}
	below := users[:0]
	for _, u := range users {
		if u.MaxLevel() < level {
			below = append(below, u)
		}
	}
	return below, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).Count(&count).Error
	return count, err
}

// CreateUser inserts u with the given roles. Username and email must be
// unused.
func (s *Store) CreateUser(ctx context.Context, u *User, roles ...Role) error {
	if _, err := s.FindUserByUsername(ctx, u.Username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if _, err := s.FindUserByEmail(ctx, u.Email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	u.Roles = roles
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("create user %q: %w", u.Username, err)
	}
	return nil
}

// AddRoleToUser assigns r to u. It reports false without writing when u
// already holds r.
func (s *Store) AddRoleToUser(ctx context.Context, u *User, r *Role) (bool, error) {
	if u.HasRole(r.Name) {
		return false, nil
	}
	if err := s.db.WithContext(ctx).Model(u).Association("Roles").Append(r); err != nil {
		return false, fmt.Errorf("add role %q to %q: %w", r.Name, u.Username, err)
	}
	return true, nil
}

// RemoveRoleFromUser unassigns r from u. It reports false without writing
// when u does not hold r.
func (s *Store) RemoveRoleFromUser(ctx context.Context, u *User, r *Role) (bool, error) {
	if !u.HasRole(r.Name) {
		return false, nil
	}
	if err := s.db.WithContext(ctx).Model(u).Association("Roles").Delete(r); err != nil {
		return false, fmt.Errorf("remove role %q from %q: %w", r.Name, u.Username, err)
	}
	kept := u.Roles[:0]
	for _, held := range u.Roles {
		if held.Name != r.Name {
			kept = append(kept, held)
		}
	}
	u.Roles = kept
	return true, nil
}

// UpdateSettings overwrites the settings document of u.
func (s *Store) UpdateSettings(ctx context.Context, u *User, settings Settings) error {
	u.Settings = datatypes.NewJSONType(settings)
	return s.db.WithContext(ctx).Model(u).Update("settings", u.Settings).Error
}

// SetPassword stores a new hash and rotates the uniquifier so tokens issued
// for the old password stop validating.
func (s *Store) SetPassword(ctx context.Context, u *User, hash string) error {
	u.PasswordHash = hash
	u.FsUniquifier = uuid.NewString()
	return s.db.WithContext(ctx).Model(u).Updates(map[string]interface{}{
		"password_hash": u.PasswordHash,
		"fs_uniquifier": u.FsUniquifier,
	}).Error
}

// TrackLogin shifts the current login stamp to last and records a new one.
func (s *Store) TrackLogin(ctx context.Context, u *User, ip string, at time.Time) error {
	u.LastLoginAt = u.CurrentLoginAt
	u.LastLoginIP = u.CurrentLoginIP
	u.CurrentLoginAt = &at
	u.CurrentLoginIP = ip
	u.LoginCount++
	return s.db.WithContext(ctx).Model(u).Updates(map[string]interface{}{
		"last_login_at":    u.LastLoginAt,
		"last_login_ip":    u.LastLoginIP,
		"current_login_at": u.CurrentLoginAt,
		"current_login_ip": u.CurrentLoginIP,
		"login_count":      u.LoginCount,
	}).Error
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
