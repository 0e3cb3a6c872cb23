// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gatehouse/internal/db"
	"gatehouse/internal/user"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with the identity schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("failed to open in-memory sqlite: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

// Roles mirrors the default role definitions.
var Roles = []user.Role{
	{Name: "guest", Level: 1, Description: "Guest", Permissions: []string{}},
	{Name: "member", Level: 5, Description: "Member", Permissions: []string{"view_ucp"}},
	{Name: "admin", Level: 100, Description: "Administrator", Permissions: []string{"view_acp", "add_admin"}},
	{Name: "owner", Level: 1000, Description: "Owner", Permissions: []string{"view_acp", "remove_admin"}},
}

// SeedRoles creates the default roles and returns them keyed by name.
func SeedRoles(t *testing.T, store *user.Store) map[string]*user.Role {
	t.Helper()
	roles := make(map[string]*user.Role, len(Roles))
	for _, r := range Roles {
		created, _, err := store.FindOrCreateRole(context.Background(), r)
		if err != nil {
			t.Fatalf("failed to seed role %s: %v", r.Name, err)
		}
		roles[r.Name] = created
	}
	return roles
}

// SeedUser creates a user holding the named roles. The password is "pw".
func SeedUser(t *testing.T, store *user.Store, username string, roles map[string]*user.Role, names ...string) *user.User {
	t.Helper()
	hash, err := user.HashPassword("pw")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	held := make([]user.Role, 0, len(names))
	for _, n := range names {
		held = append(held, *roles[n])
	}
	u := &user.User{Username: username, Email: username + "@example.com", PasswordHash: hash, Active: true}
	if err := store.CreateUser(context.Background(), u, held...); err != nil {
		t.Fatalf("failed to seed user %s: %v", username, err)
	}
	reloaded, err := store.FindUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("failed to reload user %s: %v", username, err)
	}
	return reloaded
}
