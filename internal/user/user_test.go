package user

import (
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	pw := "supersecret"
	hash, err := HashPassword(pw)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if err := CheckPassword(hash, pw); err != nil {
		t.Errorf("check should succeed: %v", err)
	}
	if err := CheckPassword(hash, "wrongpw"); err == nil {
		t.Errorf("expected failure for wrong password")
	}
}

func TestMaxLevel(t *testing.T) {
	u := &User{}
	if u.MaxLevel() != 0 {
		t.Errorf("user without roles should have level 0, got %d", u.MaxLevel())
	}
	u.Roles = []Role{{Name: "member", Level: 5}, {Name: "admin", Level: 100}, {Name: "guest", Level: 1}}
	if u.MaxLevel() != 100 {
		t.Errorf("expected level 100, got %d", u.MaxLevel())
	}
}

func TestRoleAndPermissionLookup(t *testing.T) {
	u := &User{Roles: []Role{
		{Name: "member", Level: 5, Permissions: []string{"view_ucp"}},
	}}
	if !u.HasRole("member") || u.HasRole("admin") {
		t.Errorf("unexpected role membership: %v", u.RoleNames())
	}
	if !u.HasPermission("view_ucp") {
		t.Errorf("member should have view_ucp")
	}
	if u.HasPermission("view_acp") {
		t.Errorf("member should not have view_acp")
	}
}

func TestDisplayNameFallback(t *testing.T) {
	u := &User{Username: "alice"}
	if u.DisplayName() != "alice" {
		t.Errorf("expected username fallback, got %q", u.DisplayName())
	}
}
