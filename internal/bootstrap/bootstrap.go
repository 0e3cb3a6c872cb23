// Package bootstrap provisions the configured roles and the seed admin
// account on process start.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gatehouse/internal/config"
	"gatehouse/internal/user"

	"gorm.io/datatypes"
)

type Result struct {
	RolesCreated []string
	RolesFound   []string
	AdminCreated bool
	AdminID      uint
}

// Provision ensures every configured role exists, then creates the admin
// account if no user has the admin username. Running it again is a no-op.
// It does not guard against two processes provisioning at the same time.
func Provision(ctx context.Context, store *user.Store, cfg *config.Config) (*Result, error) {
	res := &Result{}
	roles := make(map[string]user.Role, len(cfg.Roles))
	for _, def := range cfg.Roles {
		perms := datatypes.JSONSlice[string](append([]string{}, def.Permissions...))
		role, created, err := store.FindOrCreateRole(ctx, user.Role{
			Name:        def.Name,
			Description: def.Description,
			Level:       def.Level,
			Permissions: perms,
		})
		if err != nil {
			return nil, fmt.Errorf("ensure role %q: %w", def.Name, err)
		}
		if created {
			res.RolesCreated = append(res.RolesCreated, role.Name)
		} else {
			res.RolesFound = append(res.RolesFound, role.Name)
		}
		roles[role.Name] = *role
	}

	existing, err := store.FindUserByUsername(ctx, cfg.Admin.Username)
	if err == nil {
		res.AdminID = existing.ID
		log.Printf("[Bootstrap] roles created=%v, admin %q already exists", res.RolesCreated, cfg.Admin.Username)
		return res, nil
	}
	if !errors.Is(err, user.ErrUserNotFound) {
		return nil, fmt.Errorf("look up admin user: %w", err)
	}

	adminRoles := make([]user.Role, 0, len(cfg.Admin.Roles))
	for _, name := range cfg.Admin.Roles {
		r, ok := roles[name]
		if !ok {
			return nil, fmt.Errorf("admin role %q is not configured", name)
		}
		adminRoles = append(adminRoles, r)
	}
	hash, err := user.HashPassword(cfg.Admin.Password)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	admin := &user.User{
		Username:     cfg.Admin.Username,
		Email:        cfg.Admin.Email,
		PasswordHash: hash,
		Active:       true,
		Settings:     datatypes.NewJSONType(user.Settings{Theme: cfg.App.DefaultTheme}),
	}
	if err := store.CreateUser(ctx, admin, adminRoles...); err != nil {
		return nil, fmt.Errorf("create admin user: %w", err)
	}
	res.AdminCreated = true
	res.AdminID = admin.ID
	log.Printf("[Bootstrap] roles created=%v, admin %q created with roles %v", res.RolesCreated, admin.Username, cfg.Admin.Roles)
	return res, nil
}
