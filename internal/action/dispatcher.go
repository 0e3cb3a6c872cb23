// Package action dispatches the named actions posted to /action.
//
// Every dispatch produces exactly one user-visible Result and performs at
// most one write. Expected failures are reported through Result, never as
// Go errors.
package action

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gatehouse/internal/hosting"
	"gatehouse/internal/rbac"
	"gatehouse/internal/update"
	"gatehouse/internal/user"
)

// Category is the flash category a result is shown with.
type Category string

const (
	CategorySuccess Category = "success"
	CategoryInfo    Category = "info"
	CategoryDanger  Category = "danger"
)

// Transport tells the HTTP layer how to deliver the result.
type Transport int

const (
	TransportRedirect Transport = iota
	TransportDirect
)

// Request is one action invocation by an authenticated actor.
type Request struct {
	Action string
	Actor  *user.User
	Params map[string]string
}

// Result is the single user-visible outcome of a dispatch.
type Result struct {
	Action    string
	Success   bool
	Kind      Kind
	Category  Category
	Message   string
	Transport Transport
	// Body is written verbatim when Transport is TransportDirect.
	Body string
}

// IdentityStore is the subset of the user store the dispatcher mutates.
type IdentityStore interface {
	FindUserByUsername(ctx context.Context, username string) (*user.User, error)
	FindRole(ctx context.Context, name string) (*user.Role, error)
	AddRoleToUser(ctx context.Context, u *user.User, r *user.Role) (bool, error)
	RemoveRoleFromUser(ctx context.Context, u *user.User, r *user.Role) (bool, error)
	UpdateSettings(ctx context.Context, u *user.User, s user.Settings) error
}

// Hosting is the provider API used by the application actions.
type Hosting interface {
	Enabled() bool
	Info(ctx context.Context) (string, error)
	Reload(ctx context.Context) error
}

// Stash keeps an admin report for one-time display to the given user.
type Stash interface {
	StashResult(ctx context.Context, userID uint, report string) error
}

// Dispatcher runs registered actions against the identity store and the
// hosting provider.
type Dispatcher struct {
	registry Registry
	store    IdentityStore
	hosting  Hosting
	puller   update.Puller
	stash    Stash
	// DefaultRole is never removed from a user.
	DefaultRole string
	// OnResult, when set, observes every result.
	OnResult func(Result)
}

// NewDispatcher builds a dispatcher. Any of h, puller and stash may be nil.
func NewDispatcher(registry Registry, store IdentityStore, h Hosting, puller update.Puller, stash Stash) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		store:    store,
		hosting:  h,
		puller:   puller,
		stash:    stash,
	}
}

// Dispatch validates, authorizes and executes one action.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	res := d.dispatch(ctx, req)
	res.Action = req.Action
	if res.Transport == TransportDirect && res.Body == "" {
		res.Body = "Failure"
		if res.Success {
			res.Body = "Success"
		}
	}
	if res.Kind != "" {
		log.Printf("[Action] %s by %s failed: %s", req.Action, actorName(req.Actor), res.Kind)
	}
	if d.OnResult != nil {
		d.OnResult(res)
	}
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) Result {
	roles := d.registry.RolesFor(req.Action)
	if len(roles) == 0 {
		return failure(newError(KindInvalidAction, "Invalid action."))
	}
	if !authorized(req.Actor, roles) {
		return failure(newError(KindUnauthorized, "You are not authorized to perform that action."))
	}

	switch req.Action {
	case ApplicationInfo:
		return d.applicationInfo(ctx, req)
	case ApplicationUpdate:
		return d.applicationUpdate(ctx, req)
	case ApplicationReload:
		return d.applicationReload(ctx)
	case UpdateUserRole:
		return d.changeRole(ctx, req, rbac.OpAdd)
	case RemoveUserRole:
		return d.changeRole(ctx, req, rbac.OpRemove)
	case UpdateSettings:
		return d.updateSettings(ctx, req)
	}
	// Registered but without an effect.
	return failure(newError(KindInvalidAction, "Invalid action."))
}

// Allowed reports whether actor may invoke the named action. Pages use it to
// decide which controls to render.
func (d *Dispatcher) Allowed(actor *user.User, name string) bool {
	roles := d.registry.RolesFor(name)
	return len(roles) > 0 && authorized(actor, roles)
}

func authorized(actor *user.User, roles []string) bool {
	if actor == nil {
		return false
	}
	for _, r := range roles {
		if r == AnyRole || actor.HasRole(r) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) applicationInfo(ctx context.Context, req Request) Result {
	if d.hosting == nil || !d.hosting.Enabled() {
		return notConfigured()
	}
	info, err := d.hosting.Info(ctx)
	if err != nil {
		log.Printf("[Action] hosting info failed: %v", err)
		return failure(newError(KindUpstreamError, "Something went wrong."))
	}
	d.stashReport(ctx, req.Actor, info)
	return Result{Success: true, Category: CategoryInfo, Message: "Application information retrieved."}
}

func (d *Dispatcher) applicationUpdate(ctx context.Context, req Request) Result {
	if d.hosting == nil || !d.hosting.Enabled() {
		return notConfigured()
	}
	if d.puller == nil {
		return failure(newError(KindUpstreamError, "Something went wrong."))
	}
	out, err := d.puller.Pull(ctx)
	if err != nil {
		out = fmt.Sprintf("Error\n%s\n%v", out, err)
	}
	d.stashReport(ctx, req.Actor, out)

	switch update.Classify(out) {
	case update.OutcomeNoop:
		return Result{Success: true, Category: CategoryInfo, Message: "Already up-to-date."}
	case update.OutcomeUpdated:
		return Result{Success: true, Category: CategorySuccess, Message: "Application code has been updated."}
	}
	return failure(newError(KindUpstreamError, "Something went wrong."))
}

func (d *Dispatcher) applicationReload(ctx context.Context) Result {
	if d.hosting == nil || !d.hosting.Enabled() {
		res := notConfigured()
		res.Transport = TransportDirect
		return res
	}
	if err := d.hosting.Reload(ctx); err != nil {
		log.Printf("[Action] hosting reload failed: %v", err)
		res := failure(newError(KindUpstreamError, "Something went wrong."))
		res.Transport = TransportDirect
		return res
	}
	return Result{
		Success:   true,
		Category:  CategorySuccess,
		Message:   "Application has been reloaded.",
		Transport: TransportDirect,
	}
}

func (d *Dispatcher) changeRole(ctx context.Context, req Request, op rbac.Op) Result {
	targetName, ok := param(req, "target_user")
	if !ok {
		return failure(newError(KindMissingParameter, "Insufficient parameters in request."))
	}
	roleName, ok := param(req, "target_role")
	if !ok {
		return failure(newError(KindMissingParameter, "Insufficient parameters in request."))
	}
	target, err := d.store.FindUserByUsername(ctx, targetName)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return failure(newError(KindNotFound, "User '%s' does not exist.", targetName))
		}
		return internal(err)
	}
	role, err := d.store.FindRole(ctx, roleName)
	if err != nil {
		if errors.Is(err, user.ErrRoleNotFound) {
			return failure(newError(KindNotFound, "Role '%s' does not exist.", roleName))
		}
		return internal(err)
	}

	decision := rbac.CanModifyRoles(req.Actor, target, rbac.Mutation{Op: op, Role: *role})
	if !decision.Allowed {
		return failure(&Error{Kind: KindUnauthorized, Message: decision.Message})
	}

	if op == rbac.OpRemove && target.HasRole(role.Name) {
		if role.Name == d.DefaultRole {
			return failure(newError(KindUnauthorized, "Cannot remove the default role."))
		}
		if len(target.Roles) == 1 {
			return failure(newError(KindUnauthorized, "Cannot remove the last role of user '%s'.", targetName))
		}
	}

	var changed bool
	if op == rbac.OpAdd {
		changed, err = d.store.AddRoleToUser(ctx, target, role)
	} else {
		changed, err = d.store.RemoveRoleFromUser(ctx, target, role)
	}
	if err != nil {
		return internal(err)
	}
	if !changed {
		if op == rbac.OpAdd {
			return failure(newError(KindNoChange, "User '%s' already has role '%s'.", targetName, roleName))
		}
		return failure(newError(KindNoChange, "User '%s' does not have role '%s'.", targetName, roleName))
	}
	log.Printf("[Action] %s %s role %q for %q", actorName(req.Actor), op, roleName, targetName)
	if op == rbac.OpAdd {
		return Result{Success: true, Category: CategorySuccess, Message: fmt.Sprintf("Updated role of user '%s' to '%s'.", targetName, roleName)}
	}
	return Result{Success: true, Category: CategorySuccess, Message: fmt.Sprintf("Removed role '%s' from user '%s'.", roleName, targetName)}
}

func (d *Dispatcher) updateSettings(ctx context.Context, req Request) Result {
	displayName, ok := req.Params["display_name"]
	if !ok {
		return failure(newError(KindMissingParameter, "Insufficient parameters in request."))
	}
	theme, ok := param(req, "theme")
	if !ok {
		return failure(newError(KindMissingParameter, "Insufficient parameters in request."))
	}
	settings := user.Settings{DisplayName: displayName, Theme: theme}
	if err := d.store.UpdateSettings(ctx, req.Actor, settings); err != nil {
		return internal(err)
	}
	return Result{Success: true, Category: CategorySuccess, Message: "Settings updated."}
}

func (d *Dispatcher) stashReport(ctx context.Context, actor *user.User, report string) {
	if d.stash == nil || actor == nil {
		return
	}
	if err := d.stash.StashResult(ctx, actor.ID, report); err != nil {
		log.Printf("[Action] failed to stash admin result: %v", err)
	}
}

// param returns a non-empty request parameter.
func param(req Request, name string) (string, bool) {
	v, ok := req.Params[name]
	return v, ok && v != ""
}

func failure(err *Error) Result {
	category := CategoryDanger
	if err.Kind == KindNoChange || err.Kind == KindNotConfigured {
		category = CategoryInfo
	}
	return Result{Kind: err.Kind, Category: category, Message: err.Message}
}

func notConfigured() Result {
	return failure(newError(KindNotConfigured, "%s.", capitalize(hosting.ErrNotConfigured.Error())))
}

func internal(err error) Result {
	log.Printf("[Action] unexpected error: %v", err)
	return failure(newError(KindInternal, "Something went wrong."))
}

func actorName(u *user.User) string {
	if u == nil {
		return "<anonymous>"
	}
	return u.Username
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
