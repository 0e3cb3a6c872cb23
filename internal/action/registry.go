package action

import "sort"

const (
	ApplicationInfo   = "application_info"
	ApplicationUpdate = "application_update"
	ApplicationReload = "application_reload"
	UpdateUserRole    = "update_user_role"
	RemoveUserRole    = "remove_user_role"
	UpdateSettings    = "update_settings"
)

// AnyRole grants an action to every authenticated user.
const AnyRole = "*"

// Registry maps a role name to the actions its holders may invoke.
type Registry map[string][]string

// DefaultRegistry is the static action table.
func DefaultRegistry() Registry {
	return Registry{
		"owner": {ApplicationInfo, ApplicationUpdate, ApplicationReload},
		"admin": {UpdateUserRole, RemoveUserRole},
		AnyRole: {UpdateSettings},
	}
}

// RolesFor returns the role names allowed to invoke action, sorted. An empty
// result means the action is unknown.
func (r Registry) RolesFor(action string) []string {
	var roles []string
	for role, actions := range r {
		for _, a := range actions {
			if a == action {
				roles = append(roles, role)
				break
			}
		}
	}
	sort.Strings(roles)
	return roles
}

// Known reports whether action appears under any role.
func (r Registry) Known(action string) bool {
	return len(r.RolesFor(action)) > 0
}

// Actions lists every registered action name, sorted and deduplicated.
func (r Registry) Actions() []string {
	seen := map[string]bool{}
	var all []string
	for _, actions := range r {
		for _, a := range actions {
			if !seen[a] {
				seen[a] = true
				all = append(all, a)
			}
		}
	}
	sort.Strings(all)
	return all
}
