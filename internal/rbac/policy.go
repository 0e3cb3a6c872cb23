// Package rbac decides whether one user may change another user's roles.
//
// Privilege is compared by role level: an actor may only modify users whose
// highest role level is strictly below the actor's own. The level of the
// role being granted is not compared with the actor's level, so an actor can
// hand a lower-privileged user a role above the actor's own ceiling.
package rbac

import "gatehouse/internal/user"

// Op is the kind of change made to a role set.
type Op int

const (
	OpAdd Op = iota
	OpRemove
)

func (o Op) String() string {
	if o == OpRemove {
		return "remove"
	}
	return "add"
}

// Mutation is a requested change to the target's role set.
type Mutation struct {
	Op   Op
	Role user.Role
}

// Reason identifies why a mutation was denied.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonSelfHighestRole   Reason = "self_highest_role"
	ReasonInsufficientLevel Reason = "insufficient_level"
)

// Decision is the outcome of CanModifyRoles; Message is set when denied.
type Decision struct {
	Allowed bool
	Reason  Reason
	Message string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason Reason, message string) Decision {
	return Decision{Reason: reason, Message: message}
}

// CanModifyRoles decides whether actor may apply m to target. Actor and
// target are the same user when their IDs match.
func CanModifyRoles(actor, target *user.User, m Mutation) Decision {
	levelA := actor.MaxLevel()
	if actor.ID == target.ID {
		switch {
		case m.Op == OpRemove && m.Role.Level >= levelA && actor.HasRole(m.Role.Name):
			return deny(ReasonSelfHighestRole, "cannot modify your highest role.")
		case m.Op == OpAdd && m.Role.Level > levelA:
			return deny(ReasonSelfHighestRole, "cannot modify your highest role.")
		}
		return allow()
	}
	if levelA <= target.MaxLevel() {
		return deny(ReasonInsufficientLevel, "cannot modify roles of a user at or above your level.")
	}
	return allow()
}
