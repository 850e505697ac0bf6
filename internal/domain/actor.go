package domain

// Role enumerates operator roles. The set is closed.
type Role string

const (
	RoleAgent    Role = "AGENT"
	RoleTeamLead Role = "TEAM_LEAD"
	RoleManager  Role = "MANAGER"
	RoleAdmin    Role = "ADMIN"
	RoleSystem   Role = "SYSTEM"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAgent, RoleTeamLead, RoleManager, RoleAdmin, RoleSystem:
		return true
	default:
		return false
	}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor is used by background sweeps.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// CanAssign reports whether the actor may pick an assignee by hand.
func (a Actor) CanAssign() bool {
	switch a.Role {
	case RoleTeamLead, RoleManager, RoleAdmin, RoleSystem:
		return true
	case RoleAgent:
		return false
	default:
		return false
	}
}

// CanOverrideWIP reports whether the actor may assign past the WIP warning.
func (a Actor) CanOverrideWIP() bool {
	switch a.Role {
	case RoleTeamLead, RoleManager, RoleAdmin:
		return true
	case RoleAgent, RoleSystem:
		return false
	default:
		return false
	}
}

// CanManageEscalations reports whether the actor may act on escalations
// addressed to someone else.
func (a Actor) CanManageEscalations() bool {
	switch a.Role {
	case RoleTeamLead, RoleManager, RoleAdmin, RoleSystem:
		return true
	case RoleAgent:
		return false
	default:
		return false
	}
}

// CanControlSLA reports whether the actor may start, pause or resume clocks.
func (a Actor) CanControlSLA() bool {
	switch a.Role {
	case RoleAgent, RoleTeamLead, RoleManager, RoleAdmin, RoleSystem:
		return true
	default:
		return false
	}
}

// CanConfigureWorkers reports whether the actor may change WIP limits.
func (a Actor) CanConfigureWorkers() bool {
	switch a.Role {
	case RoleManager, RoleAdmin:
		return true
	case RoleAgent, RoleTeamLead, RoleSystem:
		return false
	default:
		return false
	}
}

// ActsFor reports whether the actor may act on a resource owned by userID.
func (a Actor) ActsFor(userID string) bool {
	if a.ID == userID {
		return true
	}
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleAgent, RoleTeamLead, RoleManager, RoleSystem:
		return false
	default:
		return false
	}
}
