package domain

// Role enumerates caller roles resolved by the auth layer.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
	RoleAdmin Role = "ADMIN"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// Staff reports whether the role grants staff-level access.
func (r Role) Staff() bool {
	return r == RoleAgent || r == RoleAdmin
}

// Caller is the authenticated principal submitting a command.
type Caller struct {
	ID   string
	Role Role
}
