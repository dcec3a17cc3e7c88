package rbac

type Role string

const (
	RoleGuest      Role = "guest"
	RoleRegistered Role = "registered"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
)

var ranks = map[Role]int{
	RoleGuest:      0,
	RoleRegistered: 1,
	RoleModerator:  2,
	RoleAdmin:      3,
}

// Satisfies reports whether actor meets the required role bar.
// Unknown roles rank as guest on both sides.
func Satisfies(actor, required Role) bool {
	return ranks[Normalize(string(actor))] >= ranks[Normalize(string(required))]
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleGuest, RoleRegistered, RoleModerator, RoleAdmin:
		return Role(role)
	default:
		return RoleGuest
	}
}
