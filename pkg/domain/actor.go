package domain

// Role is the already-resolved permission level attached to an inbound
// command. Resolution (auth fallback chains, RBAC policy) happens outside
// the core; the core only enforces a minimum-role allow-list.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RolePlanner  Role = "planner"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer:   0,
	RoleOperator: 1,
	RolePlanner:  2,
	RoleAdmin:    3,
}

// AtLeast reports whether r meets or exceeds min. Unknown roles never pass.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

// Actor is the resolved identity carried by every inbound command and
// stamped on every audit entry.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// System is the attribution used for engine-internal mutations, such as
// cascaded cancellations.
var System = Actor{ID: "system", Role: RoleAdmin}
