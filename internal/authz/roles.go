package authz

// Роли приходят строкой в claim "role" токена korner.
const (
	RoleAdmin   = "admin"
	RoleSupport = "support"
)

// Staff is the set of roles allowed on /admin routes.
var Staff = []string{RoleAdmin, RoleSupport}
