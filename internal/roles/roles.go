// Package roles maps user roles to the rights they grant.
package roles

// Role names.
const (
	User  = "user"
	Admin = "admin"
)

// Right is a named permission checked by route middleware.
type Right string

// Rights.
const (
	GetUsers    Right = "getUsers"
	ManageUsers Right = "manageUsers"
)

var roleRights = map[string][]Right{
	Admin: {GetUsers, ManageUsers},
	User:  {},
}

// All returns every known role.
func All() []string {
	return []string{User, Admin}
}

// Valid reports whether role is known.
func Valid(role string) bool {
	_, ok := roleRights[role]
	return ok
}

// Has reports whether role grants every right in required.
func Has(role string, required ...Right) bool {
	granted, ok := roleRights[role]
	if !ok {
		return false
	}
	for _, r := range required {
		found := false
		for _, g := range granted {
			if g == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
