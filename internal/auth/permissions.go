package auth

// RoleSet is the set of roles a route accepts. An empty set accepts any
// authenticated role.
type RoleSet []Role

// Roles builds a RoleSet.
func Roles(roles ...Role) RoleSet {
	return RoleSet(roles)
}

// Allows returns true if role is a member of the set, or if the set is empty.
// Membership is exact: admin does not satisfy a doctor-only route.
func (s RoleSet) Allows(role Role) bool {
	if len(s) == 0 {
		return true
	}
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize checks role against required and returns ErrForbidden on mismatch.
func Authorize(required RoleSet, role Role) error {
	if !required.Allows(role) {
		return ErrForbidden
	}
	return nil
}
