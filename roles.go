package auth

// UserRole is the user's role
type UserRole string

const (
	// RoleUser is the default role assigned at registration
	RoleUser UserRole = "user"
	// RoleModerator can manage user-generated content
	RoleModerator UserRole = "moderator"
	// RoleAdmin can manage accounts
	RoleAdmin UserRole = "admin"
	// RoleSuperAdmin can manage everything, including other admins
	RoleSuperAdmin UserRole = "super_admin"
)

var roleHierarchy = map[UserRole]int{
	RoleUser:       0,
	RoleModerator:  1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// IsAtLeast checks if this role meets the minimum required level. Unknown
// roles never satisfy any minimum.
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	currentLevel, ok := roleHierarchy[r]
	if !ok {
		return false
	}

	minLevel, ok := roleHierarchy[minRole]
	if !ok {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleUser,
		RoleModerator,
		RoleAdmin,
		RoleSuperAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
