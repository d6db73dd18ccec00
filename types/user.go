package types

// User represents an account in the system.
// Roles is the set of roles granted to the user; order carries no meaning.
type User struct {
	// ID is the unique identifier assigned by the store.
	ID int64 `json:"id" db:"id"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// Username is the unique login name. It is the subject of issued tokens.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Roles lists the roles assigned to the user.
	Roles []Role `json:"roles"`
}

// RoleNames returns the names of the user's roles. The result is never nil.
func (u User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		names = append(names, role.Name)
	}
	return names
}

// HasRole reports whether the user holds a role with the given name.
func (u User) HasRole(name string) bool {
	for _, role := range u.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}
