package types

// Role is a named permission grouping, e.g. "ROLE_USER".
type Role struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
