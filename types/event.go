package types

import "time"

// Account event types published on the events channel.
const (
	EventUserCreated  = "user.created"
	EventRoleCreated  = "role.created"
	EventRoleAssigned = "role.assigned"
)

// AccountEvent describes a change to users or roles.
type AccountEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Username   string    `json:"username,omitempty"`
	RoleName   string    `json:"role_name,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
