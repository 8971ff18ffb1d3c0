package model

import "time"

// EntityType distinguishes human users from machine identities.
type EntityType string

// Identity kinds.
const (
	EntityUser  EntityType = "user"
	EntityAgent EntityType = "agent"
)

// EntityRef identifies a voting identity.
type EntityRef struct {
	ID   string     `json:"id"`
	Type EntityType `json:"type"`
}

// Membership associates an identity with a group. The optional Role is a
// group-internal label and plays no part in permission checks.
type Membership struct {
	Entity    EntityRef `json:"entity"`
	GroupID   string    `json:"group_id"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
