package models

import "time"

// Role is the privilege level a participant joined with.
type Role string

const (
	RolePrivileged Role = "privileged"
	RoleStandard   Role = "standard"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePrivileged || r == RoleStandard
}

// Participant is one joined connection. Several participants may share an Identity.
type Participant struct {
	ID       string    `json:"id"`
	Identity string    `json:"identity"`
	Role     Role      `json:"role"`
	RoomID   string    `json:"roomId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// IsPrivileged reports whether the participant may issue admin commands.
func (p Participant) IsPrivileged() bool {
	return p.Role == RolePrivileged
}
