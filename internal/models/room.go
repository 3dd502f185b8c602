package models

// RoomInfo is the public view of a room returned by the REST API
type RoomInfo struct {
	ID            string        `json:"id"`
	Members       []Participant `json:"members"`
	MemberCount   int           `json:"memberCount"`
	MaxMembers    int           `json:"maxMembers"`
	PresenceCount int64         `json:"presenceCount"` // as mirrored in Redis, -1 if unavailable
}

// CurrentUsersPayload is sent to a newcomer right after a successful join.
type CurrentUsersPayload struct {
	Self    Participant   `json:"self"`
	Members []Participant `json:"members"` // join order, newcomer last
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
	Role     Role   `json:"role"`
}
