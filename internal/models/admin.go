package models

// AdminCommandKind is the closed set of commands the privileged participant may send.
type AdminCommandKind string

const (
	AdminToggleMute       AdminCommandKind = "toggle-mute"
	AdminToggleCamera     AdminCommandKind = "toggle-camera"
	AdminClearSubstitute  AdminCommandKind = "remove-fake-cam"
	AdminClearVoiceFilter AdminCommandKind = "remove-voice-synth"
)

// Valid reports whether k is one of the known command kinds.
func (k AdminCommandKind) Valid() bool {
	switch k {
	case AdminToggleMute, AdminToggleCamera, AdminClearSubstitute, AdminClearVoiceFilter:
		return true
	default:
		return false
	}
}

// AdminCommand is what the issuer asked for. IssuerID is always set by the server.
type AdminCommand struct {
	Kind     AdminCommandKind `json:"kind"`
	TargetID string           `json:"targetParticipantId"`
	IssuerID string           `json:"issuerParticipantId,omitempty"`
}
