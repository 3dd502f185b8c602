package models

import (
	"encoding/json"
	"fmt"
)

// SignalType represents the type of a signaling envelope
type SignalType string

const (
	// client -> server -> client, relayed verbatim
	SignalTypeOffer     SignalType = "offer"
	SignalTypeAnswer    SignalType = "answer"
	SignalTypeCandidate SignalType = "candidate"

	// client -> server
	SignalTypeAdminCommand SignalType = "admin-command"

	// server -> client
	SignalTypeCurrentUsers        SignalType = "current-users"
	SignalTypeParticipantJoined   SignalType = "participant-joined"
	SignalTypeParticipantLeft     SignalType = "participant-left"
	SignalTypeReceiveAdminCommand SignalType = "receive-admin-command"
	SignalTypeError               SignalType = "error"
)

// IsNegotiation reports whether t is one of the relayed offer/answer/candidate kinds.
func (t SignalType) IsNegotiation() bool {
	switch t {
	case SignalTypeOffer, SignalTypeAnswer, SignalTypeCandidate:
		return true
	default:
		return false
	}
}

// Error codes carried in SignalMessage.Error
const (
	ErrCodeDroppedUnknownTarget = "dropped-unknown-target"
	ErrCodeTargetBackpressure   = "target-backpressure"
	ErrCodeNotPrivileged        = "not-privileged"
	ErrCodeUnknownTarget        = "unknown-target"
	ErrCodeUnknownCommand       = "unknown-command"
	ErrCodeBadMessage           = "bad-message"
)

// SignalMessage is the wire envelope shared by every hop.
type SignalMessage struct {
	Type    SignalType      `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewSignalMessage builds an envelope with v marshalled as its payload.
func NewSignalMessage(t SignalType, roomID string, v any) (SignalMessage, error) {
	msg := SignalMessage{Type: t, RoomID: roomID}
	if v == nil {
		return msg, nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return msg, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	msg.Payload = payload
	return msg, nil
}

// DecodePayload unmarshals the payload into v.
func (m SignalMessage) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
