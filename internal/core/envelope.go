package core

import (
	"encoding/json"
	"time"

	"github.com/dcha68893-afk/moodchat/internal/domain"
)

// EnvelopeType discriminates the closed set of frames pushed to clients.
type EnvelopeType string

const (
	TypeConnectionEstablished EnvelopeType = "connection_established"
	TypePresenceUpdate        EnvelopeType = "presence_update"
	TypeTypingIndicator       EnvelopeType = "typing_indicator"
	TypeIncomingCall          EnvelopeType = "incoming_call"
	TypeCallAccepted          EnvelopeType = "call_accepted"
	TypeCallRejected          EnvelopeType = "call_rejected"
	TypeCallParticipantJoined EnvelopeType = "call_participant_joined"
	TypeCallParticipantLeft   EnvelopeType = "call_participant_left"
	TypeCallMediaToggled      EnvelopeType = "call_media_toggled"
	TypeCallEnded             EnvelopeType = "call_ended"
	TypeChatMessage           EnvelopeType = "chat_message"
	TypeMessageStatus         EnvelopeType = "message_status"
	TypeError                 EnvelopeType = "error"
	TypePong                  EnvelopeType = "pong"
)

// Payload is one member of the outward envelope union. Each payload shape has
// exactly one type tag, so handlers and tests can match exhaustively.
type Payload interface {
	Type() EnvelopeType
}

type ConnectionEstablished struct {
	ConnectionID domain.ConnectionID `json:"connection_id"`
	UserID       domain.UserID       `json:"user_id"`
}

func (ConnectionEstablished) Type() EnvelopeType { return TypeConnectionEstablished }

type PresenceUpdate struct {
	UserID       domain.UserID         `json:"user_id"`
	Status       domain.PresenceStatus `json:"status"`
	CustomStatus string                `json:"custom_status,omitempty"`
	LastSeen     time.Time             `json:"last_seen"`
}

func (PresenceUpdate) Type() EnvelopeType { return TypePresenceUpdate }

type TypingIndicator struct {
	ChatID   domain.ChatID `json:"chat_id"`
	UserID   domain.UserID `json:"user_id"`
	IsTyping bool          `json:"is_typing"`
}

func (TypingIndicator) Type() EnvelopeType { return TypeTypingIndicator }

type IncomingCall struct {
	CallID   domain.CallID   `json:"call_id"`
	ChatID   domain.ChatID   `json:"chat_id"`
	CallerID domain.UserID   `json:"caller_id"`
	CallType domain.CallType `json:"call_type"`
}

func (IncomingCall) Type() EnvelopeType { return TypeIncomingCall }

type CallAccepted struct {
	CallID domain.CallID `json:"call_id"`
	UserID domain.UserID `json:"user_id"`
}

func (CallAccepted) Type() EnvelopeType { return TypeCallAccepted }

type CallRejected struct {
	CallID domain.CallID `json:"call_id"`
	UserID domain.UserID `json:"user_id"`
	Reason string        `json:"reason,omitempty"`
}

func (CallRejected) Type() EnvelopeType { return TypeCallRejected }

type CallParticipantJoined struct {
	CallID domain.CallID `json:"call_id"`
	UserID domain.UserID `json:"user_id"`
}

func (CallParticipantJoined) Type() EnvelopeType { return TypeCallParticipantJoined }

type CallParticipantLeft struct {
	CallID domain.CallID `json:"call_id"`
	UserID domain.UserID `json:"user_id"`
}

func (CallParticipantLeft) Type() EnvelopeType { return TypeCallParticipantLeft }

type CallMediaToggled struct {
	CallID     domain.CallID `json:"call_id"`
	UserID     domain.UserID `json:"user_id"`
	AudioMuted bool          `json:"audio_muted"`
	VideoOff   bool          `json:"video_off"`
}

func (CallMediaToggled) Type() EnvelopeType { return TypeCallMediaToggled }

type CallEnded struct {
	CallID          domain.CallID     `json:"call_id"`
	ChatID          domain.ChatID     `json:"chat_id"`
	Status          domain.CallStatus `json:"status"`
	Reason          string            `json:"reason,omitempty"`
	DurationSeconds int64             `json:"duration_seconds"`
}

func (CallEnded) Type() EnvelopeType { return TypeCallEnded }

type ChatMessage struct {
	ChatID   domain.ChatID `json:"chat_id"`
	SenderID domain.UserID `json:"sender_id"`
	Body     string        `json:"body"`
}

func (ChatMessage) Type() EnvelopeType { return TypeChatMessage }

type MessageStatus struct {
	ChatID      domain.ChatID   `json:"chat_id"`
	DeliveredTo []domain.UserID `json:"delivered_to"`
}

func (MessageStatus) Type() EnvelopeType { return TypeMessageStatus }

type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (ErrorNotice) Type() EnvelopeType { return TypeError }

type Pong struct{}

func (Pong) Type() EnvelopeType { return TypePong }

// Encode flattens a payload into the wire envelope
// {type, ...payload, server_timestamp}.
func Encode(p Payload) (Frame, error) {
	return encodeAt(p, time.Now())
}

func encodeAt(p Payload, now time.Time) (Frame, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	flat := map[string]any{}
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, err
	}
	flat["type"] = p.Type()
	flat["server_timestamp"] = now.UnixMilli()
	return json.Marshal(flat)
}
