package core

import (
	"time"

	"github.com/dcha68893-afk/moodchat/internal/domain"
)

// Event is emitted outward to the notification/persistence collaborator,
// fire-and-forget, at-most-once from the core's perspective.
type Event interface {
	EventName() string
}

type PresenceChangedEvent struct {
	UserID   domain.UserID         `json:"user_id"`
	Status   domain.PresenceStatus `json:"status"`
	LastSeen time.Time             `json:"last_seen"`
}

func (PresenceChangedEvent) EventName() string { return "presence_changed" }

type TypingChangedEvent struct {
	ChatID   domain.ChatID `json:"chat_id"`
	UserID   domain.UserID `json:"user_id"`
	IsTyping bool          `json:"is_typing"`
}

func (TypingChangedEvent) EventName() string { return "typing_changed" }

type CallStateChangedEvent struct {
	CallID       domain.CallID     `json:"call_id"`
	ChatID       domain.ChatID     `json:"chat_id"`
	Status       domain.CallStatus `json:"status"`
	Participants []domain.UserID   `json:"participants"`
}

func (CallStateChangedEvent) EventName() string { return "call_state_changed" }

type MessageFanoutEvent struct {
	ChatID      domain.ChatID   `json:"chat_id"`
	DeliveredTo []domain.UserID `json:"delivered_to"`
}

func (MessageFanoutEvent) EventName() string { return "message_delivery_fanout" }

// EventSink consumes emitted events. Implementations must not block the
// calling operation.
type EventSink interface {
	Emit(Event)
}
