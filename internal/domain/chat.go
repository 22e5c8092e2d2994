package domain

import "time"

type ChatID string

// TypingState is purely registry-held; it never reaches persistence.
type TypingState struct {
	ChatID    ChatID    `json:"chat_id"`
	UserID    UserID    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
