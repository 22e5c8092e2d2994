package core

import (
	"context"
	"errors"

	"github.com/dcha68893-afk/moodchat/internal/domain"
)

// Frame is a raw payload pushed to a client connection.
type Frame []byte

var ErrAuthentication = errors.New("authentication failed")

// SignalConnection abstracts a client messaging transport.
// Close must be idempotent: both the owning adapter and the registry (on
// eviction) may call it.
type SignalConnection interface {
	TrySend(Frame) error
	// Alive reports whether the transport is still usable. The reaper evicts
	// connections whose transport went dead without an explicit close.
	Alive() bool
	Close()
}

// ChatDirectory is the external membership/authorization source of truth for
// chats. Lookups are assumed fast; a failed lookup is transient and
// propagated, never swallowed.
type ChatDirectory interface {
	MembersOf(ctx context.Context, chatID domain.ChatID) ([]domain.UserID, error)
	IsAdmin(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (bool, error)
}

// Identity verifies a transport credential before a connection is registered.
type Identity interface {
	Verify(ctx context.Context, credential string) (domain.UserID, error)
}

// PresenceStore persists presence records. The in-memory implementation is
// enough for a single process; a multi-process deployment plugs a shared
// store so presence queries are correct regardless of which process a socket
// landed on.
type PresenceStore interface {
	Get(userID domain.UserID) (domain.PresenceRecord, bool)
	Put(rec domain.PresenceRecord)
}

// CallArchiver receives finished call sessions, fire-and-forget. The core
// hands a terminal session off read-only and evicts it from live memory.
type CallArchiver interface {
	Archive(session domain.CallSession)
}

// FanoutResult reports which members actually received a chat broadcast.
type FanoutResult struct {
	DeliveredTo []domain.UserID
	Dropped     int
}

// Delivered reports whether userID got at least one copy.
func (r FanoutResult) Delivered(userID domain.UserID) bool {
	for _, id := range r.DeliveredTo {
		if id == userID {
			return true
		}
	}
	return false
}
