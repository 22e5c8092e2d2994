package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dcha68893-afk/moodchat/internal/domain"
)

type typingKey struct {
	chat domain.ChatID
	user domain.UserID
}

type typingEntry struct {
	state domain.TypingState
	timer *time.Timer
}

// TypingTracker holds the ephemeral per-(chat,user) typing flags. Entries
// expire on a rolling TTL; expiry invokes the onExpire hook so the caller can
// broadcast the implicit typing_stopped. Pure best-effort signaling, no error
// conditions.
type TypingTracker struct {
	ttl      time.Duration
	onExpire func(chatID domain.ChatID, userID domain.UserID)

	mu      sync.Mutex
	entries map[typingKey]*typingEntry

	now func() time.Time
}

func NewTypingTracker(ttl time.Duration, onExpire func(domain.ChatID, domain.UserID)) *TypingTracker {
	return &TypingTracker{
		ttl:      ttl,
		onExpire: onExpire,
		entries:  make(map[typingKey]*typingEntry),
		now:      time.Now,
	}
}

// SetTyping creates/refreshes the flag for isTyping=true and removes it for
// false. Returns whether the observable flag changed, so the caller knows
// whether to broadcast.
func (t *TypingTracker) SetTyping(chatID domain.ChatID, userID domain.UserID, isTyping bool) bool {
	key := typingKey{chat: chatID, user: userID}
	t.mu.Lock()
	defer t.mu.Unlock()

	e, exists := t.entries[key]
	if !isTyping {
		if !exists {
			return false
		}
		e.timer.Stop()
		delete(t.entries, key)
		return true
	}

	now := t.now()
	if exists {
		e.state.ExpiresAt = now.Add(t.ttl)
		e.timer.Reset(t.ttl)
		return false
	}

	e = &typingEntry{
		state: domain.TypingState{
			ChatID:    chatID,
			UserID:    userID,
			StartedAt: now,
			ExpiresAt: now.Add(t.ttl),
		},
	}
	e.timer = time.AfterFunc(t.ttl, func() { t.expire(key) })
	t.entries[key] = e
	return true
}

func (t *TypingTracker) expire(key typingKey) {
	t.mu.Lock()
	e, ok := t.entries[key]
	// A racing refresh may have pushed ExpiresAt forward after this timer
	// fired; only evict entries genuinely past due.
	if ok && t.now().Before(e.state.ExpiresAt) {
		ok = false
	}
	if ok {
		delete(t.entries, key)
	}
	t.mu.Unlock()

	if ok {
		log.Debug().Str("module", "app.typing").Str("chat", string(key.chat)).Str("user", string(key.user)).Msg("typing expired")
		if t.onExpire != nil {
			t.onExpire(key.chat, key.user)
		}
	}
}

// ActiveIn lists users currently typing in a chat.
func (t *TypingTracker) ActiveIn(chatID domain.ChatID) []domain.UserID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.UserID
	now := t.now()
	for key, e := range t.entries {
		if key.chat == chatID && now.Before(e.state.ExpiresAt) {
			out = append(out, key.user)
		}
	}
	return out
}

// Stop cancels all pending expiry timers; used on shutdown.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, key)
	}
}
