package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dcha68893-afk/moodchat/internal/app/call"
	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/domain"
)

// Coordinator composes the core components with an explicit call order:
// registry → presence → call manager → broadcaster. It replaces implicit
// listener chains so a failure in one stage is observable, not silently
// dropped.
type Coordinator struct {
	Registry *Registry
	Presence *PresenceTracker
	Router   *BroadcastRouter
	Calls    *call.Manager
	Typing   *TypingTracker
	Sink     core.EventSink
}

// NewCoordinator wires the components together. The coordinator itself is
// the registry's count listener, closing the loop.
func NewCoordinator(directory core.ChatDirectory, store core.PresenceStore, sink core.EventSink, archiver core.CallArchiver, typingTTL time.Duration) *Coordinator {
	c := &Coordinator{Sink: sink}
	c.Registry = NewRegistry(c)
	c.Presence = NewPresenceTracker(store)
	c.Router = NewBroadcastRouter(c.Registry, directory)
	c.Calls = call.NewManager(directory, c.Router, sink, archiver)
	c.Typing = NewTypingTracker(typingTTL, c.OnTypingExpired)
	return c
}

// OnConnectionCountChanged implements CountListener. A count of zero cascades
// into the call manager before anything is broadcast: a user with no
// connections cannot remain a call participant.
func (c *Coordinator) OnConnectionCountChanged(userID domain.UserID, newCount int) {
	rec, changed := c.Presence.ApplyConnectionCount(userID, newCount)

	if newCount == 0 {
		c.Calls.DropParticipant(context.Background(), userID)
	}
	if changed {
		c.publishPresence(rec)
	}
}

// SetStatus applies an explicit status change and publishes it.
func (c *Coordinator) SetStatus(userID domain.UserID, status domain.PresenceStatus, customStatus string) (domain.PresenceRecord, error) {
	rec, err := c.Presence.SetStatus(userID, status, customStatus)
	if err != nil {
		return domain.PresenceRecord{}, err
	}
	c.publishPresence(rec)
	return rec, nil
}

func (c *Coordinator) publishPresence(rec domain.PresenceRecord) {
	// Other devices of the same user see the change immediately; everyone
	// else reads it through the privacy-filtered projection on query.
	c.Router.ToUser(rec.UserID, core.PresenceUpdate{
		UserID:       rec.UserID,
		Status:       rec.Status,
		CustomStatus: rec.CustomStatus,
		LastSeen:     rec.LastSeen,
	})
	if c.Sink != nil {
		c.Sink.Emit(core.PresenceChangedEvent{
			UserID:   rec.UserID,
			Status:   rec.Status,
			LastSeen: rec.LastSeen,
		})
	}
}

// SetTyping records a typing signal and broadcasts the transition, excluding
// the typist.
func (c *Coordinator) SetTyping(ctx context.Context, chatID domain.ChatID, userID domain.UserID, isTyping bool) {
	changed := c.Typing.SetTyping(chatID, userID, isTyping)
	if !changed {
		return
	}
	c.broadcastTyping(ctx, chatID, userID, isTyping)
}

// OnTypingExpired is the typing tracker's TTL hook.
func (c *Coordinator) OnTypingExpired(chatID domain.ChatID, userID domain.UserID) {
	c.broadcastTyping(context.Background(), chatID, userID, false)
}

func (c *Coordinator) broadcastTyping(ctx context.Context, chatID domain.ChatID, userID domain.UserID, isTyping bool) {
	if _, err := c.Router.ToChat(ctx, chatID, core.TypingIndicator{
		ChatID:   chatID,
		UserID:   userID,
		IsTyping: isTyping,
	}, &userID); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("chat", string(chatID)).Msg("typing broadcast failed")
	}
	if c.Sink != nil {
		c.Sink.Emit(core.TypingChangedEvent{ChatID: chatID, UserID: userID, IsTyping: isTyping})
	}
}

// SendChatMessage fans a message out to the chat (sender excluded), clears
// the sender's typing flag, and reports who actually received it. Partial
// delivery is expected and normal.
func (c *Coordinator) SendChatMessage(ctx context.Context, chatID domain.ChatID, senderID domain.UserID, body string) (core.FanoutResult, error) {
	c.SetTyping(ctx, chatID, senderID, false)

	res, err := c.Router.ToChat(ctx, chatID, core.ChatMessage{
		ChatID:   chatID,
		SenderID: senderID,
		Body:     body,
	}, &senderID)
	if err != nil {
		return core.FanoutResult{}, err
	}
	if c.Sink != nil {
		c.Sink.Emit(core.MessageFanoutEvent{ChatID: chatID, DeliveredTo: res.DeliveredTo})
	}
	return res, nil
}
