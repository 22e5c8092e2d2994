package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/domain"
)

// BroadcastRouter fans one payload out to connected recipients. It holds no
// state of its own; ordering per connection follows the order ToChat/ToUser
// were invoked because frames are handed straight to each connection's send
// queue with no internal buffering.
type BroadcastRouter struct {
	registry  *Registry
	directory core.ChatDirectory
}

func NewBroadcastRouter(registry *Registry, directory core.ChatDirectory) *BroadcastRouter {
	return &BroadcastRouter{registry: registry, directory: directory}
}

// ToUser pushes a payload to every live connection of one user. Returns false
// when nothing was deliverable; that is not an error, the caller decides
// whether undeliverable matters.
func (r *BroadcastRouter) ToUser(userID domain.UserID, p core.Payload) bool {
	frame, err := core.Encode(p)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Str("kind", string(p.Type())).Msg("encode payload")
		return false
	}
	return r.sendFrame(userID, frame)
}

func (r *BroadcastRouter) sendFrame(userID domain.UserID, frame core.Frame) bool {
	delivered := false
	for _, conn := range r.registry.ConnectionsFor(userID) {
		if err := conn.TrySend(frame); err != nil {
			log.Debug().Err(err).Str("module", "app.broadcast").Str("user", string(userID)).Msg("send dropped")
			continue
		}
		delivered = true
	}
	return delivered
}

// ToChat resolves the chat's member set and pushes to every connected member
// except the excluded sender. Delivery per member is independent; one dead
// connection never blocks or errors the others. A directory failure is
// transient and propagated.
func (r *BroadcastRouter) ToChat(ctx context.Context, chatID domain.ChatID, p core.Payload, exclude *domain.UserID) (core.FanoutResult, error) {
	members, err := r.directory.MembersOf(ctx, chatID)
	if err != nil {
		return core.FanoutResult{}, fmt.Errorf("resolve chat %s members: %w", chatID, err)
	}
	frame, err := core.Encode(p)
	if err != nil {
		return core.FanoutResult{}, fmt.Errorf("encode %s payload: %w", p.Type(), err)
	}

	res := core.FanoutResult{}
	for _, member := range members {
		if exclude != nil && member == *exclude {
			continue
		}
		if r.sendFrame(member, frame) {
			res.DeliveredTo = append(res.DeliveredTo, member)
		} else {
			res.Dropped++
		}
	}
	log.Debug().Str("module", "app.broadcast").Str("chat", string(chatID)).Str("kind", string(p.Type())).Int("delivered", len(res.DeliveredTo)).Int("dropped", res.Dropped).Msg("fanout result")
	return res, nil
}
