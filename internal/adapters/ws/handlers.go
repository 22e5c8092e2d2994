package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dcha68893-afk/moodchat/internal/app/call"
	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/domain"
)

func (ctl *Controller) dispatch(ctx context.Context, userID domain.UserID, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("bad json")
		ctl.sendError(c, "bad_payload", "")
		return
	}

	switch env.Type {
	case "ping":
		ctl.sendPayload(c, core.Pong{})
	case "set_status":
		ctl.handleSetStatus(userID, c, data)
	case "set_privacy":
		ctl.handleSetPrivacy(userID, c, data)
	case "presence_query":
		ctl.handlePresenceQuery(userID, c, data)
	case "typing":
		ctl.handleTyping(ctx, userID, c, data)
	case "chat_message":
		ctl.handleChatMessage(ctx, userID, c, data)
	case "call_initiate":
		ctl.handleCallInitiate(ctx, userID, c, data)
	case "call_accept":
		ctl.handleCallOp(ctx, userID, c, data, func(ctx context.Context, id domain.CallID) error {
			_, err := ctl.Coord.Calls.Accept(ctx, id, userID)
			return err
		})
	case "call_reject":
		ctl.handleCallReject(ctx, userID, c, data)
	case "call_join":
		ctl.handleCallOp(ctx, userID, c, data, func(ctx context.Context, id domain.CallID) error {
			_, err := ctl.Coord.Calls.Join(ctx, id, userID)
			return err
		})
	case "call_leave":
		ctl.handleCallOp(ctx, userID, c, data, func(ctx context.Context, id domain.CallID) error {
			_, err := ctl.Coord.Calls.Leave(ctx, id, userID)
			return err
		})
	case "call_end":
		ctl.handleCallOp(ctx, userID, c, data, func(ctx context.Context, id domain.CallID) error {
			_, err := ctl.Coord.Calls.End(ctx, id, userID)
			return err
		})
	case "call_toggle_audio":
		ctl.handleToggle(ctx, userID, c, data, ctl.Coord.Calls.ToggleAudio)
	case "call_toggle_video":
		ctl.handleToggle(ctx, userID, c, data, ctl.Coord.Calls.ToggleVideo)
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, "unknown_type", env.Type)
	}
}

func (ctl *Controller) sendError(c *wsConn, code, message string) {
	ctl.sendPayload(c, core.ErrorNotice{Code: code, Message: message})
}

// reportErr maps core errors to stable wire codes. Transient collaborator
// failures come back as retryable.
func (ctl *Controller) reportErr(c *wsConn, err error) {
	switch {
	case errors.Is(err, call.ErrCallNotFound):
		ctl.sendError(c, "call_not_found", "")
	case errors.Is(err, call.ErrCallAlreadyActive):
		ctl.sendError(c, "call_already_active", "")
	case errors.Is(err, call.ErrInvalidTransition):
		ctl.sendError(c, "invalid_transition", "")
	case errors.Is(err, call.ErrNotAParticipant):
		ctl.sendError(c, "not_a_participant", "")
	case errors.Is(err, call.ErrNotAuthorized):
		ctl.sendError(c, "not_authorized", "")
	case errors.Is(err, domain.ErrInvalidStatus):
		ctl.sendError(c, "invalid_status", "")
	case errors.Is(err, domain.ErrCustomStatusTooLong):
		ctl.sendError(c, "custom_status_too_long", "")
	case errors.Is(err, domain.ErrInvalidCallType):
		ctl.sendError(c, "invalid_call_type", "")
	default:
		log.Warn().Err(err).Str("module", "ws").Msg("transient failure")
		ctl.sendError(c, "retryable", err.Error())
	}
}

func (ctl *Controller) handleSetStatus(userID domain.UserID, c *wsConn, data []byte) {
	var p struct {
		Status       string `json:"status"`
		CustomStatus string `json:"custom_status"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload", "")
		return
	}
	if _, err := ctl.Coord.SetStatus(userID, domain.PresenceStatus(p.Status), p.CustomStatus); err != nil {
		ctl.reportErr(c, err)
	}
}

func (ctl *Controller) handleSetPrivacy(userID domain.UserID, c *wsConn, data []byte) {
	var p struct {
		ShowOnlineStatus bool `json:"show_online_status"`
		ShowLastSeen     bool `json:"show_last_seen"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload", "")
		return
	}
	ctl.Coord.Presence.SetPrivacy(userID, p.ShowOnlineStatus, p.ShowLastSeen)
}

func (ctl *Controller) handlePresenceQuery(userID domain.UserID, c *wsConn, data []byte) {
	var p struct {
		UserIDs []domain.UserID `json:"user_ids"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload", "")
		return
	}
	for _, target := range p.UserIDs {
		view := ctl.Coord.Presence.VisibilityFor(userID, target)
		ctl.sendPayload(c, core.PresenceUpdate{
			UserID:       view.UserID,
			Status:       view.Status,
			CustomStatus: view.CustomStatus,
			LastSeen:     view.LastSeen,
		})
	}
}

func (ctl *Controller) handleTyping(ctx context.Context, userID domain.UserID, c *wsConn, data []byte) {
	var p struct {
		ChatID   domain.ChatID `json:"chat_id"`
		IsTyping bool          `json:"is_typing"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload", "")
		return
	}
	ctl.Coord.SetTyping(ctx, p.ChatID, userID, p.IsTyping)
}

func (ctl *Controller) handleChatMessage(ctx context.Context, userID domain.UserID, c *wsConn, data []byte) {
	var p struct {
		ChatID domain.ChatID `json:"chat_id"`
		Body   string        `json:"body"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload", "")
		return
	}
	res, err := ctl.Coord.SendChatMessage(ctx, p.ChatID, userID, p.Body)
	if err != nil {
		ctl.reportErr(c, err)
		return
	}
	ctl.sendPayload(c, core.MessageStatus{ChatID: p.ChatID, DeliveredTo: res.DeliveredTo})
}

func (ctl *Controller) handleCallInitiate(ctx context.Context, userID domain.UserID, c *wsConn, data []byte) {
	var p struct {
		ChatID   domain.ChatID `json:"chat_id"`
		CallType string        `json:"call_type"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload", "")
		return
	}
	sess, err := ctl.Coord.Calls.Initiate(ctx, p.ChatID, userID, domain.CallType(p.CallType))
	if err != nil {
		ctl.reportErr(c, err)
		return
	}
	// The caller gets the same incoming_call shape everyone else got, so the
	// client learns the allocated call id.
	ctl.sendPayload(c, core.IncomingCall{
		CallID:   sess.CallID,
		ChatID:   sess.ChatID,
		CallerID: sess.InitiatorID,
		CallType: sess.CallType,
	})
}

func (ctl *Controller) handleCallReject(ctx context.Context, userID domain.UserID, c *wsConn, data []byte) {
	var p struct {
		CallID domain.CallID `json:"call_id"`
		Reason string        `json:"reason"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload", "")
		return
	}
	if _, err := ctl.Coord.Calls.Reject(ctx, p.CallID, userID, p.Reason); err != nil {
		ctl.reportErr(c, err)
	}
}

func (ctl *Controller) handleCallOp(ctx context.Context, _ domain.UserID, c *wsConn, data []byte, op func(context.Context, domain.CallID) error) {
	var p struct {
		CallID domain.CallID `json:"call_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload", "")
		return
	}
	if err := op(ctx, p.CallID); err != nil {
		ctl.reportErr(c, err)
	}
}

func (ctl *Controller) handleToggle(ctx context.Context, userID domain.UserID, c *wsConn, data []byte, op func(context.Context, domain.CallID, domain.UserID, bool) error) {
	var p struct {
		CallID domain.CallID `json:"call_id"`
		Flag   bool          `json:"flag"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload", "")
		return
	}
	if err := op(ctx, p.CallID, userID, p.Flag); err != nil {
		ctl.reportErr(c, err)
	}
}
