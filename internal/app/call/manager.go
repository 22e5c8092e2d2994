// Package call owns the call-session state machine:
// initiated → ringing → active → ended, with a side branch to rejected.
// Terminal sessions are archived and evicted from live memory.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/domain"
)

var (
	ErrCallNotFound      = errors.New("call not found")
	ErrCallAlreadyActive = errors.New("chat already has an active call")
	ErrInvalidTransition = errors.New("invalid call transition")
	ErrNotAParticipant   = errors.New("user is not a call participant")
	ErrNotAuthorized     = errors.New("user is not authorized")
)

// Broadcaster is the notification path out of the state machine. Satisfied by
// app.BroadcastRouter.
type Broadcaster interface {
	ToChat(ctx context.Context, chatID domain.ChatID, p core.Payload, exclude *domain.UserID) (core.FanoutResult, error)
}

type session struct {
	mu sync.Mutex
	domain.CallSession
	declined map[domain.UserID]bool
	// direct marks a two-party chat; a single rejection terminates only
	// direct sessions.
	direct bool
}

// Manager serializes transitions per call id and guarantees at most one
// non-terminal session per chat. Every mutating operation fails closed: a
// named error and no state change.
type Manager struct {
	directory core.ChatDirectory
	router    Broadcaster
	sink      core.EventSink
	archiver  core.CallArchiver

	mu     sync.RWMutex
	byID   map[domain.CallID]*session
	byChat map[domain.ChatID]domain.CallID

	now func() time.Time
}

func NewManager(directory core.ChatDirectory, router Broadcaster, sink core.EventSink, archiver core.CallArchiver) *Manager {
	return &Manager{
		directory: directory,
		router:    router,
		sink:      sink,
		archiver:  archiver,
		byID:      make(map[domain.CallID]*session),
		byChat:    make(map[domain.ChatID]domain.CallID),
		now:       time.Now,
	}
}

func (m *Manager) get(callID domain.CallID) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[callID]
	if !ok {
		return nil, ErrCallNotFound
	}
	return s, nil
}

func (m *Manager) membership(ctx context.Context, chatID domain.ChatID, userID domain.UserID) ([]domain.UserID, bool, error) {
	members, err := m.directory.MembersOf(ctx, chatID)
	if err != nil {
		return nil, false, fmt.Errorf("resolve chat %s members: %w", chatID, err)
	}
	for _, member := range members {
		if member == userID {
			return members, true, nil
		}
	}
	return members, false, nil
}

// Session returns a read-only snapshot of a live call.
func (m *Manager) Session(callID domain.CallID) (domain.CallSession, error) {
	s, err := m.get(callID)
	if err != nil {
		return domain.CallSession{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Clone(), nil
}

// ActiveForChat returns the chat's non-terminal call, if any.
func (m *Manager) ActiveForChat(chatID domain.ChatID) (domain.CallSession, bool) {
	m.mu.RLock()
	callID, ok := m.byChat[chatID]
	var s *session
	if ok {
		s = m.byID[callID]
	}
	m.mu.RUnlock()
	if s == nil {
		return domain.CallSession{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Clone(), true
}

// Initiate creates a session with the caller as sole participant, broadcasts
// incoming_call to the chat excluding the caller, and moves to ringing once
// at least one callee was reachable.
func (m *Manager) Initiate(ctx context.Context, chatID domain.ChatID, callerID domain.UserID, callType domain.CallType) (domain.CallSession, error) {
	if _, err := domain.ParseCallType(string(callType)); err != nil {
		return domain.CallSession{}, err
	}
	members, isMember, err := m.membership(ctx, chatID, callerID)
	if err != nil {
		return domain.CallSession{}, err
	}
	if !isMember {
		return domain.CallSession{}, ErrNotAuthorized
	}

	now := m.now()
	s := &session{
		CallSession: domain.CallSession{
			CallID:      domain.CallID(uuid.NewString()),
			ChatID:      chatID,
			InitiatorID: callerID,
			CallType:    callType,
			Status:      domain.CallInitiated,
			Participants: []domain.CallParticipant{
				{UserID: callerID, JoinedAt: now},
			},
		},
		declined: make(map[domain.UserID]bool),
		direct:   len(members) == 2,
	}

	m.mu.Lock()
	if _, busy := m.byChat[chatID]; busy {
		m.mu.Unlock()
		return domain.CallSession{}, ErrCallAlreadyActive
	}
	m.byID[s.CallID] = s
	m.byChat[chatID] = s.CallID
	m.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := m.router.ToChat(ctx, chatID, core.IncomingCall{
		CallID:   s.CallID,
		ChatID:   chatID,
		CallerID: callerID,
		CallType: callType,
	}, &callerID)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.call").Str("call", string(s.CallID)).Msg("incoming_call broadcast failed")
	} else if len(res.DeliveredTo) > 0 {
		s.Status = domain.CallRinging
	}

	log.Info().Str("module", "app.call").Str("call", string(s.CallID)).Str("chat", string(chatID)).Str("caller", string(callerID)).Str("type", string(callType)).Str("status", string(s.Status)).Msg("call initiated")
	m.emitState(&s.CallSession)
	return s.Clone(), nil
}

// Accept adds a chat member to a ringing call; the first acceptance
// activates it.
func (m *Manager) Accept(ctx context.Context, callID domain.CallID, userID domain.UserID) (domain.CallSession, error) {
	s, err := m.get(callID)
	if err != nil {
		return domain.CallSession{}, err
	}
	_, isMember, err := m.membership(ctx, s.ChatID, userID)
	if err != nil {
		return domain.CallSession{}, err
	}
	if !isMember {
		return domain.CallSession{}, ErrNotAuthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != domain.CallInitiated && s.Status != domain.CallRinging {
		return domain.CallSession{}, ErrInvalidTransition
	}
	if s.Present(userID) != nil {
		return domain.CallSession{}, ErrInvalidTransition
	}

	now := m.now()
	s.Participants = append(s.Participants, domain.CallParticipant{UserID: userID, JoinedAt: now})
	delete(s.declined, userID)
	s.Status = domain.CallActive
	if s.StartedAt == nil {
		s.StartedAt = &now
	}

	m.broadcast(ctx, s.ChatID, core.CallAccepted{CallID: callID, UserID: userID}, nil)
	log.Info().Str("module", "app.call").Str("call", string(callID)).Str("user", string(userID)).Msg("call accepted")
	m.emitState(&s.CallSession)
	return s.Clone(), nil
}

// Reject declines a ringing call. Direct (two-party) sessions terminate;
// group sessions only record the decline so other members may still accept.
func (m *Manager) Reject(ctx context.Context, callID domain.CallID, userID domain.UserID, reason string) (domain.CallSession, error) {
	s, err := m.get(callID)
	if err != nil {
		return domain.CallSession{}, err
	}
	_, isMember, err := m.membership(ctx, s.ChatID, userID)
	if err != nil {
		return domain.CallSession{}, err
	}
	if !isMember {
		return domain.CallSession{}, ErrNotAuthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != domain.CallInitiated && s.Status != domain.CallRinging {
		return domain.CallSession{}, ErrInvalidTransition
	}

	if !s.direct {
		s.declined[userID] = true
		m.broadcast(ctx, s.ChatID, core.CallRejected{CallID: callID, UserID: userID, Reason: reason}, nil)
		log.Info().Str("module", "app.call").Str("call", string(callID)).Str("user", string(userID)).Msg("call declined (group)")
		return s.Clone(), nil
	}

	now := m.now()
	s.Status = domain.CallRejected
	s.EndedAt = &now
	s.RejectionReason = reason
	for i := range s.Participants {
		if s.Participants[i].LeftAt == nil {
			t := now
			s.Participants[i].LeftAt = &t
		}
	}
	m.finish(ctx, s, reason)
	log.Info().Str("module", "app.call").Str("call", string(callID)).Str("user", string(userID)).Msg("call rejected")
	return s.Clone(), nil
}

// Join adds a chat member to an already active call.
func (m *Manager) Join(ctx context.Context, callID domain.CallID, userID domain.UserID) (domain.CallSession, error) {
	s, err := m.get(callID)
	if err != nil {
		return domain.CallSession{}, err
	}
	_, isMember, err := m.membership(ctx, s.ChatID, userID)
	if err != nil {
		return domain.CallSession{}, err
	}
	if !isMember {
		return domain.CallSession{}, ErrNotAuthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != domain.CallActive {
		return domain.CallSession{}, ErrInvalidTransition
	}
	if s.Present(userID) != nil {
		return domain.CallSession{}, ErrInvalidTransition
	}

	s.Participants = append(s.Participants, domain.CallParticipant{UserID: userID, JoinedAt: m.now()})
	m.broadcast(ctx, s.ChatID, core.CallParticipantJoined{CallID: callID, UserID: userID}, nil)
	log.Info().Str("module", "app.call").Str("call", string(callID)).Str("user", string(userID)).Msg("participant joined")
	m.emitState(&s.CallSession)
	return s.Clone(), nil
}

// Leave marks the participant gone. The last leaver always terminates the
// session in the same operation: a call is never active with zero present
// participants.
func (m *Manager) Leave(ctx context.Context, callID domain.CallID, userID domain.UserID) (domain.CallSession, error) {
	s, err := m.get(callID)
	if err != nil {
		return domain.CallSession{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return m.leaveLocked(ctx, s, userID)
}

func (m *Manager) leaveLocked(ctx context.Context, s *session, userID domain.UserID) (domain.CallSession, error) {
	if s.Status.Terminal() {
		return domain.CallSession{}, ErrInvalidTransition
	}
	p := s.Present(userID)
	if p == nil {
		return domain.CallSession{}, ErrNotAParticipant
	}

	now := m.now()
	p.LeftAt = &now
	m.broadcast(ctx, s.ChatID, core.CallParticipantLeft{CallID: s.CallID, UserID: userID}, nil)

	if s.PresentCount() == 0 {
		s.Status = domain.CallEnded
		s.EndedAt = &now
		m.finish(ctx, s, "last participant left")
		log.Info().Str("module", "app.call").Str("call", string(s.CallID)).Dur("duration", s.Duration()).Msg("call ended (last participant left)")
	} else {
		log.Info().Str("module", "app.call").Str("call", string(s.CallID)).Str("user", string(userID)).Int("present", s.PresentCount()).Msg("participant left")
		m.emitState(&s.CallSession)
	}
	return s.Clone(), nil
}

// End force-terminates a call; only the initiator or a chat admin may.
func (m *Manager) End(ctx context.Context, callID domain.CallID, userID domain.UserID) (domain.CallSession, error) {
	s, err := m.get(callID)
	if err != nil {
		return domain.CallSession{}, err
	}

	if userID != s.InitiatorID {
		admin, err := m.directory.IsAdmin(ctx, s.ChatID, userID)
		if err != nil {
			return domain.CallSession{}, fmt.Errorf("resolve chat %s admin: %w", s.ChatID, err)
		}
		if !admin {
			return domain.CallSession{}, ErrNotAuthorized
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status.Terminal() {
		return domain.CallSession{}, ErrInvalidTransition
	}

	now := m.now()
	for i := range s.Participants {
		if s.Participants[i].LeftAt == nil {
			t := now
			s.Participants[i].LeftAt = &t
		}
	}
	s.Status = domain.CallEnded
	s.EndedAt = &now
	m.finish(ctx, s, "ended by "+string(userID))
	log.Info().Str("module", "app.call").Str("call", string(callID)).Str("by", string(userID)).Msg("call force-ended")
	return s.Clone(), nil
}

// ToggleAudio mutates only that participant's mute flag; active calls only.
func (m *Manager) ToggleAudio(ctx context.Context, callID domain.CallID, userID domain.UserID, muted bool) error {
	return m.toggleMedia(ctx, callID, userID, func(p *domain.CallParticipant) { p.AudioMuted = muted })
}

// ToggleVideo mutates only that participant's video flag; active calls only.
func (m *Manager) ToggleVideo(ctx context.Context, callID domain.CallID, userID domain.UserID, videoOff bool) error {
	return m.toggleMedia(ctx, callID, userID, func(p *domain.CallParticipant) { p.VideoOff = videoOff })
}

func (m *Manager) toggleMedia(ctx context.Context, callID domain.CallID, userID domain.UserID, apply func(*domain.CallParticipant)) error {
	s, err := m.get(callID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != domain.CallActive {
		return ErrInvalidTransition
	}
	p := s.Present(userID)
	if p == nil {
		return ErrNotAParticipant
	}
	apply(p)
	m.broadcast(ctx, s.ChatID, core.CallMediaToggled{
		CallID:     callID,
		UserID:     userID,
		AudioMuted: p.AudioMuted,
		VideoOff:   p.VideoOff,
	}, nil)
	return nil
}

// DropParticipant treats a full disconnect exactly like Leave for every
// session the user participates in, so no orphaned participants survive.
func (m *Manager) DropParticipant(ctx context.Context, userID domain.UserID) {
	m.mu.RLock()
	sessions := make([]*session, 0, len(m.byID))
	for _, s := range m.byID {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.mu.Lock()
		if !s.Status.Terminal() && s.Present(userID) != nil {
			if _, err := m.leaveLocked(ctx, s, userID); err != nil {
				log.Warn().Err(err).Str("module", "app.call").Str("call", string(s.CallID)).Str("user", string(userID)).Msg("disconnect leave failed")
			}
		}
		s.mu.Unlock()
	}
}

// finish handles a session that just went terminal: broadcast, archive,
// evict. Caller holds s.mu.
func (m *Manager) finish(ctx context.Context, s *session, reason string) {
	m.mu.Lock()
	delete(m.byID, s.CallID)
	if m.byChat[s.ChatID] == s.CallID {
		delete(m.byChat, s.ChatID)
	}
	m.mu.Unlock()

	m.broadcast(ctx, s.ChatID, core.CallEnded{
		CallID:          s.CallID,
		ChatID:          s.ChatID,
		Status:          s.Status,
		Reason:          reason,
		DurationSeconds: int64(s.Duration().Seconds()),
	}, nil)
	m.emitState(&s.CallSession)
	if m.archiver != nil {
		m.archiver.Archive(s.Clone())
	}
}

func (m *Manager) broadcast(ctx context.Context, chatID domain.ChatID, p core.Payload, exclude *domain.UserID) {
	if _, err := m.router.ToChat(ctx, chatID, p, exclude); err != nil {
		log.Warn().Err(err).Str("module", "app.call").Str("chat", string(chatID)).Str("kind", string(p.Type())).Msg("call broadcast failed")
	}
}

func (m *Manager) emitState(s *domain.CallSession) {
	if m.sink == nil {
		return
	}
	m.sink.Emit(core.CallStateChangedEvent{
		CallID:       s.CallID,
		ChatID:       s.ChatID,
		Status:       s.Status,
		Participants: s.PresentIDs(),
	})
}
