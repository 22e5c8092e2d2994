package domain

import (
	"errors"
	"time"
)

var ErrInvalidCallType = errors.New("invalid call type")

type CallID string

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// ParseCallType validates a raw call type coming off the wire.
func ParseCallType(raw string) (CallType, error) {
	switch t := CallType(raw); t {
	case CallAudio, CallVideo:
		return t, nil
	}
	return "", ErrInvalidCallType
}

type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallRinging   CallStatus = "ringing"
	CallActive    CallStatus = "active"
	CallRejected  CallStatus = "rejected"
	CallEnded     CallStatus = "ended"
)

// Terminal reports whether the status is final and immutable.
func (s CallStatus) Terminal() bool {
	return s == CallRejected || s == CallEnded
}

// CallParticipant is one user's participation span in a call.
// A nil LeftAt means the participant is still present.
type CallParticipant struct {
	UserID     UserID     `json:"user_id"`
	JoinedAt   time.Time  `json:"joined_at"`
	LeftAt     *time.Time `json:"left_at,omitempty"`
	AudioMuted bool       `json:"audio_muted"`
	VideoOff   bool       `json:"video_off"`
}

// CallSession is the metadata lifecycle of a multi-party call, excluding
// actual media transport.
type CallSession struct {
	CallID          CallID            `json:"call_id"`
	ChatID          ChatID            `json:"chat_id"`
	InitiatorID     UserID            `json:"initiator_id"`
	CallType        CallType          `json:"call_type"`
	Status          CallStatus        `json:"status"`
	Participants    []CallParticipant `json:"participants"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	EndedAt         *time.Time        `json:"ended_at,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
}

// PresentCount is the number of participants with no LeftAt.
func (s *CallSession) PresentCount() int {
	n := 0
	for i := range s.Participants {
		if s.Participants[i].LeftAt == nil {
			n++
		}
	}
	return n
}

// Present returns the participant entry for userID if they are currently in
// the call.
func (s *CallSession) Present(userID UserID) *CallParticipant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID && s.Participants[i].LeftAt == nil {
			return &s.Participants[i]
		}
	}
	return nil
}

// PresentIDs lists the user ids of everyone still in the call.
func (s *CallSession) PresentIDs() []UserID {
	out := make([]UserID, 0, len(s.Participants))
	for i := range s.Participants {
		if s.Participants[i].LeftAt == nil {
			out = append(out, s.Participants[i].UserID)
		}
	}
	return out
}

// Duration is EndedAt - StartedAt, zero until both are stamped.
func (s *CallSession) Duration() time.Duration {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(*s.StartedAt)
}

// Clone deep-copies the session so callers can hand out snapshots without
// exposing manager-owned state.
func (s *CallSession) Clone() CallSession {
	out := *s
	out.Participants = make([]CallParticipant, len(s.Participants))
	copy(out.Participants, s.Participants)
	for i := range out.Participants {
		if s.Participants[i].LeftAt != nil {
			t := *s.Participants[i].LeftAt
			out.Participants[i].LeftAt = &t
		}
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return out
}
