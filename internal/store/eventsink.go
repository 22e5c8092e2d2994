package store

import (
	"github.com/rs/zerolog/log"

	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/domain"
)

// LogSink writes emitted events to the log; the single-process default when
// no notification collaborator is wired.
type LogSink struct{}

func (LogSink) Emit(evt core.Event) {
	log.Debug().Str("module", "store.eventsink").Str("event", evt.EventName()).Any("payload", evt).Msg("event emitted")
}

// LogArchiver is the default CallArchiver: finished sessions are logged and
// forgotten. A persistence collaborator replaces it in production.
type LogArchiver struct{}

func (LogArchiver) Archive(s domain.CallSession) {
	log.Info().Str("module", "store.eventsink").Str("call", string(s.CallID)).Str("chat", string(s.ChatID)).Str("status", string(s.Status)).Dur("duration", s.Duration()).Msg("call session archived")
}

var _ core.EventSink = LogSink{}
var _ core.CallArchiver = LogArchiver{}
