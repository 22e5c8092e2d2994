package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/domain"
)

const presenceBucket = "PRESENCE"

// eventSubjectPrefix + EventName() is the subject an emitted event lands on.
const eventSubjectPrefix = "moodchat.events."

// NATSBacking holds the shared NATS resources for a multi-process
// deployment: a JetStream KV bucket for presence records and the core
// connection for the outward event feed.
type NATSBacking struct {
	nc *nats.Conn
	kv nats.KeyValue
}

// ConnectNATS dials the shared NATS layer and ensures the presence bucket
// exists.
func ConnectNATS(url string) (*NATSBacking, error) {
	nc, err := nats.Connect(url,
		nats.Name("moodchat-core"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("module", "store.nats").Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("module", "store.nats").Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	kv, err := js.KeyValue(presenceBucket)
	if err != nil {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  presenceBucket,
			History: 1,
			Storage: nats.MemoryStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create %s bucket: %w", presenceBucket, err)
		}
	}
	log.Info().Str("module", "store.nats").Str("url", nc.ConnectedUrl()).Msg("nats backing ready")
	return &NATSBacking{nc: nc, kv: kv}, nil
}

func (b *NATSBacking) Close() {
	b.nc.Drain()
}

// Presence returns the KV-backed presence store.
func (b *NATSBacking) Presence() *NATSPresence { return &NATSPresence{kv: b.kv} }

// Sink returns the NATS event publisher.
func (b *NATSBacking) Sink() *NATSSink { return &NATSSink{nc: b.nc} }

// NATSPresence keeps presence records in the shared KV bucket so queries are
// correct regardless of which process a user's socket landed on. Presence is
// best-effort: store failures degrade to offline/never-seen, they do not
// fail operations.
type NATSPresence struct {
	kv nats.KeyValue
}

func (s *NATSPresence) Get(userID domain.UserID) (domain.PresenceRecord, bool) {
	entry, err := s.kv.Get(string(userID))
	if err != nil {
		return domain.PresenceRecord{}, false
	}
	var rec domain.PresenceRecord
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		log.Warn().Err(err).Str("module", "store.nats").Str("user", string(userID)).Msg("corrupt presence record")
		return domain.PresenceRecord{}, false
	}
	return rec, true
}

func (s *NATSPresence) Put(rec domain.PresenceRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Str("module", "store.nats").Msg("marshal presence record")
		return
	}
	if _, err := s.kv.Put(string(rec.UserID), data); err != nil {
		log.Warn().Err(err).Str("module", "store.nats").Str("user", string(rec.UserID)).Msg("presence put failed")
	}
}

// NATSSink publishes emitted events fire-and-forget, one subject per event
// name.
type NATSSink struct {
	nc *nats.Conn
}

func (s *NATSSink) Emit(evt core.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("module", "store.nats").Str("event", evt.EventName()).Msg("marshal event")
		return
	}
	if err := s.nc.Publish(eventSubjectPrefix+evt.EventName(), data); err != nil {
		log.Warn().Err(err).Str("module", "store.nats").Str("event", evt.EventName()).Msg("event publish failed")
	}
}

var _ core.PresenceStore = (*NATSPresence)(nil)
var _ core.EventSink = (*NATSSink)(nil)
