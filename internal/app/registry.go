package app

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/domain"
)

const registryShards = 16

// CountListener is notified after every register/unregister, in per-user
// order, with the user's new live connection count.
type CountListener interface {
	OnConnectionCountChanged(userID domain.UserID, newCount int)
}

type liveConn struct {
	id             domain.ConnectionID
	userID         domain.UserID
	transport      core.SignalConnection
	connectedAt    time.Time
	lastActivityAt time.Time
}

type userEntry struct {
	// notifyMu serializes count transitions and their listener notification
	// for one user, so counts are delivered in order. It is never held while
	// reading connections, so the listener cascade may call ConnectionsFor
	// freely.
	notifyMu sync.Mutex
	mu       sync.RWMutex
	conns    map[domain.ConnectionID]*liveConn
}

type regShard struct {
	mu    sync.RWMutex
	users map[domain.UserID]*userEntry
}

// Registry maps a user id to zero-or-more live connection handles; the single
// source of truth for "is this user reachable right now." Sharded by user id
// to bound lock contention.
type Registry struct {
	shards   [registryShards]regShard
	listener CountListener

	ownerMu sync.RWMutex
	owners  map[domain.ConnectionID]domain.UserID

	now func() time.Time
}

func NewRegistry(listener CountListener) *Registry {
	r := &Registry{
		listener: listener,
		owners:   make(map[domain.ConnectionID]domain.UserID),
		now:      time.Now,
	}
	for i := range r.shards {
		r.shards[i].users = make(map[domain.UserID]*userEntry)
	}
	return r
}

func (r *Registry) shardFor(userID domain.UserID) *regShard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &r.shards[h.Sum32()%registryShards]
}

func (r *Registry) entryFor(userID domain.UserID, create bool) *userEntry {
	s := r.shardFor(userID)
	s.mu.RLock()
	e := s.users[userID]
	s.mu.RUnlock()
	if e != nil || !create {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.users[userID]; e == nil {
		e = &userEntry{conns: make(map[domain.ConnectionID]*liveConn)}
		s.users[userID] = e
	}
	return e
}

// Register always succeeds; multi-device is legal. It allocates a fresh
// unique id, stores the connection, and notifies the count listener.
func (r *Registry) Register(userID domain.UserID, transport core.SignalConnection) domain.ConnectionID {
	id := domain.ConnectionID(uuid.NewString())
	now := r.now()
	conn := &liveConn{
		id:             id,
		userID:         userID,
		transport:      transport,
		connectedAt:    now,
		lastActivityAt: now,
	}

	e := r.entryFor(userID, true)
	e.notifyMu.Lock()
	e.mu.Lock()
	e.conns[id] = conn
	count := len(e.conns)
	e.mu.Unlock()

	r.ownerMu.Lock()
	r.owners[id] = userID
	r.ownerMu.Unlock()

	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(userID)).Int("count", count).Msg("connection registered")
	if r.listener != nil {
		r.listener.OnConnectionCountChanged(userID, count)
	}
	e.notifyMu.Unlock()
	return id
}

// Unregister is idempotent; unknown ids are a silent no-op, since races
// between reap and client-initiated close are expected.
func (r *Registry) Unregister(connID domain.ConnectionID) {
	r.ownerMu.Lock()
	userID, ok := r.owners[connID]
	if ok {
		delete(r.owners, connID)
	}
	r.ownerMu.Unlock()
	if !ok {
		return
	}

	e := r.entryFor(userID, false)
	if e == nil {
		return
	}
	e.notifyMu.Lock()
	e.mu.Lock()
	conn, ok := e.conns[connID]
	if ok {
		delete(e.conns, connID)
	}
	count := len(e.conns)
	e.mu.Unlock()

	if !ok {
		e.notifyMu.Unlock()
		return
	}
	conn.transport.Close()

	log.Info().Str("module", "app.registry").Str("conn", string(connID)).Str("user", string(userID)).Int("count", count).Msg("connection unregistered")
	if r.listener != nil {
		r.listener.OnConnectionCountChanged(userID, count)
	}
	e.notifyMu.Unlock()
}

// ConnectionsFor returns the live transport handles for a user; empty for
// unknown/absent users, never an error.
func (r *Registry) ConnectionsFor(userID domain.UserID) []core.SignalConnection {
	e := r.entryFor(userID, false)
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]core.SignalConnection, 0, len(e.conns))
	for _, c := range e.conns {
		out = append(out, c.transport)
	}
	return out
}

// CountFor returns the live connection count for a user.
func (r *Registry) CountFor(userID domain.UserID) int {
	e := r.entryFor(userID, false)
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.conns)
}

// Touch stamps lastActivityAt on any inbound activity to feed the reaper.
// Unknown ids are a silent no-op.
func (r *Registry) Touch(connID domain.ConnectionID) {
	r.ownerMu.RLock()
	userID, ok := r.owners[connID]
	r.ownerMu.RUnlock()
	if !ok {
		return
	}
	e := r.entryFor(userID, false)
	if e == nil {
		return
	}
	e.mu.Lock()
	if c, ok := e.conns[connID]; ok {
		c.lastActivityAt = r.now()
	}
	e.mu.Unlock()
}

// connSnapshot pairs connection metadata with its transport for the reaper.
type connSnapshot struct {
	Info      domain.ConnectionInfo
	Transport core.SignalConnection
}

// snapshot lists every live connection across all shards.
func (r *Registry) snapshot() []connSnapshot {
	var out []connSnapshot
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		entries := make([]*userEntry, 0, len(s.users))
		for _, e := range s.users {
			entries = append(entries, e)
		}
		s.mu.RUnlock()
		for _, e := range entries {
			e.mu.RLock()
			for _, c := range e.conns {
				out = append(out, connSnapshot{
					Info: domain.ConnectionInfo{
						ID:             c.id,
						UserID:         c.userID,
						ConnectedAt:    c.connectedAt,
						LastActivityAt: c.lastActivityAt,
					},
					Transport: c.transport,
				})
			}
			e.mu.RUnlock()
		}
	}
	return out
}
