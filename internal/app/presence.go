package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/domain"
)

// explicitHeld are statuses a user chose that survive reconnects instead of
// being overridden to online.
func explicitHeld(s domain.PresenceStatus) bool {
	return s == domain.StatusAway || s == domain.StatusBusy || s == domain.StatusInvisible
}

// PresenceTracker derives per-user status from registry count changes and
// explicit status-set calls. Presence is best-effort, not authoritative
// identity data: unknown users read as offline/never-seen.
type PresenceTracker struct {
	store core.PresenceStore

	// locks serialize read-modify-write per user on top of the store.
	locksMu sync.Mutex
	locks   map[domain.UserID]*sync.Mutex

	now func() time.Time
}

func NewPresenceTracker(store core.PresenceStore) *PresenceTracker {
	return &PresenceTracker{
		store: store,
		locks: make(map[domain.UserID]*sync.Mutex),
		now:   time.Now,
	}
}

func (t *PresenceTracker) lockFor(userID domain.UserID) *sync.Mutex {
	t.locksMu.Lock()
	defer t.locksMu.Unlock()
	mu, ok := t.locks[userID]
	if !ok {
		mu = &sync.Mutex{}
		t.locks[userID] = mu
	}
	return mu
}

func (t *PresenceTracker) load(userID domain.UserID) domain.PresenceRecord {
	rec, ok := t.store.Get(userID)
	if !ok {
		rec = domain.NewPresenceRecord(userID)
	}
	return rec
}

// ApplyConnectionCount records a registry count transition. 0 -> >0 moves
// offline -> online unless the user explicitly held away/busy/invisible;
// >0 -> 0 always moves to offline and stamps lastSeen. Returns the updated
// record and whether the visible status changed.
func (t *PresenceTracker) ApplyConnectionCount(userID domain.UserID, newCount int) (domain.PresenceRecord, bool) {
	mu := t.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	rec := t.load(userID)
	prev := rec.Status
	rec.ActiveConnections = newCount

	switch {
	case newCount == 0:
		rec.Status = domain.StatusOffline
		rec.LastSeen = t.now()
	case prev == domain.StatusOffline:
		if explicitHeld(rec.LastExplicit) {
			rec.Status = rec.LastExplicit
		} else {
			rec.Status = domain.StatusOnline
		}
		rec.LastSeen = t.now()
	}

	t.store.Put(rec)
	changed := rec.Status != prev
	if changed {
		log.Debug().Str("module", "app.presence").Str("user", string(userID)).Str("status", string(rec.Status)).Int("conns", newCount).Msg("presence transition")
	}
	return rec, changed
}

// SetStatus applies an explicit user request. Always updates lastSeen.
func (t *PresenceTracker) SetStatus(userID domain.UserID, status domain.PresenceStatus, customStatus string) (domain.PresenceRecord, error) {
	if _, err := domain.ParseStatus(string(status)); err != nil {
		return domain.PresenceRecord{}, err
	}
	if len(customStatus) > domain.MaxCustomStatusLen {
		return domain.PresenceRecord{}, domain.ErrCustomStatusTooLong
	}

	mu := t.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	rec := t.load(userID)
	rec.Status = status
	rec.LastExplicit = status
	rec.CustomStatus = customStatus
	rec.LastSeen = t.now()
	t.store.Put(rec)
	log.Info().Str("module", "app.presence").Str("user", string(userID)).Str("status", string(status)).Msg("explicit status set")
	return rec, nil
}

// SetPrivacy flips the two independent visibility toggles. They apply at
// read time only, so a change takes effect for all future queries at once.
func (t *PresenceTracker) SetPrivacy(userID domain.UserID, showOnlineStatus, showLastSeen bool) domain.PresenceRecord {
	mu := t.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	rec := t.load(userID)
	rec.ShowOnlineStatus = showOnlineStatus
	rec.ShowLastSeen = showLastSeen
	t.store.Put(rec)
	return rec
}

// Record returns the stored record, defaulting for unknown users.
func (t *PresenceTracker) Record(userID domain.UserID) domain.PresenceRecord {
	return t.load(userID)
}

// VisibilityFor is the read-time projection of target's presence as seen by
// viewer: privacy toggles applied, invisible shown as offline to everyone but
// the target themselves.
func (t *PresenceTracker) VisibilityFor(viewerID, targetID domain.UserID) domain.PresenceView {
	rec := t.load(targetID)

	view := domain.PresenceView{UserID: targetID}
	if viewerID == targetID {
		view.Status = rec.Status
		view.CustomStatus = rec.CustomStatus
		view.LastSeen = rec.LastSeen
		return view
	}

	switch {
	case !rec.ShowOnlineStatus, rec.Status == domain.StatusInvisible:
		view.Status = domain.StatusOffline
	default:
		view.Status = rec.Status
		view.CustomStatus = rec.CustomStatus
	}
	if rec.ShowLastSeen {
		view.LastSeen = rec.LastSeen
	}
	return view
}
