package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcha68893-afk/moodchat/internal/domain"
	"github.com/dcha68893-afk/moodchat/internal/store"
)

func newTracker() *PresenceTracker {
	return NewPresenceTracker(store.NewMemoryPresence())
}

func TestFirstConnectionSetsOnline(t *testing.T) {
	tr := newTracker()

	rec, changed := tr.ApplyConnectionCount("alice", 1)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusOnline, rec.Status)
	assert.Equal(t, 1, rec.ActiveConnections)
	assert.False(t, rec.LastSeen.IsZero())
}

func TestSecondDeviceKeepsStatus(t *testing.T) {
	tr := newTracker()
	tr.ApplyConnectionCount("alice", 1)

	rec, changed := tr.ApplyConnectionCount("alice", 2)
	assert.False(t, changed)
	assert.Equal(t, domain.StatusOnline, rec.Status)
	assert.Equal(t, 2, rec.ActiveConnections)
}

func TestLastDisconnectSetsOfflineAndStampsLastSeen(t *testing.T) {
	tr := newTracker()
	tr.ApplyConnectionCount("alice", 1)
	before := time.Now()

	rec, changed := tr.ApplyConnectionCount("alice", 0)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusOffline, rec.Status)
	assert.False(t, rec.LastSeen.Before(before))
}

func TestExplicitStatusSurvivesReconnect(t *testing.T) {
	tr := newTracker()
	tr.ApplyConnectionCount("alice", 1)
	_, err := tr.SetStatus("alice", domain.StatusAway, "")
	require.NoError(t, err)

	tr.ApplyConnectionCount("alice", 0)
	rec, _ := tr.ApplyConnectionCount("alice", 1)
	assert.Equal(t, domain.StatusAway, rec.Status)
}

func TestSetStatusRejectsUnknownValue(t *testing.T) {
	tr := newTracker()
	_, err := tr.SetStatus("alice", "sleeping", "")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	// Nothing was stored.
	assert.Equal(t, domain.StatusOffline, tr.Record("alice").Status)
}

func TestSetStatusCapsCustomStatus(t *testing.T) {
	tr := newTracker()
	long := make([]byte, domain.MaxCustomStatusLen+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := tr.SetStatus("alice", domain.StatusBusy, string(long))
	assert.ErrorIs(t, err, domain.ErrCustomStatusTooLong)
}

func TestUnknownUserReadsAsOfflineNeverSeen(t *testing.T) {
	tr := newTracker()
	view := tr.VisibilityFor("bob", "ghost")
	assert.Equal(t, domain.StatusOffline, view.Status)
	assert.True(t, view.LastSeen.IsZero())
}

func TestInvisibleShowsOfflineToOthersTruthToSelf(t *testing.T) {
	tr := newTracker()
	tr.ApplyConnectionCount("alice", 1)
	_, err := tr.SetStatus("alice", domain.StatusInvisible, "")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusOffline, tr.VisibilityFor("bob", "alice").Status)
	assert.Equal(t, domain.StatusInvisible, tr.VisibilityFor("alice", "alice").Status)
}

func TestPrivacyTogglesApplyAtReadTime(t *testing.T) {
	tr := newTracker()
	tr.ApplyConnectionCount("alice", 1)
	_, err := tr.SetStatus("alice", domain.StatusOnline, "hacking")
	require.NoError(t, err)

	view := tr.VisibilityFor("bob", "alice")
	assert.Equal(t, domain.StatusOnline, view.Status)
	assert.Equal(t, "hacking", view.CustomStatus)
	assert.False(t, view.LastSeen.IsZero())

	tr.SetPrivacy("alice", false, false)
	view = tr.VisibilityFor("bob", "alice")
	assert.Equal(t, domain.StatusOffline, view.Status)
	assert.Empty(t, view.CustomStatus)
	assert.True(t, view.LastSeen.IsZero())

	// Flipping back takes effect immediately too.
	tr.SetPrivacy("alice", true, true)
	assert.Equal(t, domain.StatusOnline, tr.VisibilityFor("bob", "alice").Status)
}
