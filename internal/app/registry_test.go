package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcha68893-afk/moodchat/internal/domain"
)

func TestRegisterAllocatesUniqueIDs(t *testing.T) {
	reg := NewRegistry(nil)

	a := reg.Register("alice", &fakeConn{})
	b := reg.Register("alice", &fakeConn{})

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, reg.CountFor("alice"))
	assert.Len(t, reg.ConnectionsFor("alice"), 2)
}

func TestConnectionsForUnknownUserIsEmpty(t *testing.T) {
	reg := NewRegistry(nil)
	assert.Empty(t, reg.ConnectionsFor("nobody"))
	assert.Zero(t, reg.CountFor("nobody"))
}

func TestUnregisterIsIdempotent(t *testing.T) {
	rec := newCountRecorder()
	reg := NewRegistry(rec)

	id := reg.Register("alice", &fakeConn{})
	reg.Unregister(id)
	reg.Unregister(id)
	reg.Unregister("never-existed")

	assert.Zero(t, reg.CountFor("alice"))
	// Exactly two notifications: 1 on register, 0 on the first unregister.
	assert.Equal(t, []int{1, 0}, rec.observed("alice"))
}

func TestUnregisterClosesTransport(t *testing.T) {
	reg := NewRegistry(nil)
	conn := &fakeConn{}

	id := reg.Register("alice", conn)
	reg.Unregister(id)

	assert.False(t, conn.Alive())
}

func TestCountNotificationsFollowTransitions(t *testing.T) {
	rec := newCountRecorder()
	reg := NewRegistry(rec)

	first := reg.Register("alice", &fakeConn{})
	second := reg.Register("alice", &fakeConn{})
	reg.Unregister(first)
	reg.Unregister(second)

	assert.Equal(t, []int{1, 2, 1, 0}, rec.observed("alice"))
}

func TestTouchUpdatesLastActivity(t *testing.T) {
	reg := NewRegistry(nil)
	id := reg.Register("alice", &fakeConn{})

	before := reg.snapshot()
	require.Len(t, before, 1)

	reg.Touch(id)
	after := reg.snapshot()
	require.Len(t, after, 1)
	assert.False(t, after[0].Info.LastActivityAt.Before(before[0].Info.LastActivityAt))

	// Unknown id is a silent no-op.
	reg.Touch("bogus")
}

func TestConcurrentRegisterUnregisterKeepsCountConsistent(t *testing.T) {
	reg := NewRegistry(nil)

	const workers = 8
	const iterations = 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				id := reg.Register("alice", &fakeConn{})
				reg.ConnectionsFor("alice")
				reg.Unregister(id)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, reg.CountFor("alice"))
	assert.Empty(t, reg.ConnectionsFor("alice"))
}

func TestRegistryShardsAreIndependent(t *testing.T) {
	reg := NewRegistry(nil)
	users := []domain.UserID{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, u := range users {
		reg.Register(u, &fakeConn{})
	}
	for _, u := range users {
		assert.Equal(t, 1, reg.CountFor(u))
	}
	assert.Len(t, reg.snapshot(), len(users))
}
