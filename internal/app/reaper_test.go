package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSweepEvictsDeadTransports(t *testing.T) {
	rec := newCountRecorder()
	reg := NewRegistry(rec)
	reaper := NewReaper(reg, time.Minute, time.Second)

	dead := &fakeConn{}
	live := &fakeConn{}
	reg.Register("alice", dead)
	reg.Register("bob", live)
	dead.Close()

	assert.Equal(t, 1, reaper.Sweep())
	assert.Zero(t, reg.CountFor("alice"))
	assert.Equal(t, 1, reg.CountFor("bob"))
	// Reaper eviction is indistinguishable from a client close downstream.
	assert.Equal(t, []int{1, 0}, rec.observed("alice"))
}

func TestSweepEvictsIdleConnections(t *testing.T) {
	reg := NewRegistry(nil)
	reaper := NewReaper(reg, time.Minute, time.Second)

	reg.Register("alice", &fakeConn{})
	id := reg.Register("bob", &fakeConn{})

	// Pretend time moved past the heartbeat timeout, then bob sends activity.
	future := time.Now().Add(2 * time.Minute)
	reg.now = func() time.Time { return future }
	reg.Touch(id)
	reaper.now = func() time.Time { return future }

	assert.Equal(t, 1, reaper.Sweep())
	assert.Zero(t, reg.CountFor("alice"))
	assert.Equal(t, 1, reg.CountFor("bob"))
}

func TestSweepIsIdempotent(t *testing.T) {
	reg := NewRegistry(nil)
	reaper := NewReaper(reg, time.Minute, time.Second)

	conn := &fakeConn{}
	reg.Register("alice", conn)
	conn.Close()

	assert.Equal(t, 1, reaper.Sweep())
	assert.Equal(t, 0, reaper.Sweep())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	reg := NewRegistry(nil)
	reaper := NewReaper(reg, time.Minute, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on cancel")
	}
}
