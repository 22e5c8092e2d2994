package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/domain"
	"github.com/dcha68893-afk/moodchat/internal/store"
)

// fakeConn records every frame pushed to it.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	reject bool
}

func (f *fakeConn) TrySend(frame core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.reject {
		return errors.New("unreachable")
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// decoded returns the received frames as generic maps, in order.
func (f *fakeConn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, frame := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(frame, &m))
		out = append(out, m)
	}
	return out
}

// types lists the envelope type of each received frame, in order.
func (f *fakeConn) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, m := range f.decoded(t) {
		out = append(out, m["type"].(string))
	}
	return out
}

// countRecorder captures listener notifications.
type countRecorder struct {
	mu     sync.Mutex
	counts map[domain.UserID][]int
}

func newCountRecorder() *countRecorder {
	return &countRecorder{counts: make(map[domain.UserID][]int)}
}

func (r *countRecorder) OnConnectionCountChanged(userID domain.UserID, newCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[userID] = append(r.counts[userID], newCount)
}

func (r *countRecorder) observed(userID domain.UserID) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.counts[userID]...)
}

// eventRecorder captures emitted events.
type eventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *eventRecorder) Emit(evt core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) named(name string) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Event
	for _, e := range r.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

const defaultTestTTL = 50 * time.Millisecond

// newTestCoordinator wires a full in-memory coordinator for cascade tests.
func newTestCoordinator() (*Coordinator, *store.StaticDirectory, *eventRecorder) {
	dir := store.NewStaticDirectory()
	sink := &eventRecorder{}
	coord := NewCoordinator(dir, store.NewMemoryPresence(), sink, store.LogArchiver{}, defaultTestTTL)
	return coord, dir, sink
}
