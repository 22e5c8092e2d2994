// Package store provides the pluggable backings behind the presence tracker
// and the outward event feed: in-memory for a single process, NATS JetStream
// for multi-process deployments.
package store

import (
	"context"
	"sync"

	"github.com/dcha68893-afk/moodchat/internal/core"
	"github.com/dcha68893-afk/moodchat/internal/domain"
)

// MemoryPresence is the single-process presence record store.
type MemoryPresence struct {
	mu      sync.RWMutex
	records map[domain.UserID]domain.PresenceRecord
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{records: make(map[domain.UserID]domain.PresenceRecord)}
}

func (s *MemoryPresence) Get(userID domain.UserID) (domain.PresenceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	return rec, ok
}

func (s *MemoryPresence) Put(rec domain.PresenceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UserID] = rec
}

// StaticDirectory is a threadsafe in-memory ChatDirectory, used in dev mode
// and in tests. Production deployments plug their own directory client.
type StaticDirectory struct {
	mu      sync.RWMutex
	members map[domain.ChatID][]domain.UserID
	admins  map[domain.ChatID]map[domain.UserID]bool
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		members: make(map[domain.ChatID][]domain.UserID),
		admins:  make(map[domain.ChatID]map[domain.UserID]bool),
	}
}

// SetChat replaces a chat's member list; admins must be members.
func (d *StaticDirectory) SetChat(chatID domain.ChatID, members []domain.UserID, admins ...domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[chatID] = append([]domain.UserID(nil), members...)
	set := make(map[domain.UserID]bool, len(admins))
	for _, a := range admins {
		set[a] = true
	}
	d.admins[chatID] = set
}

func (d *StaticDirectory) MembersOf(_ context.Context, chatID domain.ChatID) ([]domain.UserID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.UserID(nil), d.members[chatID]...), nil
}

func (d *StaticDirectory) IsAdmin(_ context.Context, chatID domain.ChatID, userID domain.UserID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.admins[chatID][userID], nil
}

var _ core.PresenceStore = (*MemoryPresence)(nil)
var _ core.ChatDirectory = (*StaticDirectory)(nil)
