package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcha68893-afk/moodchat/internal/domain"
)

func TestMemoryPresenceRoundTrip(t *testing.T) {
	s := NewMemoryPresence()

	_, ok := s.Get("alice")
	assert.False(t, ok)

	rec := domain.NewPresenceRecord("alice")
	rec.Status = domain.StatusAway
	s.Put(rec)

	got, ok := s.Get("alice")
	require.True(t, ok)
	assert.Equal(t, domain.StatusAway, got.Status)
}

func TestStaticDirectoryMembershipAndAdmins(t *testing.T) {
	d := NewStaticDirectory()
	ctx := context.Background()

	members, err := d.MembersOf(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, members)

	d.SetChat("7", []domain.UserID{"alice", "bob", "carol"}, "carol")

	members, err = d.MembersOf(ctx, "7")
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.UserID{"alice", "bob", "carol"}, members)

	admin, err := d.IsAdmin(ctx, "7", "carol")
	require.NoError(t, err)
	assert.True(t, admin)
	admin, err = d.IsAdmin(ctx, "7", "alice")
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestSetChatReplacesMembership(t *testing.T) {
	d := NewStaticDirectory()
	ctx := context.Background()

	d.SetChat("7", []domain.UserID{"alice", "bob"}, "alice")
	d.SetChat("7", []domain.UserID{"bob", "carol"})

	members, err := d.MembersOf(ctx, "7")
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.UserID{"bob", "carol"}, members)

	admin, err := d.IsAdmin(ctx, "7", "alice")
	require.NoError(t, err)
	assert.False(t, admin)
}
