package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-dev/threadline/internal/session"
	"github.com/threadline-dev/threadline/internal/storage/storagetest"
	"github.com/threadline-dev/threadline/pkg/types"
)

func TestNewID_Canonical(t *testing.T) {
	id := session.NewID()
	assert.True(t, session.IsCanonicalID(id))
}

func TestIsCanonicalID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"ses_6ba7b810-9dad-11d1-80b4-00c04fd430c8", true},
		{"6ba7b810-9dad-11d1-80b4-00c04fd430c8", false},
		{"ses_not-a-uuid", false},
		{"conversation-42", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, session.IsCanonicalID(tc.id), tc.id)
	}
}

func TestStoreResolver_MintsUniqueIDs(t *testing.T) {
	r := session.NewStoreResolver(storagetest.New().Sessions())

	a, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, a.IsNewSession)
	assert.True(t, b.IsNewSession)
	assert.NotEqual(t, a.SessionID, b.SessionID, "two empty-candidate resolutions must never mint the same id")
}

func TestStoreResolver_CanonicalPassThrough(t *testing.T) {
	r := session.NewStoreResolver(storagetest.New().Sessions())
	id := session.NewID()

	info, err := r.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, info.SessionID)
	assert.False(t, info.IsNewSession)
	assert.False(t, info.IsNonStandardID)
	assert.Empty(t, info.OriginalSessionID)
}

func TestStoreResolver_NonStandardCandidate(t *testing.T) {
	r := session.NewStoreResolver(storagetest.New().Sessions())

	info, err := r.Resolve(context.Background(), "conversation-42")
	require.NoError(t, err)
	assert.True(t, info.IsNonStandardID)
	assert.True(t, info.IsNewSession)
	assert.Equal(t, "conversation-42", info.OriginalSessionID)
	assert.True(t, session.IsCanonicalID(info.SessionID))

	// The same caller identifier maps to the same canonical id.
	again, err := r.Resolve(context.Background(), "conversation-42")
	require.NoError(t, err)
	assert.Equal(t, info.SessionID, again.SessionID)
	assert.False(t, again.IsNewSession)
}

func TestStoreResolver_SurfacesStoreFailure(t *testing.T) {
	store := storagetest.New()
	store.SessionGetErr = errors.New("disk on fire")
	r := session.NewStoreResolver(store.Sessions())

	_, err := r.Resolve(context.Background(), session.NewID())
	require.Error(t, err, "infrastructure failures must surface so the router can fall back")
}

func TestStatelessResolver_Rules(t *testing.T) {
	r := session.StatelessResolver{}

	minted, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, minted.IsNewSession)

	id := session.NewID()
	passed, err := r.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionInfo{SessionID: id}, passed)

	remapped, err := r.Resolve(context.Background(), "my-session")
	require.NoError(t, err)
	assert.True(t, remapped.IsNonStandardID)
	assert.Equal(t, "my-session", remapped.OriginalSessionID)
}
