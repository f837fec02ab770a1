package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techaura/outreach-engine/internal/domain"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestSessionRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	session := &domain.Session{
		ID:                "s1",
		UserHash:          "abc123",
		ConversationStage: "ask_genres",
		ContactStatus:     domain.ContactActive,
		FollowUpCount:     2,
		ConversationData:  map[string]string{"customer_name": "Ana"},
	}
	require.NoError(t, store.SaveSession(ctx, session))

	got, err := store.GetSession(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ask_genres", got.ConversationStage)
	assert.Equal(t, 2, got.FollowUpCount)
	assert.Equal(t, "Ana", got.ConversationData["customer_name"])
}

func TestGetSession_Missing(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.GetSession(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetSession_CorruptData(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Set("session:broken", "{not json")

	_, err := store.GetSession(context.Background(), "broken")
	assert.Error(t, err)
}

func TestCooldown(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	state, err := store.Cooldown(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, state.InCooldown)

	require.NoError(t, store.StartCooldown(ctx, "abc123", 10*time.Minute))

	state, err = store.Cooldown(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, state.InCooldown)
	require.NotNil(t, state.Until)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), *state.Until, 5*time.Second)

	// Expiry ends the cooldown.
	mr.FastForward(11 * time.Minute)
	state, err = store.Cooldown(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, state.InCooldown)
}
