package followup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techaura/outreach-engine/internal/domain"
)

func newTestEntry(id, userHash string, stage domain.Stage) *entry {
	return &entry{
		followUp: domain.ScheduledFollowUp{
			ID:       id,
			UserHash: userHash,
			Stage:    stage,
			Status:   domain.FollowUpPending,
		},
		timer: &fakeTimer{},
	}
}

func TestRegistry_PutReplacesSameKey(t *testing.T) {
	r := newRegistry()

	r.put(newTestEntry("a", "u1", domain.StageAskGenres))
	r.put(newTestEntry("b", "u1", domain.StageAskGenres))

	_, _, ok := r.get("a")
	assert.False(t, ok, "replaced entry should be evicted")
	_, _, ok = r.get("b")
	assert.True(t, ok)
	assert.Len(t, r.pending(), 1)
}

func TestRegistry_SetStatusOnlyFromPending(t *testing.T) {
	r := newRegistry()
	r.put(newTestEntry("a", "u1", domain.StageAskGenres))
	at := time.Now()

	require.True(t, r.setStatus("a", domain.FollowUpSent, "delivered", at))

	// A second transition loses the race.
	assert.False(t, r.setStatus("a", domain.FollowUpCancelled, "late cancel", at))

	fu, _, _ := r.get("a")
	assert.Equal(t, domain.FollowUpSent, fu.Status)
	assert.Equal(t, "delivered", fu.StatusReason)

	assert.False(t, r.setStatus("missing", domain.FollowUpSent, "", at))
}

func TestRegistry_CancelPending(t *testing.T) {
	r := newRegistry()
	r.put(newTestEntry("a", "u1", domain.StageAskGenres))
	r.put(newTestEntry("b", "u1", domain.StageAskArtists))
	r.put(newTestEntry("c", "u2", domain.StageAskGenres))
	at := time.Now()

	// Stage-scoped cancel touches only the matching entry.
	cancelled := r.cancelPending("u1", domain.StageAskGenres, domain.FollowUpCancelled, "reply", at)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "a", cancelled[0].ID)

	// All-stage cancel sweeps the rest for the user, leaving others alone.
	cancelled = r.cancelPending("u1", "", domain.FollowUpCancelled, "done", at)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "b", cancelled[0].ID)
	assert.Len(t, r.pending(), 1)

	// Nothing pending left to cancel.
	assert.Empty(t, r.cancelPending("u1", "", domain.FollowUpCancelled, "again", at))
}

func TestRegistry_NextAttempt(t *testing.T) {
	r := newRegistry()
	assert.Equal(t, 1, r.nextAttempt("u1", domain.StageAskGenres))
	assert.Equal(t, 2, r.nextAttempt("u1", domain.StageAskGenres))
	assert.Equal(t, 1, r.nextAttempt("u1", domain.StageAskArtists))
	assert.Equal(t, 1, r.nextAttempt("u2", domain.StageAskGenres))
}
