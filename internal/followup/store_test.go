package followup

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techaura/outreach-engine/internal/domain"
)

func TestStageInfoStore(t *testing.T) {
	store := NewStageInfoStore()

	_, ok := store.Get("u1")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())

	store.Set("u1", domain.StageInfo{Stage: domain.StageAskGenres, QuestionID: "q1"})
	info, ok := store.Get("u1")
	require.True(t, ok)
	assert.Equal(t, domain.StageAskGenres, info.Stage)

	// Latest question wins.
	store.Set("u1", domain.StageInfo{Stage: domain.StageAskAddress, QuestionID: "q2"})
	info, _ = store.Get("u1")
	assert.Equal(t, domain.StageAskAddress, info.Stage)
	assert.Equal(t, 1, store.Len())

	store.Clear("u1")
	_, ok = store.Get("u1")
	assert.False(t, ok)

	// Clearing an absent user is a no-op.
	store.Clear("nobody")
}

func TestStageInfoStore_Concurrent(t *testing.T) {
	store := NewStageInfoStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Set("u1", domain.StageInfo{Stage: domain.StageAskGenres})
			store.Get("u1")
			store.Len()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, store.Len())
}
