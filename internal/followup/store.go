// Package followup schedules, executes, and cancels outbound follow-ups for
// conversations stalled at a blocking question.
package followup

import (
	"sync"

	"github.com/techaura/outreach-engine/internal/domain"
)

// StageInfoStore holds, per user hash, the blocking question the user is
// currently parked at. It is a passive fact table: unconditional overwrite
// on Set, no validation, no side effects beyond memory mutation.
type StageInfoStore struct {
	mu     sync.RWMutex
	stages map[string]domain.StageInfo
}

// NewStageInfoStore creates an empty store.
func NewStageInfoStore() *StageInfoStore {
	return &StageInfoStore{stages: make(map[string]domain.StageInfo)}
}

// Set records the current blocking question. The latest question always wins.
func (s *StageInfoStore) Set(userHash string, info domain.StageInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[userHash] = info
}

// Get returns the outstanding question for a user, if any.
func (s *StageInfoStore) Get(userHash string) (domain.StageInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.stages[userHash]
	return info, ok
}

// Clear forgets the user's outstanding question.
func (s *StageInfoStore) Clear(userHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stages, userHash)
}

// Len returns the number of users with an outstanding question.
func (s *StageInfoStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stages)
}
