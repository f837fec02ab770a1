package followup

import (
	"sync"
	"time"

	"github.com/techaura/outreach-engine/internal/domain"
)

// timerHandle is the cancellable side of a scheduled timer. Stop reports
// whether the timer was stopped before firing; stopping an already-fired
// timer is a no-op.
type timerHandle interface {
	Stop() bool
}

// entry is one registry slot: the follow-up record, the live timer backing
// it, and the full phone identity needed at execution time (the record
// itself carries only the hash).
type entry struct {
	followUp domain.ScheduledFollowUp
	phone    string
	timer    timerHandle
}

// registry is the in-memory table of scheduled follow-ups. At most one
// pending entry exists per (user, stage); registering a new one replaces
// the old. Non-pending entries are retained for inspection until replaced.
// Attempt counters increment monotonically per (user, stage) so generated
// wording can vary across attempts.
type registry struct {
	mu       sync.Mutex
	byKey    map[string]*entry // userHash|stage -> latest entry
	byID     map[string]*entry
	attempts map[string]int // userHash|stage -> attempts so far
}

func newRegistry() *registry {
	return &registry{
		byKey:    make(map[string]*entry),
		byID:     make(map[string]*entry),
		attempts: make(map[string]int),
	}
}

func key(userHash string, stage domain.Stage) string {
	return userHash + "|" + string(stage)
}

// nextAttempt increments and returns the attempt counter for (user, stage).
func (r *registry) nextAttempt(userHash string, stage domain.Stage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[key(userHash, stage)]++
	return r.attempts[key(userHash, stage)]
}

// put registers a new entry, replacing any previous one for the same key.
func (r *registry) put(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(e.followUp.UserHash, e.followUp.Stage)
	if old, ok := r.byKey[k]; ok {
		delete(r.byID, old.followUp.ID)
	}
	r.byKey[k] = e
	r.byID[e.followUp.ID] = e
}

// get returns a copy of the follow-up with the given id plus its phone.
func (r *registry) get(id string) (domain.ScheduledFollowUp, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return domain.ScheduledFollowUp{}, "", false
	}
	return e.followUp, e.phone, true
}

// setStatus transitions a follow-up out of pending. It returns false when
// the entry is gone or no longer pending, which makes status transitions
// race-tolerant: a timer firing after cancellation sees pending=false and
// backs off.
func (r *registry) setStatus(id string, status domain.FollowUpStatus, reason string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok || e.followUp.Status != domain.FollowUpPending {
		return false
	}
	e.followUp.Status = status
	e.followUp.StatusReason = reason
	e.followUp.StatusUpdatedAt = at
	return true
}

// cancelPending cancels pending entries for a user, optionally restricted to
// one stage (empty stage means all stages). Timers are stopped best-effort;
// the status transition is what execution trusts. Returns the entries
// cancelled.
func (r *registry) cancelPending(userHash string, stage domain.Stage, status domain.FollowUpStatus, reason string, at time.Time) []domain.ScheduledFollowUp {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cancelled []domain.ScheduledFollowUp
	for _, e := range r.byKey {
		if e.followUp.UserHash != userHash || e.followUp.Status != domain.FollowUpPending {
			continue
		}
		if stage != "" && e.followUp.Stage != stage {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		e.followUp.Status = status
		e.followUp.StatusReason = reason
		e.followUp.StatusUpdatedAt = at
		cancelled = append(cancelled, e.followUp)
	}
	return cancelled
}

// pending returns copies of all pending follow-ups.
func (r *registry) pending() []domain.ScheduledFollowUp {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ScheduledFollowUp
	for _, e := range r.byKey {
		if e.followUp.Status == domain.FollowUpPending {
			out = append(out, e.followUp)
		}
	}
	return out
}

// snapshot returns copies of every tracked follow-up, pending or not.
func (r *registry) snapshot() []domain.ScheduledFollowUp {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ScheduledFollowUp, 0, len(r.byKey))
	for _, e := range r.byKey {
		out = append(out, e.followUp)
	}
	return out
}
