package followup

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/techaura/outreach-engine/internal/config"
	"github.com/techaura/outreach-engine/internal/domain"
	"github.com/techaura/outreach-engine/internal/gating"
	"github.com/techaura/outreach-engine/internal/identity"
	"github.com/techaura/outreach-engine/internal/pkg/logger"
)

// ComposedMessage is the generated follow-up text plus the template that
// produced it ("fallback:<stage>" when generation fell back).
type ComposedMessage struct {
	Text       string
	TemplateID string
}

// MessageComposer generates the stage-specific follow-up wording.
type MessageComposer interface {
	BuildMessage(ctx context.Context, session *domain.Session, stage domain.Stage, attempt int, tplCtx map[string]string) (ComposedMessage, error)
}

// DeliveryContext travels with a send to the delivery gateway.
type DeliveryContext struct {
	ConversationID string
	Category       domain.MessageCategory
	FollowUpID     string
}

// SendGateway dispatches an outbound message to the user.
type SendGateway interface {
	Send(ctx context.Context, id identity.Identity, text string, delivery DeliveryContext) (domain.SendOutcome, error)
}

// EventTracker records audit events. Implementations must be fire-and-forget;
// failures never propagate to the scheduler.
type EventTracker interface {
	TrackEvent(conversationID, userHash string, event domain.FollowUpEvent, payload map[string]interface{})
}

// GateEvaluator is the outbound gate chain as the scheduler sees it.
type GateEvaluator interface {
	Evaluate(ctx context.Context, sctx gating.SendContext, session *domain.Session, message string) domain.GateResult
}

// SchedulerStats is a point-in-time snapshot of scheduler activity.
type SchedulerStats struct {
	Pending        int   `json:"pending"`
	OpenQuestions  int   `json:"open_questions"`
	TotalScheduled int64 `json:"total_scheduled"`
	TotalSent      int64 `json:"total_sent"`
	TotalBlocked   int64 `json:"total_blocked"`
	TotalCancelled int64 `json:"total_cancelled"`
}

// Scheduler orchestrates the follow-up lifecycle: a flow registers a
// blocking question, a randomized timer fires later, the gate chain decides
// whether the nudge may go out, and a user reply at any point cancels the
// pending timer. Construct one per process and pass it by reference; all
// internal tables are mutex-guarded.
type Scheduler struct {
	cfg      config.FollowUpConfig
	gates    GateEvaluator
	sessions gating.SessionStore
	composer MessageComposer
	gateway  SendGateway
	events   EventTracker

	store    *StageInfoStore
	registry *registry

	totalScheduled int64
	totalSent      int64
	totalBlocked   int64
	totalCancelled int64

	// Injection points for tests.
	now         func() time.Time
	schedule    func(d time.Duration, f func()) timerHandle
	execTimeout time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewScheduler creates a scheduler over the given collaborators.
func NewScheduler(cfg config.FollowUpConfig, gates GateEvaluator, sessions gating.SessionStore, composer MessageComposer, gateway SendGateway, events EventTracker) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		gates:    gates,
		sessions: sessions,
		composer: composer,
		gateway:  gateway,
		events:   events,
		store:    NewStageInfoStore(),
		registry: newRegistry(),
		now:      time.Now,
		schedule: func(d time.Duration, f func()) timerHandle {
			return time.AfterFunc(d, f)
		},
		execTimeout: 30 * time.Second,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Store exposes the stage-info fact table to the host engine.
func (s *Scheduler) Store() *StageInfoStore { return s.store }

// RegisterBlockingQuestion records that a flow just asked a blocking
// question and arms a follow-up timer with a fresh randomized delay inside
// the stage's configured window. A prior pending follow-up for the same
// (user, stage) is marked rescheduled first, so at most one pending entry
// exists per key. Terminal stages return success=false and schedule nothing.
func (s *Scheduler) RegisterBlockingQuestion(phone string, stage domain.Stage, questionID string, answerType domain.AnswerType, flowName string, qctx map[string]string) domain.ScheduleResult {
	id := identity.FromPhone(phone)
	now := s.now()

	s.store.Set(id.Hash, domain.StageInfo{
		Stage:      stage,
		QuestionID: questionID,
		AnswerType: answerType,
		FlowName:   flowName,
		EnteredAt:  now,
		Context:    qctx,
	})

	window := s.cfg.Window(stage)
	if window.Zero() {
		return domain.ScheduleResult{Success: false, Reason: "stage does not require follow-up"}
	}

	for _, old := range s.registry.cancelPending(id.Hash, stage, domain.FollowUpRescheduled, "superseded by new question", now) {
		atomic.AddInt64(&s.totalCancelled, 1)
		s.track(qctx["conversation_id"], id.Hash, domain.EventFollowUpCancelled, map[string]interface{}{
			"follow_up_id": old.ID,
			"status":       string(domain.FollowUpRescheduled),
		})
	}

	attempt := s.registry.nextAttempt(id.Hash, stage)
	delay := s.randomDelay(window)
	scheduledAt := now.Add(delay)

	fu := domain.ScheduledFollowUp{
		ID:              uuid.New().String(),
		UserHash:        id.Hash,
		Stage:           stage,
		QuestionID:      questionID,
		ScheduledAt:     scheduledAt,
		Reason:          fmt.Sprintf("no reply to %s", questionID),
		AttemptNumber:   attempt,
		Status:          domain.FollowUpPending,
		StatusUpdatedAt: now,
		CreatedAt:       now,
	}

	e := &entry{followUp: fu, phone: id.Phone}
	e.timer = s.schedule(delay, func() { s.executeFollowUp(fu.ID) })
	s.registry.put(e)

	atomic.AddInt64(&s.totalScheduled, 1)
	s.track(qctx["conversation_id"], id.Hash, domain.EventFollowUpScheduled, map[string]interface{}{
		"follow_up_id": fu.ID,
		"stage":        string(stage),
		"attempt":      attempt,
		"scheduled_at": scheduledAt.UTC().Format(time.RFC3339),
	})

	logger.Info("follow-up scheduled",
		"user_hash", id.Hash, "stage", string(stage), "attempt", attempt,
		"delay", delay.String())

	return domain.ScheduleResult{Success: true, FollowUpID: fu.ID, ScheduledAt: scheduledAt}
}

// OnUserResponse is the race-breaker: a reply cancels any pending follow-up
// for the user's current stage and clears the stage info. A reply after the
// follow-up already went out is a no-op. Returns the number cancelled.
func (s *Scheduler) OnUserResponse(phone string) int {
	id := identity.FromPhone(phone)
	info, ok := s.store.Get(id.Hash)
	if !ok {
		return 0
	}
	n := s.cancel(id.Hash, info.Stage, "User responded")
	s.store.Clear(id.Hash)
	return n
}

// CancelPendingFollowUps cancels pending follow-ups for a user, optionally
// restricted to one stage (empty stage means all). Idempotent: cancelling
// when nothing is pending returns 0.
func (s *Scheduler) CancelPendingFollowUps(phone string, stage domain.Stage) int {
	return s.cancel(identity.HashPhone(phone), stage, "User responded")
}

// MarkComplete cancels everything for the user and clears the stage info.
// Used when the conversation reaches a terminal stage from outside the
// blocking-question mechanism, e.g. the order completed.
func (s *Scheduler) MarkComplete(phone string) {
	hash := identity.HashPhone(phone)
	s.cancel(hash, "", "Conversation complete")
	s.store.Clear(hash)
}

func (s *Scheduler) cancel(userHash string, stage domain.Stage, reason string) int {
	cancelled := s.registry.cancelPending(userHash, stage, domain.FollowUpCancelled, reason, s.now())
	for _, fu := range cancelled {
		atomic.AddInt64(&s.totalCancelled, 1)
		s.track("", userHash, domain.EventFollowUpCancelled, map[string]interface{}{
			"follow_up_id": fu.ID,
			"reason":       reason,
		})
	}
	return len(cancelled)
}

// Pending returns all currently pending follow-ups.
func (s *Scheduler) Pending() []domain.ScheduledFollowUp { return s.registry.pending() }

// Snapshot returns every tracked follow-up, pending or not.
func (s *Scheduler) Snapshot() []domain.ScheduledFollowUp { return s.registry.snapshot() }

// Stats returns scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Pending:        len(s.registry.pending()),
		OpenQuestions:  s.store.Len(),
		TotalScheduled: atomic.LoadInt64(&s.totalScheduled),
		TotalSent:      atomic.LoadInt64(&s.totalSent),
		TotalBlocked:   atomic.LoadInt64(&s.totalBlocked),
		TotalCancelled: atomic.LoadInt64(&s.totalCancelled),
	}
}

// executeFollowUp runs when a timer fires. It re-validates stage freshness
// before doing anything: cancellation is best-effort, so a reply processed
// concurrently with the timer firing is only caught here. Any failure marks
// the follow-up blocked; nothing may leave it pending with a dead timer, and
// nothing may crash the host.
func (s *Scheduler) executeFollowUp(id string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("follow-up execution panicked", "follow_up_id", id, "panic", fmt.Sprintf("%v", r))
			if s.registry.setStatus(id, domain.FollowUpBlocked, "internal error during execution", s.now()) {
				atomic.AddInt64(&s.totalBlocked, 1)
			}
		}
	}()

	fu, phone, ok := s.registry.get(id)
	if !ok || fu.Status != domain.FollowUpPending {
		return
	}

	info, ok := s.store.Get(fu.UserHash)
	if !ok || info.Stage != fu.Stage {
		if s.registry.setStatus(id, domain.FollowUpCancelled, "user responded or stage changed", s.now()) {
			atomic.AddInt64(&s.totalCancelled, 1)
			s.track(info.Context["conversation_id"], fu.UserHash, domain.EventFollowUpCancelled, map[string]interface{}{
				"follow_up_id": id,
				"reason":       "user responded or stage changed",
			})
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.execTimeout)
	defer cancel()

	var uid identity.Identity
	if phone != "" {
		uid = identity.FromPhone(phone)
	} else {
		uid = identity.FromHash(fu.UserHash)
	}

	session, err := s.sessions.GetSession(ctx, fu.UserHash)
	if err != nil {
		logger.Warn("session lookup failed during follow-up execution", "user_hash", fu.UserHash, "error", err.Error())
		session = nil
	}

	conversationID := info.Context["conversation_id"]
	s.track(conversationID, fu.UserHash, domain.EventFollowUpAttempted, map[string]interface{}{
		"follow_up_id": id,
		"stage":        string(fu.Stage),
		"attempt":      fu.AttemptNumber,
	})

	result := s.gates.Evaluate(ctx, gating.SendContext{
		Identity:       uid,
		Category:       domain.CategoryFollowUp,
		Priority:       domain.PriorityNormal,
		ConversationID: conversationID,
	}, session, "")

	if !result.Allowed {
		// Blocking is terminal for this attempt. No retry is scheduled here;
		// unbounded retry storms are worse than a missed nudge.
		s.block(id, conversationID, fu.UserHash, result.Reason)
		return
	}

	msg, err := s.composer.BuildMessage(ctx, session, fu.Stage, fu.AttemptNumber, info.Context)
	if err != nil {
		s.block(id, conversationID, fu.UserHash, "message generation failed: "+err.Error())
		return
	}

	outcome, err := s.gateway.Send(ctx, uid, msg.Text, DeliveryContext{
		ConversationID: conversationID,
		Category:       domain.CategoryFollowUp,
		FollowUpID:     id,
	})
	if err != nil {
		s.block(id, conversationID, fu.UserHash, "send failed: "+err.Error())
		return
	}
	if !outcome.Sent {
		reason := outcome.Reason
		if reason == "" {
			reason = "gateway refused send"
		}
		s.block(id, conversationID, fu.UserHash, reason)
		return
	}

	if s.registry.setStatus(id, domain.FollowUpSent, "delivered via "+msg.TemplateID, s.now()) {
		atomic.AddInt64(&s.totalSent, 1)
		s.track(conversationID, fu.UserHash, domain.EventFollowUpSent, map[string]interface{}{
			"follow_up_id": id,
			"stage":        string(fu.Stage),
			"attempt":      fu.AttemptNumber,
			"template_id":  msg.TemplateID,
		})
		logger.Info("follow-up sent", "user_hash", fu.UserHash, "stage", string(fu.Stage), "attempt", fu.AttemptNumber)
	}
}

func (s *Scheduler) block(id, conversationID, userHash, reason string) {
	if s.registry.setStatus(id, domain.FollowUpBlocked, reason, s.now()) {
		atomic.AddInt64(&s.totalBlocked, 1)
		s.track(conversationID, userHash, domain.EventFollowUpBlocked, map[string]interface{}{
			"follow_up_id": id,
			"reason":       reason,
		})
		logger.Info("follow-up blocked", "follow_up_id", id, "reason", reason)
	}
}

// track forwards an audit event, swallowing any panic from the sink.
func (s *Scheduler) track(conversationID, userHash string, event domain.FollowUpEvent, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("event sink panicked", "event", string(event))
		}
	}()
	s.events.TrackEvent(conversationID, userHash, event, payload)
}

// randomDelay draws a uniform delay within the window at second granularity.
// Delays are never negative; re-registration always restarts the clock with
// fresh randomization so users don't converge on identical wall-clock times.
func (s *Scheduler) randomDelay(w config.DelayWindow) time.Duration {
	minSec := int64(w.MinMinutes) * 60
	maxSec := int64(w.MaxMinutes) * 60
	if maxSec <= minSec {
		return time.Duration(minSec) * time.Second
	}
	s.mu.Lock()
	offset := s.rng.Int63n(maxSec - minSec + 1)
	s.mu.Unlock()
	return time.Duration(minSec+offset) * time.Second
}
