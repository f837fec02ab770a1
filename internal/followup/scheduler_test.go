package followup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techaura/outreach-engine/internal/config"
	"github.com/techaura/outreach-engine/internal/domain"
	"github.com/techaura/outreach-engine/internal/gating"
	"github.com/techaura/outreach-engine/internal/identity"
)

// --- test doubles ---

type fakeTimer struct{ stopped bool }

func (t *fakeTimer) Stop() bool {
	was := t.stopped
	t.stopped = true
	return !was
}

type armedTimer struct {
	delay time.Duration
	fire  func()
	timer *fakeTimer
}

type fakeGates struct {
	mu     sync.Mutex
	result domain.GateResult
	calls  []gating.SendContext
}

func (g *fakeGates) Evaluate(_ context.Context, sctx gating.SendContext, _ *domain.Session, _ string) domain.GateResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, sctx)
	return g.result
}

type fakeSessions struct {
	session *domain.Session
	err     error
}

func (s *fakeSessions) GetSession(context.Context, string) (*domain.Session, error) {
	return s.session, s.err
}

type fakeComposer struct {
	msg   ComposedMessage
	err   error
	panic bool
}

func (c *fakeComposer) BuildMessage(_ context.Context, _ *domain.Session, _ domain.Stage, _ int, _ map[string]string) (ComposedMessage, error) {
	if c.panic {
		panic("composer exploded")
	}
	return c.msg, c.err
}

type fakeGateway struct {
	mu      sync.Mutex
	outcome domain.SendOutcome
	err     error
	sent    []string
}

func (g *fakeGateway) Send(_ context.Context, _ identity.Identity, text string, _ DeliveryContext) (domain.SendOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, text)
	return g.outcome, g.err
}

func (g *fakeGateway) sentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

type capturedEvent struct {
	event   domain.FollowUpEvent
	payload map[string]interface{}
}

type fakeEvents struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (e *fakeEvents) TrackEvent(_, _ string, event domain.FollowUpEvent, payload map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, capturedEvent{event: event, payload: payload})
}

func (e *fakeEvents) has(event domain.FollowUpEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range e.events {
		if ev.event == event {
			return true
		}
	}
	return false
}

type schedulerFixture struct {
	scheduler *Scheduler
	gates     *fakeGates
	gateway   *fakeGateway
	composer  *fakeComposer
	events    *fakeEvents
	timers    *[]*armedTimer
	now       time.Time
}

func newFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	gates := &fakeGates{result: domain.GateResult{Allowed: true}}
	gateway := &fakeGateway{outcome: domain.SendOutcome{Sent: true}}
	composer := &fakeComposer{msg: ComposedMessage{Text: "hey, still there?", TemplateID: "ask_capacity_ok_v1"}}
	events := &fakeEvents{}
	sessions := &fakeSessions{}

	cfg := config.Default().FollowUp
	s := NewScheduler(cfg, gates, sessions, composer, gateway, events)

	now := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	var timers []*armedTimer
	s.schedule = func(d time.Duration, f func()) timerHandle {
		ft := &fakeTimer{}
		timers = append(timers, &armedTimer{delay: d, fire: f, timer: ft})
		return ft
	}

	return &schedulerFixture{
		scheduler: s,
		gates:     gates,
		gateway:   gateway,
		composer:  composer,
		events:    events,
		timers:    &timers,
		now:       now,
	}
}

// fireLast runs the most recently armed timer callback synchronously.
func (f *schedulerFixture) fireLast(t *testing.T) {
	t.Helper()
	require.NotEmpty(t, *f.timers, "no timer was armed")
	(*f.timers)[len(*f.timers)-1].fire()
}

const testPhone = "+16175551234"

// --- tests ---

func TestRegisterBlockingQuestion(t *testing.T) {
	f := newFixture(t)

	result := f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskCapacityOK, "q_capacity", domain.AnswerYesNo, "sales_flow", map[string]string{"conversation_id": "conv-1"})

	require.True(t, result.Success)
	assert.NotEmpty(t, result.FollowUpID)

	// Delay must fall inside the stage's configured window.
	require.Len(t, *f.timers, 1)
	delay := (*f.timers)[0].delay
	assert.GreaterOrEqual(t, delay, 30*time.Minute)
	assert.LessOrEqual(t, delay, 45*time.Minute)
	assert.Equal(t, f.now.Add(delay), result.ScheduledAt)

	pending := f.scheduler.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.FollowUpPending, pending[0].Status)
	assert.Equal(t, 1, pending[0].AttemptNumber)

	stats := f.scheduler.Stats()
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, int64(1), stats.TotalScheduled)
	assert.True(t, f.events.has(domain.EventFollowUpScheduled))
}

func TestRegisterBlockingQuestion_TerminalStage(t *testing.T) {
	f := newFixture(t)

	result := f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageDone, "q_done", domain.AnswerFreeText, "sales_flow", nil)

	assert.False(t, result.Success)
	assert.Equal(t, "stage does not require follow-up", result.Reason)
	assert.Empty(t, *f.timers)
	assert.Empty(t, f.scheduler.Pending())

	// Stage info is still recorded even when no follow-up is armed.
	_, ok := f.scheduler.Store().Get(identity.HashPhone(testPhone))
	assert.True(t, ok)
}

func TestRegisterBlockingQuestion_ReplacesPending(t *testing.T) {
	f := newFixture(t)

	first := f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskGenres, "q_genres", domain.AnswerFreeText, "sales_flow", nil)
	second := f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskGenres, "q_genres", domain.AnswerFreeText, "sales_flow", nil)

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.NotEqual(t, first.FollowUpID, second.FollowUpID)

	// At most one pending per (user, stage); the first timer was stopped.
	pending := f.scheduler.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, second.FollowUpID, pending[0].ID)
	assert.Equal(t, 2, pending[0].AttemptNumber)
	assert.True(t, (*f.timers)[0].timer.stopped)

	// Firing the superseded timer anyway must not send.
	(*f.timers)[0].fire()
	assert.Zero(t, f.gateway.sentCount())
}

func TestOnUserResponse_CancelsPending(t *testing.T) {
	f := newFixture(t)

	f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskArtists, "q_artists", domain.AnswerFreeText, "sales_flow", nil)

	cancelled := f.scheduler.OnUserResponse(testPhone)
	assert.Equal(t, 1, cancelled)
	assert.Empty(t, f.scheduler.Pending())
	assert.True(t, f.events.has(domain.EventFollowUpCancelled))

	// The timer firing after cancellation is a no-op.
	f.fireLast(t)
	assert.Zero(t, f.gateway.sentCount())

	// A second reply has nothing left to cancel.
	assert.Equal(t, 0, f.scheduler.OnUserResponse(testPhone))
}

func TestOnUserResponse_AfterSentIsNoop(t *testing.T) {
	f := newFixture(t)

	f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskGenres, "q_genres", domain.AnswerFreeText, "sales_flow", nil)
	f.fireLast(t)
	require.Equal(t, 1, f.gateway.sentCount())

	assert.Equal(t, 0, f.scheduler.OnUserResponse(testPhone))
}

func TestExecuteFollowUp_SendsWhenGatesAllow(t *testing.T) {
	f := newFixture(t)

	f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskCapacityOK, "q_capacity", domain.AnswerYesNo, "sales_flow", map[string]string{"conversation_id": "conv-1"})
	f.fireLast(t)

	require.Equal(t, 1, f.gateway.sentCount())
	assert.Equal(t, "hey, still there?", f.gateway.sent[0])

	snap := f.scheduler.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.FollowUpSent, snap[0].Status)
	assert.Equal(t, "delivered via ask_capacity_ok_v1", snap[0].StatusReason)

	stats := f.scheduler.Stats()
	assert.Equal(t, int64(1), stats.TotalSent)
	assert.True(t, f.events.has(domain.EventFollowUpAttempted))
	assert.True(t, f.events.has(domain.EventFollowUpSent))

	// The gate chain saw a follow-up category send.
	require.Len(t, f.gates.calls, 1)
	assert.Equal(t, domain.CategoryFollowUp, f.gates.calls[0].Category)
	assert.Equal(t, domain.PriorityNormal, f.gates.calls[0].Priority)
}

func TestExecuteFollowUp_BlockedByGates(t *testing.T) {
	f := newFixture(t)
	f.gates.result = domain.GateResult{
		Allowed:    false,
		ReasonCode: domain.GateReasonActiveOrder,
		Reason:     "user has an active or confirmed order",
	}

	f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskGenres, "q_genres", domain.AnswerFreeText, "sales_flow", nil)
	f.fireLast(t)

	assert.Zero(t, f.gateway.sentCount())
	snap := f.scheduler.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.FollowUpBlocked, snap[0].Status)
	assert.Equal(t, int64(1), f.scheduler.Stats().TotalBlocked)
	assert.True(t, f.events.has(domain.EventFollowUpBlocked))

	// Blocked is terminal: no replacement timer was armed.
	assert.Len(t, *f.timers, 1)
}

func TestExecuteFollowUp_StaleStage(t *testing.T) {
	f := newFixture(t)

	f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskGenres, "q_genres", domain.AnswerFreeText, "sales_flow", nil)

	// The conversation moved on without the race-breaker firing.
	hash := identity.HashPhone(testPhone)
	f.scheduler.Store().Set(hash, domain.StageInfo{Stage: domain.StageAskAddress, QuestionID: "q_address"})

	f.fireLast(t)

	assert.Zero(t, f.gateway.sentCount())
	snap := f.scheduler.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.FollowUpCancelled, snap[0].Status)
	assert.Equal(t, "user responded or stage changed", snap[0].StatusReason)
}

func TestExecuteFollowUp_ComposerError(t *testing.T) {
	f := newFixture(t)
	f.composer.err = errors.New("template busted")

	f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskGenres, "q_genres", domain.AnswerFreeText, "sales_flow", nil)
	f.fireLast(t)

	assert.Zero(t, f.gateway.sentCount())
	snap := f.scheduler.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.FollowUpBlocked, snap[0].Status)
	assert.Contains(t, snap[0].StatusReason, "message generation failed")
}

func TestExecuteFollowUp_GatewayRefuses(t *testing.T) {
	f := newFixture(t)
	f.gateway.outcome = domain.SendOutcome{Sent: false, Reason: "gateway returned 429"}

	f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskGenres, "q_genres", domain.AnswerFreeText, "sales_flow", nil)
	f.fireLast(t)

	snap := f.scheduler.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.FollowUpBlocked, snap[0].Status)
	assert.Equal(t, "gateway returned 429", snap[0].StatusReason)
}

func TestExecuteFollowUp_PanicIsContained(t *testing.T) {
	f := newFixture(t)
	f.composer.panic = true

	f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskGenres, "q_genres", domain.AnswerFreeText, "sales_flow", nil)

	assert.NotPanics(t, func() { f.fireLast(t) })

	snap := f.scheduler.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.FollowUpBlocked, snap[0].Status)
	assert.Equal(t, "internal error during execution", snap[0].StatusReason)
}

func TestMarkComplete(t *testing.T) {
	f := newFixture(t)

	f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskGenres, "q_genres", domain.AnswerFreeText, "sales_flow", nil)
	f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskArtists, "q_artists", domain.AnswerFreeText, "sales_flow", nil)
	require.Len(t, f.scheduler.Pending(), 2)

	f.scheduler.MarkComplete(testPhone)

	assert.Empty(t, f.scheduler.Pending())
	assert.Equal(t, int64(2), f.scheduler.Stats().TotalCancelled)
	assert.Equal(t, 0, f.scheduler.OnUserResponse(testPhone))
}

func TestCancelPendingFollowUps_StageScoped(t *testing.T) {
	f := newFixture(t)

	f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskGenres, "q_genres", domain.AnswerFreeText, "sales_flow", nil)
	f.scheduler.RegisterBlockingQuestion(testPhone, domain.StageAskArtists, "q_artists", domain.AnswerFreeText, "sales_flow", nil)

	cancelled := f.scheduler.CancelPendingFollowUps(testPhone, domain.StageAskGenres)
	assert.Equal(t, 1, cancelled)

	pending := f.scheduler.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.StageAskArtists, pending[0].Stage)
}

func TestRandomDelay_Bounds(t *testing.T) {
	f := newFixture(t)
	window := config.DelayWindow{MinMinutes: 30, MaxMinutes: 45}

	for i := 0; i < 200; i++ {
		d := f.scheduler.randomDelay(window)
		assert.GreaterOrEqual(t, d, 30*time.Minute)
		assert.LessOrEqual(t, d, 45*time.Minute)
	}
}

func TestRandomDelay_DegenerateWindow(t *testing.T) {
	f := newFixture(t)
	d := f.scheduler.randomDelay(config.DelayWindow{MinMinutes: 10, MaxMinutes: 10})
	assert.Equal(t, 10*time.Minute, d)
}
