package gating

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/techaura/outreach-engine/internal/config"
	"github.com/techaura/outreach-engine/internal/domain"
	"github.com/techaura/outreach-engine/internal/identity"
	"github.com/techaura/outreach-engine/internal/pkg/logger"
)

// SendContext carries everything the gate chain needs to judge a send.
type SendContext struct {
	Identity            identity.Identity
	Category            domain.MessageCategory
	Priority            domain.SendPriority
	ConversationID      string
	BypassBusinessHours bool
}

// denial is one gate's verdict: a reason code, an explanation, and an
// optional proposed retry time.
type denial struct {
	code    domain.GateReason
	reason  string
	retryAt *time.Time
}

// Evaluator runs the ordered gate chain. Gates are evaluated as a left fold:
// every gate may append a denial and propose a retry time; the final result
// reports the first denial as primary reason, all denial codes in BlockedBy,
// and the LATEST proposed retry time (the send is eligible only once every
// blocking condition has cleared), plus jitter so blocked sends don't all
// retry at the identical instant.
type Evaluator struct {
	resolver  *Resolver
	orders    OrderOracle
	cooldowns CooldownOracle
	policy    PolicyValidator
	cfg       config.GateConfig

	// now is captured once per Evaluate call and threaded through every
	// gate so retry-time comparisons stay consistent within an evaluation.
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEvaluator creates an evaluator over the given collaborators.
func NewEvaluator(resolver *Resolver, orders OrderOracle, cooldowns CooldownOracle, policy PolicyValidator, cfg config.GateConfig) *Evaluator {
	return &Evaluator{
		resolver:  resolver,
		orders:    orders,
		cooldowns: cooldowns,
		policy:    policy,
		cfg:       cfg,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Evaluate runs every gate in fixed order and folds the verdicts into a
// single GateResult. The session may be nil (unknown user); session-based
// gates then pass. The message text is optional; content policy runs only
// when text is supplied and no prior gate denied.
func (e *Evaluator) Evaluate(ctx context.Context, sctx SendContext, session *domain.Session, message string) domain.GateResult {
	now := e.now()
	var denials []denial

	deny := func(d denial) { denials = append(denials, d) }

	// Gate 1: opt-out / blacklist / do-not-disturb / closed-with-decision.
	// Evaluated from already-loaded session data; cannot fail. No retry time.
	if d := e.optOutGate(session); d != nil {
		deny(*d)
	}

	// Gate 2: active-or-confirmed order, followup/persuasive only.
	if d := e.activeOrderGate(ctx, sctx); d != nil {
		deny(*d)
	}

	// Gate 3: shipping data already provided, followup only.
	if d := e.shippingDataGate(ctx, sctx, session); d != nil {
		deny(*d)
	}

	// Gate 4: category vs. suppression.
	if d := e.categoryGate(ctx, sctx); d != nil {
		deny(*d)
	}

	// Gate 5: cooldown window.
	if d := e.cooldownGate(ctx, sctx); d != nil {
		deny(*d)
	}

	// Gate 6: max attempts (terminal, no retry time).
	if d := e.maxAttemptsGate(session); d != nil {
		deny(*d)
	}

	// Gate 7: recency, followup only, unless priority is high.
	for _, d := range e.recencyGates(sctx, session, now) {
		deny(d)
	}

	// Gate 8: business hours.
	if d := e.businessHoursGate(sctx, now); d != nil {
		deny(*d)
	}

	// Gate 9: content policy, only when nothing denied yet and text given.
	if len(denials) == 0 && message != "" {
		if d := e.contentPolicyGate(sctx, message); d != nil {
			deny(*d)
		}
	}

	return e.fold(denials, now)
}

func (e *Evaluator) fold(denials []denial, now time.Time) domain.GateResult {
	if len(denials) == 0 {
		return domain.GateResult{Allowed: true}
	}

	result := domain.GateResult{
		Allowed:    false,
		ReasonCode: denials[0].code,
		Reason:     denials[0].reason,
	}

	var latest time.Time
	for _, d := range denials {
		result.BlockedBy = append(result.BlockedBy, d.code)
		if d.retryAt != nil && d.retryAt.After(latest) {
			latest = *d.retryAt
		}
	}

	if !latest.IsZero() {
		next := latest.Add(e.jitter())
		result.NextEligibleAt = &next
	}

	return result
}

// jitter returns a uniform random duration within the configured bounds.
func (e *Evaluator) jitter() time.Duration {
	minJ := time.Duration(e.cfg.JitterMinMinutes) * time.Minute
	maxJ := time.Duration(e.cfg.JitterMaxMinutes) * time.Minute
	if maxJ <= minJ {
		return minJ
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return minJ + time.Duration(e.rng.Int63n(int64(maxJ-minJ)))
}

func (e *Evaluator) optOutGate(session *domain.Session) *denial {
	if session == nil {
		return nil
	}
	if session.ContactStatus == domain.ContactOptOut {
		return &denial{code: domain.GateReasonOptOut, reason: "user opted out of contact"}
	}
	for _, tag := range []string{domain.TagBlacklisted, domain.TagDoNotDisturb, domain.TagClosedWithDecision} {
		if session.HasTag(tag) {
			return &denial{code: domain.GateReasonOptOut, reason: fmt.Sprintf("session tagged %s", tag)}
		}
	}
	return nil
}

func (e *Evaluator) activeOrderGate(ctx context.Context, sctx SendContext) *denial {
	if sctx.Category != domain.CategoryFollowUp && sctx.Category != domain.CategoryPersuasive {
		return nil
	}
	if !sctx.Identity.HasPhone() || e.orders == nil {
		return nil
	}
	has, err := e.orders.HasConfirmedOrActiveOrder(ctx, sctx.Identity.Phone)
	if err != nil {
		// Fail closed for this gate only: an unknown order state must not
		// let a persuasion message through to a possibly converted buyer.
		logger.Warn("active-order lookup failed, failing closed", "phone", sctx.Identity.Phone, "error", err.Error())
		return &denial{code: domain.GateReasonLookupFailed, reason: "active-order lookup failed"}
	}
	if has {
		return &denial{code: domain.GateReasonActiveOrder, reason: "user has an active or confirmed order"}
	}
	return nil
}

// shippingDataGate denies generic nudges to users already mid-checkout: an
// address anywhere in the session payloads, or a city together with a name
// (a weaker combined signal), counts as shipping data. Name alone does not.
// The exact signal mix is tunable policy, not a hard invariant.
func (e *Evaluator) shippingDataGate(ctx context.Context, sctx SendContext, session *domain.Session) *denial {
	if sctx.Category != domain.CategoryFollowUp {
		return nil
	}

	var address, city, name string
	if session != nil {
		address = firstNonEmpty(session.OrderData["address"], session.ConversationData["address"])
		city = firstNonEmpty(session.OrderData["city"], session.ConversationData["city"])
		name = firstNonEmpty(session.OrderData["customer_name"], session.ConversationData["customer_name"])
	}
	if address == "" && sctx.Identity.HasPhone() && e.resolver.customers != nil {
		if customer, err := e.resolver.customers.FindCustomerByPhone(ctx, sctx.Identity.Phone); err == nil && customer != nil {
			address = customer.Address
			city = firstNonEmpty(city, customer.City)
			name = firstNonEmpty(name, customer.Name)
		}
	}

	if address != "" || (city != "" && name != "") {
		return &denial{code: domain.GateReasonShippingProvided, reason: "shipping data already provided"}
	}
	return nil
}

// categoryGate maps the resolved suppression reason to an allowed-category
// whitelist. Order-status messages are always allowed and short-circuit the
// resolver call entirely.
func (e *Evaluator) categoryGate(ctx context.Context, sctx SendContext) *denial {
	if sctx.Category == domain.CategoryOrderStatus {
		return nil
	}

	res := e.resolver.IsFollowUpSuppressed(ctx, sctx.Identity)
	if !res.Suppressed {
		return nil
	}

	switch res.Reason {
	case domain.SuppressionOptOut:
		return &denial{code: domain.GateReasonCategoryBlocked, reason: "user opted out; no outbound categories allowed"}
	case domain.SuppressionOrderCompleted, domain.SuppressionShippingConfirmed:
		return &denial{
			code:   domain.GateReasonCategoryBlocked,
			reason: fmt.Sprintf("suppressed (%s); only order status messages allowed", res.Reason),
		}
	case domain.SuppressionStageDone:
		if sctx.Category == domain.CategoryFollowUp || sctx.Category == domain.CategoryPersuasive {
			return &denial{
				code:   domain.GateReasonCategoryBlocked,
				reason: "conversation already concluded; persuasion not allowed",
			}
		}
	}
	return nil
}

func (e *Evaluator) cooldownGate(ctx context.Context, sctx SendContext) *denial {
	if e.cooldowns == nil {
		return nil
	}
	state, err := e.cooldowns.Cooldown(ctx, sctx.Identity.Hash)
	if err != nil {
		logger.Warn("cooldown lookup failed, failing closed", "user_hash", sctx.Identity.Hash, "error", err.Error())
		return &denial{code: domain.GateReasonLookupFailed, reason: "cooldown lookup failed"}
	}
	if state.InCooldown {
		return &denial{code: domain.GateReasonCooldown, reason: "user is in cooldown window", retryAt: state.Until}
	}
	return nil
}

func (e *Evaluator) maxAttemptsGate(session *domain.Session) *denial {
	if session == nil {
		return nil
	}
	if session.FollowUpCount >= e.cfg.MaxFollowUpAttempts {
		return &denial{
			code:   domain.GateReasonMaxAttempts,
			reason: fmt.Sprintf("follow-up attempts exhausted (%d)", session.FollowUpCount),
		}
	}
	return nil
}

// recencyGates runs two independent sub-checks: minimum gap since the last
// follow-up, and minimum gap since the user's last interaction (nudging
// someone actively mid-conversation is worse than not nudging at all).
// Each proposes its own retry time at exactly lastEvent + minimumGap.
func (e *Evaluator) recencyGates(sctx SendContext, session *domain.Session, now time.Time) []denial {
	if sctx.Category != domain.CategoryFollowUp || sctx.Priority == domain.PriorityHigh {
		return nil
	}
	if session == nil {
		return nil
	}

	var out []denial
	if session.LastFollowUpAt != nil {
		eligible := session.LastFollowUpAt.Add(e.cfg.MinGapFollowUp())
		if now.Before(eligible) {
			out = append(out, denial{
				code:    domain.GateReasonRecentFollowUp,
				reason:  "too soon since last follow-up",
				retryAt: &eligible,
			})
		}
	}
	if session.LastInteractionAt != nil {
		eligible := session.LastInteractionAt.Add(e.cfg.MinGapInteraction())
		if now.Before(eligible) {
			out = append(out, denial{
				code:    domain.GateReasonRecentInteraction,
				reason:  "user interacted too recently",
				retryAt: &eligible,
			})
		}
	}
	return out
}

// businessHoursGate denies outside [start, end) hours. The proposed retry is
// the next window-open instant: same day if before the window, next day if
// after it.
func (e *Evaluator) businessHoursGate(sctx SendContext, now time.Time) *denial {
	if sctx.BypassBusinessHours {
		return nil
	}
	start, end := e.cfg.BusinessHourStart, e.cfg.BusinessHourEnd
	hour := now.Hour()
	if hour >= start && hour < end {
		return nil
	}

	opens := time.Date(now.Year(), now.Month(), now.Day(), start, 0, 0, 0, now.Location())
	if hour >= end {
		opens = opens.AddDate(0, 0, 1)
	}
	return &denial{
		code:    domain.GateReasonOutsideHours,
		reason:  fmt.Sprintf("outside business hours [%d,%d)", start, end),
		retryAt: &opens,
	}
}

func (e *Evaluator) contentPolicyGate(sctx SendContext, message string) *denial {
	res := e.policy.Validate(message, sctx.Category)
	if res.Valid {
		return nil
	}
	return &denial{
		code:   domain.GateReasonContentPolicy,
		reason: "content policy violation: " + strings.Join(res.Violations, "; "),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
