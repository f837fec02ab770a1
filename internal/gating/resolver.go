package gating

import (
	"context"

	"github.com/techaura/outreach-engine/internal/domain"
	"github.com/techaura/outreach-engine/internal/identity"
	"github.com/techaura/outreach-engine/internal/pkg/logger"
)

// Evidence sources recorded in SuppressionResult.
const (
	sourceOrderDB    = "order_db"
	sourceCustomerDB = "customer_db"
	sourceSession    = "session"
)

// Resolver reconciles suppression state from three independent sources of
// truth, strictly ordered by reliability: order status (DB) beats shipping
// fields, which beat session-level state. The first source that triggers
// wins outright; a lower-priority source never overrides a higher one.
//
// Lookup errors fail open: a broken order lookup must never silently block
// legitimate order-status messages. The category gate downstream still
// restricts what may be sent even when nothing is suppressed here.
type Resolver struct {
	orders    OrderRepository
	customers CustomerRepository
	sessions  SessionStore
}

// NewResolver creates a suppression resolver over the given collaborators.
func NewResolver(orders OrderRepository, customers CustomerRepository, sessions SessionStore) *Resolver {
	return &Resolver{orders: orders, customers: customers, sessions: sessions}
}

// Session fetches the conversation session for a user hash. Callers that
// need the session for gate evaluation go through here so they share the
// resolver's store.
func (r *Resolver) Session(ctx context.Context, userHash string) (*domain.Session, error) {
	if r.sessions == nil {
		return nil, nil
	}
	return r.sessions.GetSession(ctx, userHash)
}

// IsFollowUpSuppressed resolves the suppression state for a user. When the
// identity carries only a hash, database-backed checks are skipped and only
// session-level checks run.
func (r *Resolver) IsFollowUpSuppressed(ctx context.Context, id identity.Identity) domain.SuppressionResult {
	if id.HasPhone() {
		if res, ok := r.checkOrders(ctx, id.Phone); ok {
			return res
		}
	}

	if res, ok := r.checkSession(ctx, id.Hash); ok {
		return res
	}

	return domain.SuppressionResult{Suppressed: false, Reason: domain.NotSuppressed}
}

// checkOrders runs the two DB-backed tiers: order status, then shipping
// fields (orders and the customer record).
func (r *Resolver) checkOrders(ctx context.Context, phone string) (domain.SuppressionResult, bool) {
	if r.orders == nil {
		return domain.SuppressionResult{}, false
	}
	orders, err := r.orders.FindOrdersByPhone(ctx, phone)
	if err != nil {
		logger.Warn("suppression order lookup failed, failing open", "phone", phone, "error", err.Error())
		orders = nil
	}

	// Tier 1: any order in the confirmed family suppresses outright.
	for _, o := range orders {
		if domain.IsConfirmedOrderStatus(o.Status) {
			return domain.SuppressionResult{
				Suppressed: true,
				Reason:     domain.SuppressionOrderCompleted,
				Evidence: domain.SuppressionEvidence{
					OrderID:     o.ID,
					OrderStatus: o.Status,
					Source:      sourceOrderDB,
					ConfirmedAt: o.ConfirmedAt,
				},
			}, true
		}
	}

	// Tier 2: shipping name AND address together. Name-only or address-only
	// is too weak a signal and must not suppress.
	for _, o := range orders {
		if o.Shipping.Complete() {
			return domain.SuppressionResult{
				Suppressed: true,
				Reason:     domain.SuppressionShippingConfirmed,
				Evidence: domain.SuppressionEvidence{
					OrderID:            o.ID,
					HasShippingName:    true,
					HasShippingAddress: true,
					Source:             sourceOrderDB,
				},
			}, true
		}
	}

	if r.customers == nil {
		return domain.SuppressionResult{}, false
	}
	customer, err := r.customers.FindCustomerByPhone(ctx, phone)
	if err != nil {
		logger.Warn("suppression customer lookup failed, failing open", "phone", phone, "error", err.Error())
		customer = nil
	}
	if customer != nil && customer.Name != "" && customer.Address != "" {
		return domain.SuppressionResult{
			Suppressed: true,
			Reason:     domain.SuppressionShippingConfirmed,
			Evidence: domain.SuppressionEvidence{
				HasShippingName:    true,
				HasShippingAddress: true,
				Source:             sourceCustomerDB,
			},
		}, true
	}

	return domain.SuppressionResult{}, false
}

// checkSession runs tier 3: session-level suppression state.
func (r *Resolver) checkSession(ctx context.Context, userHash string) (domain.SuppressionResult, bool) {
	if r.sessions == nil {
		return domain.SuppressionResult{}, false
	}
	session, err := r.sessions.GetSession(ctx, userHash)
	if err != nil {
		logger.Warn("suppression session lookup failed, failing open", "user_hash", userHash, "error", err.Error())
		return domain.SuppressionResult{}, false
	}
	if session == nil {
		return domain.SuppressionResult{}, false
	}

	if session.ContactStatus == domain.ContactOptOut {
		return domain.SuppressionResult{
			Suppressed: true,
			Reason:     domain.SuppressionOptOut,
			Evidence:   domain.SuppressionEvidence{Source: sourceSession},
		}, true
	}

	if domain.IsTerminalSessionStage(session.ConversationStage) {
		return domain.SuppressionResult{
			Suppressed: true,
			Reason:     domain.SuppressionStageDone,
			Evidence: domain.SuppressionEvidence{
				ConversationStage: domain.Stage(session.ConversationStage),
				Source:            sourceSession,
			},
		}, true
	}

	if status, ok := session.OrderData["status"]; ok && domain.IsConfirmedOrderStatus(status) {
		return domain.SuppressionResult{
			Suppressed: true,
			Reason:     domain.SuppressionOrderCompleted,
			Evidence: domain.SuppressionEvidence{
				OrderID:     session.OrderData["order_id"],
				OrderStatus: status,
				Source:      sourceSession,
			},
		}, true
	}

	name := session.ConversationData["customer_name"]
	address := session.ConversationData["address"]
	if name != "" && address != "" {
		return domain.SuppressionResult{
			Suppressed: true,
			Reason:     domain.SuppressionShippingConfirmed,
			Evidence: domain.SuppressionEvidence{
				HasShippingName:    true,
				HasShippingAddress: true,
				Source:             sourceSession,
			},
		}, true
	}

	return domain.SuppressionResult{}, false
}
