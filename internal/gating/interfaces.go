// Package gating decides whether an outbound message may be sent to a user.
// It layers a suppression resolver (which categories of message are allowed
// at all) under an ordered gate chain (whether this particular send passes).
package gating

import (
	"context"

	"github.com/techaura/outreach-engine/internal/domain"
)

// OrderRepository looks up orders by full phone identity.
type OrderRepository interface {
	FindOrdersByPhone(ctx context.Context, phone string) ([]domain.Order, error)
}

// CustomerRepository looks up customer records by full phone identity.
type CustomerRepository interface {
	FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
}

// SessionStore fetches the per-conversation session by user hash.
// A missing session is reported as (nil, nil).
type SessionStore interface {
	GetSession(ctx context.Context, userHash string) (*domain.Session, error)
}

// OrderOracle answers the active-order question without exposing rows.
type OrderOracle interface {
	HasConfirmedOrActiveOrder(ctx context.Context, phone string) (bool, error)
}

// CooldownOracle reports an externally tracked cooldown window.
type CooldownOracle interface {
	Cooldown(ctx context.Context, userHash string) (domain.CooldownState, error)
}

// PolicyResult is the outcome of content-policy validation.
type PolicyResult struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

// PolicyValidator validates outbound message text against content policy.
type PolicyValidator interface {
	Validate(text string, category domain.MessageCategory) PolicyResult
}
