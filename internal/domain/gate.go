package domain

import "time"

// MessageCategory classifies an outbound message for gating purposes.
type MessageCategory string

const (
	CategoryFollowUp    MessageCategory = "followup"
	CategoryPersuasive  MessageCategory = "persuasive"
	CategoryOrderStatus MessageCategory = "order_status"
	CategoryGeneral     MessageCategory = "general"
)

// SendPriority orders outbound messages; high priority bypasses recency.
type SendPriority string

const (
	PriorityNormal SendPriority = "normal"
	PriorityHigh   SendPriority = "high"
)

// GateReason identifies which gate denied an outbound send.
type GateReason string

const (
	GateReasonOptOut            GateReason = "OPT_OUT"
	GateReasonActiveOrder       GateReason = "ACTIVE_ORDER"
	GateReasonShippingProvided  GateReason = "SHIPPING_DATA_PROVIDED"
	GateReasonCategoryBlocked   GateReason = "CATEGORY_BLOCKED"
	GateReasonCooldown          GateReason = "COOLDOWN"
	GateReasonMaxAttempts       GateReason = "MAX_ATTEMPTS"
	GateReasonRecentFollowUp    GateReason = "RECENT_FOLLOWUP"
	GateReasonRecentInteraction GateReason = "RECENT_INTERACTION"
	GateReasonOutsideHours      GateReason = "OUTSIDE_BUSINESS_HOURS"
	GateReasonContentPolicy     GateReason = "CONTENT_POLICY"
	GateReasonLookupFailed      GateReason = "LOOKUP_FAILED"
)

// GateResult is the single allow/deny decision produced by the gate chain.
// When several gates deny, BlockedBy collects every reason in evaluation
// order and Reason explains the first one. NextEligibleAt, when set, is the
// latest retry time proposed by any gate, plus jitter.
type GateResult struct {
	Allowed        bool         `json:"allowed"`
	ReasonCode     GateReason   `json:"reason_code,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	BlockedBy      []GateReason `json:"blocked_by,omitempty"`
	NextEligibleAt *time.Time   `json:"next_eligible_at,omitempty"`
}

// SendOutcome is what the delivery gateway reports back.
type SendOutcome struct {
	Sent      bool     `json:"sent"`
	Reason    string   `json:"reason,omitempty"`
	BlockedBy []string `json:"blocked_by,omitempty"`
}
