package domain

import (
	"strings"
	"time"
)

// SuppressionReason explains why outbound contact is restricted for a user.
type SuppressionReason string

const (
	SuppressionOrderCompleted    SuppressionReason = "ORDER_COMPLETED"
	SuppressionShippingConfirmed SuppressionReason = "SHIPPING_CONFIRMED"
	SuppressionStageDone         SuppressionReason = "STAGE_DONE"
	SuppressionOptOut            SuppressionReason = "OPT_OUT"
	NotSuppressed                SuppressionReason = "NOT_SUPPRESSED"
)

// SuppressionEvidence records which source of truth triggered suppression.
type SuppressionEvidence struct {
	OrderID            string     `json:"order_id,omitempty"`
	OrderStatus        string     `json:"order_status,omitempty"`
	HasShippingName    bool       `json:"has_shipping_name,omitempty"`
	HasShippingAddress bool       `json:"has_shipping_address,omitempty"`
	ConversationStage  Stage      `json:"conversation_stage,omitempty"`
	Source             string     `json:"source"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
}

// SuppressionResult is computed on demand and never persisted.
type SuppressionResult struct {
	Suppressed bool                `json:"suppressed"`
	Reason     SuppressionReason   `json:"reason"`
	Evidence   SuppressionEvidence `json:"evidence"`
}

// confirmedOrderStatuses is the family of order statuses that mean the sale
// progressed past persuasion. Matched case-insensitively.
var confirmedOrderStatuses = map[string]bool{
	"confirmed":  true,
	"processing": true,
	"ready":      true,
	"shipped":    true,
	"delivered":  true,
	"completed":  true,
	"paid":       true,
}

// IsConfirmedOrderStatus reports whether a raw order status belongs to the
// confirmed family.
func IsConfirmedOrderStatus(status string) bool {
	return confirmedOrderStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// terminalSessionStages is the family of session conversation stages that
// suppress persuasion outright. Matched case-insensitively.
var terminalSessionStages = map[string]bool{
	"done":            true,
	"payment":         true,
	"order_confirmed": true,
	"converted":       true,
}

// IsTerminalSessionStage reports whether a raw session stage value belongs
// to the terminal family.
func IsTerminalSessionStage(stage string) bool {
	return terminalSessionStages[strings.ToLower(strings.TrimSpace(stage))]
}
