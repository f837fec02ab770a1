package domain

import "time"

// ContactStatus is the user's standing contact preference on the session.
type ContactStatus string

const (
	ContactActive ContactStatus = "active"
	ContactOptOut ContactStatus = "opt_out"
)

// Session tags that block outbound contact outright.
const (
	TagBlacklisted        = "blacklisted"
	TagDoNotDisturb       = "do_not_disturb"
	TagClosedWithDecision = "closed_with_decision"
)

// Session is the per-conversation state the host engine keeps for a user.
// The gate chain and the suppression resolver read it but never mutate it.
type Session struct {
	ID                string            `json:"id"`
	UserHash          string            `json:"user_hash"`
	ConversationStage string            `json:"conversation_stage"`
	ContactStatus     ContactStatus     `json:"contact_status"`
	Tags              []string          `json:"tags,omitempty"`
	FollowUpCount     int               `json:"follow_up_count"`
	LastFollowUpAt    *time.Time        `json:"last_follow_up_at,omitempty"`
	LastInteractionAt *time.Time        `json:"last_interaction_at,omitempty"`
	OrderData         map[string]string `json:"order_data,omitempty"`
	ConversationData  map[string]string `json:"conversation_data,omitempty"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// HasTag reports whether the session carries the given tag.
func (s *Session) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CooldownState is the answer from the cooldown oracle.
type CooldownState struct {
	InCooldown bool       `json:"in_cooldown"`
	Until      *time.Time `json:"until,omitempty"`
}
