// Package policy validates outbound message text against content rules
// before it reaches the delivery gateway.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/techaura/outreach-engine/internal/domain"
	"github.com/techaura/outreach-engine/internal/gating"
)

// bannedPhrases are pressure-tactic phrasings never allowed in outbound
// nudges, matched case-insensitively.
var bannedPhrases = []string{
	"last chance",
	"final warning",
	"act now or",
	"limited time only",
	"urgent: ",
}

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

// Validator enforces content policy: banned phrasing, length limits, and
// link rules for nudge categories.
type Validator struct {
	maxLength      int
	allowedDomains []string
}

// NewValidator creates a validator. maxLength <= 0 disables the length rule.
func NewValidator(maxLength int, allowedDomains ...string) *Validator {
	return &Validator{maxLength: maxLength, allowedDomains: allowedDomains}
}

// Validate checks message text for the given category. Follow-up and
// persuasive messages may only link to allowed domains; order-status
// messages may link anywhere (tracking links come from carriers).
func (v *Validator) Validate(text string, category domain.MessageCategory) gating.PolicyResult {
	var violations []string

	lower := strings.ToLower(text)
	for _, phrase := range bannedPhrases {
		if strings.Contains(lower, phrase) {
			violations = append(violations, fmt.Sprintf("banned phrase %q", phrase))
		}
	}

	if v.maxLength > 0 && len([]rune(text)) > v.maxLength {
		violations = append(violations, fmt.Sprintf("message exceeds %d characters", v.maxLength))
	}

	if category == domain.CategoryFollowUp || category == domain.CategoryPersuasive {
		for _, link := range urlRegex.FindAllString(text, -1) {
			if !v.linkAllowed(link) {
				violations = append(violations, fmt.Sprintf("link to unapproved domain: %s", link))
			}
		}
	}

	return gating.PolicyResult{Valid: len(violations) == 0, Violations: violations}
}

func (v *Validator) linkAllowed(link string) bool {
	for _, d := range v.allowedDomains {
		if strings.Contains(link, d) {
			return true
		}
	}
	return false
}
