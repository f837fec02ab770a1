package domain

import "time"

// FollowUpStatus enumerates the lifecycle states of a scheduled follow-up.
type FollowUpStatus string

const (
	FollowUpPending     FollowUpStatus = "pending"
	FollowUpSent        FollowUpStatus = "sent"
	FollowUpCancelled   FollowUpStatus = "cancelled"
	FollowUpBlocked     FollowUpStatus = "blocked"
	FollowUpRescheduled FollowUpStatus = "rescheduled"
)

// StageInfo records the blocking question a user is currently parked at,
// plus the context needed to regenerate a follow-up message later.
// Presence of a StageInfo entry means a question is outstanding; absence
// means no follow-up should be considered.
type StageInfo struct {
	Stage        Stage             `json:"stage"`
	QuestionID   string            `json:"question_id"`
	AnswerType   AnswerType        `json:"answer_type"`
	FlowName     string            `json:"flow_name"`
	EnteredAt    time.Time         `json:"entered_at"`
	Context      map[string]string `json:"context,omitempty"`
}

// ScheduledFollowUp is one scheduled outbound nudge. At most one pending
// entry exists per (user, stage) at any time.
type ScheduledFollowUp struct {
	ID              string         `json:"id" db:"id"`
	UserHash        string         `json:"user_hash" db:"user_hash"`
	Stage           Stage          `json:"stage" db:"stage"`
	QuestionID      string         `json:"question_id" db:"question_id"`
	ScheduledAt     time.Time      `json:"scheduled_at" db:"scheduled_at"`
	Reason          string         `json:"reason" db:"reason"`
	AttemptNumber   int            `json:"attempt_number" db:"attempt_number"`
	Status          FollowUpStatus `json:"status" db:"status"`
	StatusReason    string         `json:"status_reason" db:"status_reason"`
	StatusUpdatedAt time.Time      `json:"status_updated_at" db:"status_updated_at"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// ScheduleResult is returned by RegisterBlockingQuestion.
type ScheduleResult struct {
	Success     bool      `json:"success"`
	FollowUpID  string    `json:"follow_up_id,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// FollowUpEvent names an audit event emitted by the scheduler.
type FollowUpEvent string

const (
	EventFollowUpScheduled FollowUpEvent = "followup_scheduled"
	EventFollowUpAttempted FollowUpEvent = "followup_attempted"
	EventFollowUpSent      FollowUpEvent = "followup_sent"
	EventFollowUpBlocked   FollowUpEvent = "followup_blocked"
	EventFollowUpCancelled FollowUpEvent = "followup_cancelled"
)
