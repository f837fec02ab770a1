package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/techaura/outreach-engine/internal/domain"
	"github.com/techaura/outreach-engine/internal/pkg/logger"
)

// EventSink writes scheduler audit events to the outreach_events table.
// It is fire-and-forget: the insert runs on its own goroutine with its own
// timeout, and failures are logged, never propagated.
type EventSink struct{ db *sql.DB }

// NewEventSink creates a Postgres-backed audit sink.
func NewEventSink(db *sql.DB) *EventSink { return &EventSink{db: db} }

// TrackEvent records one audit event asynchronously.
func (s *EventSink) TrackEvent(conversationID, userHash string, event domain.FollowUpEvent, payload map[string]interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		data, err := json.Marshal(payload)
		if err != nil {
			logger.Warn("event payload marshal failed", "event", string(event), "error", err.Error())
			data = []byte("{}")
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO outreach_events (id, conversation_id, user_hash, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
		`, uuid.New().String(), nullable(conversationID), userHash, string(event), string(data))
		if err != nil {
			logger.Warn("event insert failed", "event", string(event), "error", err.Error())
		}
	}()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
