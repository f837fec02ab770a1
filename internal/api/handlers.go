package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/techaura/outreach-engine/internal/domain"
	"github.com/techaura/outreach-engine/internal/followup"
	"github.com/techaura/outreach-engine/internal/gating"
	"github.com/techaura/outreach-engine/internal/identity"
	"github.com/techaura/outreach-engine/internal/pkg/httputil"
	"github.com/techaura/outreach-engine/internal/pkg/logger"
)

// Handlers bundles the dependencies the HTTP surface needs.
type Handlers struct {
	scheduler *followup.Scheduler
	evaluator *gating.Evaluator
	resolver  *gating.Resolver
	db        *sql.DB
	redis     *redis.Client
	startedAt time.Time
}

func NewHandlers(scheduler *followup.Scheduler, evaluator *gating.Evaluator, resolver *gating.Resolver, db *sql.DB, rdb *redis.Client) *Handlers {
	return &Handlers{
		scheduler: scheduler,
		evaluator: evaluator,
		resolver:  resolver,
		db:        db,
		redis:     rdb,
		startedAt: time.Now(),
	}
}

// HealthCheck reports process and dependency health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "ok"
	deps := map[string]string{}

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			deps["postgres"] = err.Error()
			status = "degraded"
		} else {
			deps["postgres"] = "ok"
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			deps["redis"] = err.Error()
			status = "degraded"
		} else {
			deps["redis"] = "ok"
		}
	}

	httputil.OK(w, map[string]interface{}{
		"status":       status,
		"uptime":       time.Since(h.startedAt).String(),
		"dependencies": deps,
	})
}

// GetStats returns scheduler counters.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.scheduler.Stats())
}

// GetPending lists follow-ups that have not fired yet.
func (h *Handlers) GetPending(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"followups": h.scheduler.Pending(),
	})
}

type registerRequest struct {
	Phone      string            `json:"phone"`
	Stage      string            `json:"stage"`
	QuestionID string            `json:"question_id"`
	AnswerType string            `json:"answer_type"`
	FlowName   string            `json:"flow_name"`
	Context    map[string]string `json:"context"`
}

// RegisterQuestion records a blocking question and schedules its follow-up.
func (h *Handlers) RegisterQuestion(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Phone == "" || req.Stage == "" {
		httputil.BadRequest(w, "phone and stage are required")
		return
	}

	result := h.scheduler.RegisterBlockingQuestion(
		req.Phone,
		domain.Stage(req.Stage),
		req.QuestionID,
		domain.AnswerType(req.AnswerType),
		req.FlowName,
		req.Context,
	)
	httputil.OK(w, result)
}

type phoneRequest struct {
	Phone string `json:"phone"`
	Stage string `json:"stage,omitempty"`
}

// UserResponse cancels pending follow-ups for the user's current stage.
func (h *Handlers) UserResponse(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Phone == "" {
		httputil.BadRequest(w, "phone is required")
		return
	}
	cancelled := h.scheduler.OnUserResponse(req.Phone)
	httputil.OK(w, map[string]int{"cancelled": cancelled})
}

// CancelFollowUps cancels pending follow-ups, optionally scoped to a stage.
func (h *Handlers) CancelFollowUps(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Phone == "" {
		httputil.BadRequest(w, "phone is required")
		return
	}
	cancelled := h.scheduler.CancelPendingFollowUps(req.Phone, domain.Stage(req.Stage))
	httputil.OK(w, map[string]int{"cancelled": cancelled})
}

// MarkComplete ends outreach for a conversation.
func (h *Handlers) MarkComplete(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Phone == "" {
		httputil.BadRequest(w, "phone is required")
		return
	}
	h.scheduler.MarkComplete(req.Phone)
	httputil.OK(w, map[string]string{"status": "completed"})
}

type evaluateRequest struct {
	Phone          string `json:"phone,omitempty"`
	UserHash       string `json:"user_hash,omitempty"`
	Category       string `json:"category"`
	Priority       string `json:"priority,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message,omitempty"`
}

// EvaluateGate dry-runs the outbound gates for a prospective send.
func (h *Handlers) EvaluateGate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	var id identity.Identity
	switch {
	case req.Phone != "":
		id = identity.FromPhone(req.Phone)
	case req.UserHash != "":
		id = identity.FromHash(req.UserHash)
	default:
		httputil.BadRequest(w, "phone or user_hash is required")
		return
	}

	priority := domain.SendPriority(req.Priority)
	if priority == "" {
		priority = domain.PriorityNormal
	}

	session, err := h.resolver.Session(r.Context(), id.Hash)
	if err != nil {
		logger.Warn("session lookup failed during gate evaluation", "identity", id.Hash, "error", err.Error())
	}

	result := h.evaluator.Evaluate(r.Context(), gating.SendContext{
		Identity:       id,
		Category:       domain.MessageCategory(req.Category),
		Priority:       priority,
		ConversationID: req.ConversationID,
	}, session, req.Message)

	httputil.OK(w, result)
}

// CheckSuppression exposes the suppression resolver for a single user.
func (h *Handlers) CheckSuppression(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "userHash")
	if hash == "" {
		httputil.BadRequest(w, "userHash is required")
		return
	}
	result := h.resolver.IsFollowUpSuppressed(r.Context(), identity.FromHash(hash))
	httputil.OK(w, result)
}
