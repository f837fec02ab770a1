package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/techaura/outreach-engine/internal/config"
	"github.com/techaura/outreach-engine/internal/domain"
	"github.com/techaura/outreach-engine/internal/followup"
	"github.com/techaura/outreach-engine/internal/identity"
	"github.com/techaura/outreach-engine/internal/pkg/httpretry"
)

// HTTPGateway delivers messages through the WhatsApp delivery service's
// HTTP API, with retries on transient failures.
type HTTPGateway struct {
	client  httpretry.HTTPDoer
	baseURL string
	apiKey  string
}

// NewHTTPGateway creates a gateway from config.
func NewHTTPGateway(cfg config.GatewayConfig) *HTTPGateway {
	base := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	return &HTTPGateway{
		client:  httpretry.NewRetryClient(base, cfg.MaxRetries),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

type sendRequest struct {
	To             string `json:"to"`
	Body           string `json:"body"`
	Category       string `json:"category"`
	ConversationID string `json:"conversation_id,omitempty"`
	ReferenceID    string `json:"reference_id,omitempty"`
}

type sendResponse struct {
	Sent      bool     `json:"sent"`
	Reason    string   `json:"reason,omitempty"`
	BlockedBy []string `json:"blocked_by,omitempty"`
}

// Send posts the message to the delivery service. A gateway-side refusal
// (2xx with sent=false) is returned as an outcome, not an error; errors are
// reserved for transport failures.
func (g *HTTPGateway) Send(ctx context.Context, id identity.Identity, text string, delivery followup.DeliveryContext) (domain.SendOutcome, error) {
	if !id.HasPhone() {
		return domain.SendOutcome{}, fmt.Errorf("send requires a full phone identity")
	}

	payload, err := json.Marshal(sendRequest{
		To:             id.Phone,
		Body:           text,
		Category:       string(delivery.Category),
		ConversationID: delivery.ConversationID,
		ReferenceID:    delivery.FollowUpID,
	})
	if err != nil {
		return domain.SendOutcome{}, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return domain.SendOutcome{}, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.SendOutcome{}, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.SendOutcome{
			Sent:   false,
			Reason: fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, string(body)),
		}, nil
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.SendOutcome{}, fmt.Errorf("decode gateway response: %w", err)
	}
	return domain.SendOutcome{Sent: out.Sent, Reason: out.Reason, BlockedBy: out.BlockedBy}, nil
}
