package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/bookwise-api/internal/resilience"
)

// Gateway creates intents through a processor's REST API.
type Gateway struct {
	BaseURL string
	APIKey  string
	Client  resilience.HTTPClient
}

// NewGateway builds a Gateway whose client retries 5xx responses and trips a
// breaker after repeated failures.
func NewGateway(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	breaker := resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("payment_gateway").WithLogger(logger)
	return &Gateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			MaxAttempts: 3,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     timeout,
		},
	}
}

func (*Gateway) Name() string { return "gateway" }

type gatewayRequest struct {
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	Email       string            `json:"receipt_email,omitempty"`
	Metadata    map[string]string `json:"metadata"`
}

type gatewayResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	NextAction   struct {
		RedirectURL string `json:"redirect_url"`
	} `json:"next_action"`
}

// CreateIntent posts the intent with the order id as idempotency key.
func (g *Gateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if err := req.validate(); err != nil {
		return Intent{}, err
	}
	body, err := json.Marshal(gatewayRequest{
		Amount:      req.Amount.String(),
		Currency:    strings.ToLower(req.Currency),
		Description: req.Description,
		Email:       req.Email,
		Metadata:    map[string]string{"order_id": req.OrderID},
	})
	if err != nil {
		return Intent{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/payment_intents", bytes.NewReader(body))
	if err != nil {
		return Intent{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.APIKey)
	httpReq.Header.Set("Idempotency-Key", "order-"+req.OrderID)

	resp, err := g.Client.Do(ctx, httpReq)
	if err != nil {
		return Intent{}, fmt.Errorf("payment gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Intent{}, fmt.Errorf("payment gateway: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Intent{}, fmt.Errorf("payment gateway: decode response: %w", err)
	}
	return Intent{
		Provider:     g.Name(),
		ID:           out.ID,
		ClientSecret: out.ClientSecret,
		Status:       out.Status,
		RedirectURL:  out.NextAction.RedirectURL,
	}, nil
}
