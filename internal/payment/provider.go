package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidRequest is returned when an intent request is missing required fields.
var ErrInvalidRequest = errors.New("payment: invalid intent request")

// IntentRequest describes the amount to collect for an order.
type IntentRequest struct {
	OrderID     string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Email       string
}

// Intent is the provider's handle for collecting a payment.
type Intent struct {
	Provider     string `json:"provider"`
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Status       string `json:"status"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
}

// Provider opens payment intents with an upstream processor.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

func (r IntentRequest) validate() error {
	if r.OrderID == "" || r.Currency == "" || !r.Amount.IsPositive() {
		return ErrInvalidRequest
	}
	return nil
}
