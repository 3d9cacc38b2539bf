package payment

import (
	"context"
	"strings"

	"github.com/noah-isme/bookwise-api/internal/common"
)

// Simulated issues deterministic intents without contacting a processor. It is
// the default provider for local and test environments.
type Simulated struct {
	BaseURL string
}

func (Simulated) Name() string { return "simulated" }

// CreateIntent derives the intent id from the order so retries are idempotent.
func (s Simulated) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	if err := req.validate(); err != nil {
		return Intent{}, err
	}
	id := "pi_sim_" + strings.ReplaceAll(req.OrderID, "-", "")
	intent := Intent{
		Provider:     s.Name(),
		ID:           id,
		ClientSecret: id + "_secret_" + common.Sha256Hex(id + req.Amount.String() + req.Currency)[:16],
		Status:       "requires_payment_method",
	}
	if base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/"); base != "" {
		intent.RedirectURL = base + "/pay/" + id
	}
	return intent, nil
}
