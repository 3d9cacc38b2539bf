package payment

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/bookwise-api/internal/obs"
)

// Service wraps a Provider with tracing and outcome metrics.
type Service struct {
	Provider Provider
}

// CreateIntent opens an intent for req.
func (s *Service) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if s == nil || s.Provider == nil {
		return Intent{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateIntent")
	defer span.End()

	start := time.Now()
	provider := s.Provider.Name()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", provider),
			attribute.String("order.id", req.OrderID),
			attribute.String("payment.currency", req.Currency),
			attribute.Float64("payment.intent.duration_ms", obs.DurationMillis(time.Since(start))),
			attribute.String("payment.intent.result", result),
		)
		obs.Inc(obs.PaymentIntentTotal, provider, result)
	}()

	intent, err := s.Provider.CreateIntent(ctx, req)
	if err != nil {
		span.RecordError(err)
		return Intent{}, err
	}
	result = "success"
	return intent, nil
}
