package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// OrderMailer delivers order confirmation emails.
type OrderMailer interface {
	SendOrderConfirmation(ctx context.Context, p OrderConfirmation) error
}

// GuestCartPurger deletes expired guest carts.
type GuestCartPurger interface {
	PurgeExpiredGuests(ctx context.Context) (int64, error)
}

// Handlers binds task types to their implementations.
type Handlers struct {
	Mailer OrderMailer
	Carts  GuestCartPurger
	Logger zerolog.Logger
}

// Mux returns a ServeMux with every task type registered and instrumented.
func (h Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(h.observe)
	mux.HandleFunc(TypeOrderConfirmation, h.orderConfirmation)
	mux.HandleFunc(TypePurgeGuestCarts, h.purgeGuestCarts)
	return mux
}

func (h Handlers) orderConfirmation(ctx context.Context, t *asynq.Task) error {
	var p OrderConfirmation
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.Email == "" {
		return fmt.Errorf("order %s has no recipient: %w", p.OrderID, asynq.SkipRetry)
	}
	return h.Mailer.SendOrderConfirmation(ctx, p)
}

func (h Handlers) purgeGuestCarts(ctx context.Context, _ *asynq.Task) error {
	n, err := h.Carts.PurgeExpiredGuests(ctx)
	if err != nil {
		return err
	}
	h.Logger.Info().Int64("deleted", n).Msg("purged expired guest carts")
	return nil
}

func (h Handlers) observe(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		status := "ok"
		if err != nil {
			status = "error"
			h.Logger.Warn().Err(err).Str("task", t.Type()).Msg("task failed")
		}
		QueueProcessedTotal.WithLabelValues(t.Type(), status).Inc()
		QueueTaskDuration.WithLabelValues(t.Type()).Observe(time.Since(start).Seconds())
		return err
	})
}
