package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/bookwise-api/internal/events"
	"github.com/noah-isme/bookwise-api/internal/queue"
)

// OrderPublisher enqueues confirmation emails.
type OrderPublisher interface {
	PublishOrderConfirmation(ctx context.Context, p queue.OrderConfirmation) error
}

// OrderCreatedNotifier turns order.created events into email tasks.
type OrderCreatedNotifier struct {
	Publisher OrderPublisher
}

// Notify implements events.Notifier.
func (n OrderCreatedNotifier) Notify(ctx context.Context, ev events.Event) error {
	if ev.Topic != events.TopicOrderCreated || n.Publisher == nil {
		return nil
	}
	var p queue.OrderConfirmation
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("decode order.created payload: %w", err)
	}
	if p.OrderID == "" {
		p.OrderID = ev.AggregateID
	}
	if p.Email == "" {
		return nil
	}
	return n.Publisher.PublishOrderConfirmation(ctx, p)
}
