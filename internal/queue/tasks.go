package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task types processed by the worker.
const (
	TypeOrderConfirmation = "email:order_confirmation"
	TypePurgeGuestCarts   = "cart:purge_guests"
)

// Queue names with their relative priority.
const (
	QueueEmails      = "emails"
	QueueMaintenance = "maintenance"
)

// Priorities maps queues to asynq weights.
var Priorities = map[string]int{
	QueueEmails:      6,
	QueueMaintenance: 1,
}

// OrderLine is one purchased book as shown in the confirmation email.
type OrderLine struct {
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

// OrderConfirmation is the payload of TypeOrderConfirmation.
type OrderConfirmation struct {
	OrderID  string      `json:"orderId"`
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	Currency string      `json:"currency"`
	Total    string      `json:"total"`
	Discount string      `json:"discount,omitempty"`
	Code     string      `json:"code,omitempty"`
	Lines    []OrderLine `json:"lines"`
}

// NewOrderConfirmationTask builds the email task. The task id is derived from
// the order so a duplicate enqueue is rejected by asynq.
func NewOrderConfirmationTask(p OrderConfirmation) (*asynq.Task, error) {
	if p.OrderID == "" || p.Email == "" {
		return nil, errors.New("queue: order id and email are required")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderConfirmation, raw,
		asynq.TaskID("order-confirmation:"+p.OrderID),
		asynq.Queue(QueueEmails),
		asynq.MaxRetry(8),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	), nil
}

// NewPurgeGuestCartsTask builds the periodic guest cart cleanup task.
func NewPurgeGuestCartsTask() *asynq.Task {
	return asynq.NewTask(TypePurgeGuestCarts, nil,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(1),
		asynq.Timeout(5*time.Minute),
	)
}

// Enqueuer is the subset of *asynq.Client used by Publisher.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher enqueues domain tasks.
type Publisher struct {
	Client Enqueuer
}

// PublishOrderConfirmation enqueues the confirmation email. Re-publishing the
// same order is a no-op.
func (p Publisher) PublishOrderConfirmation(ctx context.Context, payload OrderConfirmation) error {
	if p.Client == nil {
		return errors.New("queue: client not configured")
	}
	task, err := NewOrderConfirmationTask(payload)
	if err != nil {
		return err
	}
	if _, err := p.Client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("queue: enqueue %s: %w", TypeOrderConfirmation, err)
	}
	QueueEnqueuedTotal.WithLabelValues(TypeOrderConfirmation).Inc()
	return nil
}
