package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookwise-api/internal/queue"
)

type captureClient struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: "1", Type: task.Type()}, nil
}

type recordingMailer struct {
	sent []queue.OrderConfirmation
	err  error
}

func (m *recordingMailer) SendOrderConfirmation(_ context.Context, p queue.OrderConfirmation) error {
	m.sent = append(m.sent, p)
	return m.err
}

type purger struct{ calls int }

func (p *purger) PurgeExpiredGuests(context.Context) (int64, error) {
	p.calls++
	return 3, nil
}

func confirmation() queue.OrderConfirmation {
	return queue.OrderConfirmation{
		OrderID:  "order-1",
		Email:    "user@example.com",
		Currency: "USD",
		Total:    "40.47",
		Lines:    []queue.OrderLine{{Title: "Fikir Eske Mekabir", Quantity: 2, UnitPrice: "15.99"}},
	}
}

func TestPublishOrderConfirmation(t *testing.T) {
	client := &captureClient{}
	pub := queue.Publisher{Client: client}

	require.NoError(t, pub.PublishOrderConfirmation(context.Background(), confirmation()))
	require.Len(t, client.tasks, 1)
	require.Equal(t, queue.TypeOrderConfirmation, client.tasks[0].Type())

	var decoded queue.OrderConfirmation
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &decoded))
	require.Equal(t, "40.47", decoded.Total)

	client.err = asynq.ErrTaskIDConflict
	require.NoError(t, pub.PublishOrderConfirmation(context.Background(), confirmation()))

	client.err = errors.New("redis down")
	require.ErrorContains(t, pub.PublishOrderConfirmation(context.Background(), confirmation()), "redis down")

	missing := confirmation()
	missing.Email = ""
	require.Error(t, queue.Publisher{Client: &captureClient{}}.PublishOrderConfirmation(context.Background(), missing))
}

func TestHandlersDispatchByType(t *testing.T) {
	mailer := &recordingMailer{}
	carts := &purger{}
	mux := queue.Handlers{Mailer: mailer, Carts: carts, Logger: zerolog.Nop()}.Mux()

	task, err := queue.NewOrderConfirmationTask(confirmation())
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	require.Equal(t, "order-1", mailer.sent[0].OrderID)

	require.NoError(t, mux.ProcessTask(context.Background(), queue.NewPurgeGuestCartsTask()))
	require.Equal(t, 1, carts.calls)
	require.GreaterOrEqual(t, testutil.ToFloat64(queue.QueueProcessedTotal.WithLabelValues(queue.TypePurgeGuestCarts, "ok")), 1.0)
}

func TestHandlersSkipRetryOnBadPayload(t *testing.T) {
	mux := queue.Handlers{Mailer: &recordingMailer{}, Carts: &purger{}, Logger: zerolog.Nop()}.Mux()

	err := mux.ProcessTask(context.Background(), asynq.NewTask(queue.TypeOrderConfirmation, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = mux.ProcessTask(context.Background(), asynq.NewTask(queue.TypeOrderConfirmation, []byte(`{"orderId":"o"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlersPropagateMailerFailure(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("sendgrid 503")}
	mux := queue.Handlers{Mailer: mailer, Carts: &purger{}, Logger: zerolog.Nop()}.Mux()

	task, err := queue.NewOrderConfirmationTask(confirmation())
	require.NoError(t, err)
	require.ErrorContains(t, mux.ProcessTask(context.Background(), task), "sendgrid 503")
}
