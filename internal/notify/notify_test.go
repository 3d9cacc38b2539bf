package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookwise-api/internal/common"
	"github.com/noah-isme/bookwise-api/internal/events"
	"github.com/noah-isme/bookwise-api/internal/queue"
	"github.com/noah-isme/bookwise-api/internal/resilience"
)

type failingSender struct{ calls int }

func (f *failingSender) Send(context.Context, common.Email) error {
	f.calls++
	return errors.New("sendgrid: status 503")
}

type capturePublisher struct{ got []queue.OrderConfirmation }

func (c *capturePublisher) PublishOrderConfirmation(_ context.Context, p queue.OrderConfirmation) error {
	c.got = append(c.got, p)
	return nil
}

func sampleOrder() queue.OrderConfirmation {
	return queue.OrderConfirmation{
		OrderID:  "7d9f",
		Email:    "user@example.com",
		Name:     "Abebe",
		Currency: "ETB",
		Total:    "2022.74",
		Discount: "87.95",
		Code:     "ETB5OFF",
		Lines:    []queue.OrderLine{{Title: "Oromay", Quantity: 2, UnitPrice: "15.99"}},
	}
}

func TestSendOrderConfirmation(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	m := Mailer{Sender: outbox, Logger: zerolog.Nop()}

	require.NoError(t, m.SendOrderConfirmation(context.Background(), sampleOrder()))
	sent := outbox.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "user@example.com", sent[0].To)
	require.Equal(t, OrderConfirmationSubject, sent[0].Subject)
	require.Contains(t, sent[0].Text, "Your order #7d9f is confirmed! Total: 2022.74 ETB. Thank you!")
	require.Contains(t, sent[0].Text, "Oromay x2")
	require.Contains(t, sent[0].Text, "ETB5OFF")
	require.Contains(t, sent[0].HTML, "<strong>#7d9f</strong>")
}

func TestSendOrderConfirmationOpensBreaker(t *testing.T) {
	sender := &failingSender{}
	breaker := resilience.NewBreaker(2, 0.5, time.Hour)
	m := Mailer{Sender: sender, Breaker: breaker, Logger: zerolog.Nop()}

	for i := 0; i < 2; i++ {
		require.Error(t, m.SendOrderConfirmation(context.Background(), sampleOrder()))
	}
	err := m.SendOrderConfirmation(context.Background(), sampleOrder())
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, 2, sender.calls)
}

func TestOrderCreatedNotifier(t *testing.T) {
	pub := &capturePublisher{}
	bus := events.NewBus()
	bus.Subscribe(events.TopicOrderCreated, OrderCreatedNotifier{Publisher: pub})

	_, err := bus.Emit(context.Background(), events.TopicOrderCreated, "7d9f", sampleOrder())
	require.NoError(t, err)
	require.Len(t, pub.got, 1)
	require.Equal(t, "ETB5OFF", pub.got[0].Code)

	anonymous := sampleOrder()
	anonymous.Email = ""
	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, "7d9f", anonymous)
	require.NoError(t, err)
	require.Len(t, pub.got, 1)
}
