package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookwise-api/internal/events"
)

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitDeliversToTopicSubscribers(t *testing.T) {
	bus := events.NewBus()
	orders := &captureNotifier{}
	reviews := &captureNotifier{}
	bus.Subscribe(events.TopicOrderCreated, orders)
	bus.Subscribe(events.TopicBookReviewed, reviews)

	ev, err := bus.Emit(context.Background(), events.TopicOrderCreated, "order-1", map[string]any{"total": "31.98"})
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	require.Len(t, orders.events, 1)
	require.Empty(t, reviews.events)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(orders.events[0].Payload, &decoded))
	require.Equal(t, "31.98", decoded["total"])
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	bus := events.NewBus()
	failing := &captureNotifier{err: errors.New("queue down")}
	after := &captureNotifier{}
	bus.Subscribe(events.TopicOrderCreated, failing)
	bus.Subscribe(events.TopicOrderCreated, after)

	_, err := bus.Emit(context.Background(), events.TopicOrderCreated, "order-1", nil)
	require.ErrorContains(t, err, "queue down")
	require.Len(t, after.events, 1)
	require.JSONEq(t, `{}`, string(after.events[0].Payload))
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.NewBus()
	_, err := bus.Emit(context.Background(), "", "order-1", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, " ", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, "order-1", json.RawMessage("{bad"))
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(context.Background(), events.TopicOrderCreated, "order-1", nil)
	require.Error(t, err)
}
