package order

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookwise-api/internal/cart"
	"github.com/noah-isme/bookwise-api/internal/common"
	"github.com/noah-isme/bookwise-api/internal/discount"
	"github.com/noah-isme/bookwise-api/internal/events"
	"github.com/noah-isme/bookwise-api/internal/lock"
	"github.com/noah-isme/bookwise-api/internal/payment"
	"github.com/noah-isme/bookwise-api/internal/pricing"
	"github.com/noah-isme/bookwise-api/internal/queue"
)

type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }

func (failingProvider) CreateIntent(context.Context, payment.IntentRequest) (payment.Intent, error) {
	return payment.Intent{}, errors.New("gateway unavailable")
}

type fixture struct {
	svc    *Service
	store  *memStore
	userID string
	sent   []queue.OrderConfirmation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	f := &fixture{store: store}
	f.userID = store.addUser("Abebe", "abebe@example.com")
	store.addCart(f.userID, map[int64]storeLine{
		1: {quantity: 2, selected: true},
		2: {quantity: 1, selected: false},
	})
	store.addCode("SAVE10", 10, 1)

	bus := events.NewBus()
	bus.Subscribe(events.TopicOrderCreated, events.NotifierFunc(func(_ context.Context, ev events.Event) error {
		var p queue.OrderConfirmation
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		f.sent = append(f.sent, p)
		return nil
	}))

	now := func() time.Time { return testNow }
	f.svc = &Service{
		Q: store,
		Tx: func(ctx context.Context, fn func(TxQuerier) error) error {
			return fn(store)
		},
		Carts:     &cart.Service{Q: store, Now: now},
		Discounts: &discount.Service{Q: store, Now: now},
		Payments:  &payment.Service{Provider: payment.Simulated{}},
		Events:    bus,
		Logger:    zerolog.Nop(),
	}
	return f
}

func requireAppError(t *testing.T, err error, status int, code string) *common.AppError {
	t.Helper()
	appErr, ok := common.AsAppError(err)
	require.Truef(t, ok, "expected AppError, got %v", err)
	require.Equal(t, status, appErr.HTTPStatus)
	require.Equal(t, code, appErr.Code)
	return appErr
}

func TestCheckoutPlacesOrderForSelectedLines(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Checkout(context.Background(), f.userID, Input{
		Currency:     "usd",
		Region:       "us",
		DiscountCode: " save10 ",
		Notes:        "leave at the door",
	})
	require.NoError(t, err)

	want := pricing.Quote(pricing.Input{
		Lines:           []pricing.Line{{BookID: 1, UnitPrice: decimal.RequireFromString("15.99"), Quantity: 2}},
		Currency:        "USD",
		Region:          "US",
		DiscountPercent: 10,
	})
	o := res.Order
	require.Equal(t, "USD", o.Currency)
	require.Equal(t, "US", o.Region)
	require.Equal(t, "SAVE10", o.DiscountCode)
	require.Equal(t, 10, o.DiscountPercent)
	require.True(t, want.Total.Equal(o.Total), "total %s, want %s", o.Total, want.Total)
	require.True(t, want.Discount.Equal(o.Discount))
	require.Equal(t, "leave at the door", o.Notes)
	require.Len(t, o.Items, 1)
	require.Equal(t, int64(1), o.Items[0].BookID)
	require.Equal(t, 2, o.Items[0].Quantity)

	require.NotNil(t, res.Payment)
	require.Equal(t, "simulated", res.Payment.Provider)
	require.True(t, strings.HasPrefix(res.Payment.ID, "pi_sim_"))
	require.Equal(t, StatusAwaitingPayment, o.Status)
	require.Equal(t, res.Payment.ID, o.PaymentIntentID)

	// purchased line removed, unselected line kept
	lines := f.store.cartLines(f.userID)
	require.Len(t, lines, 1)
	require.Contains(t, lines, int64(2))

	require.Equal(t, int32(0), f.store.codes["SAVE10"].UsesLeft)
	require.Len(t, f.store.redemptions, 1)

	require.Len(t, f.sent, 1)
	require.Equal(t, o.ID, f.sent[0].OrderID)
	require.Equal(t, "abebe@example.com", f.sent[0].Email)
	require.Equal(t, o.Total.String(), f.sent[0].Total)
	require.Len(t, f.sent[0].Lines, 1)
}

func TestCheckoutConvertsItemPrices(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Checkout(context.Background(), f.userID, Input{Currency: "ETB", Region: "ET"})
	require.NoError(t, err)
	require.Equal(t, "ETB", res.Order.Currency)
	require.True(t, decimal.RequireFromString("879.45").Equal(res.Order.Items[0].UnitPrice), res.Order.Items[0].UnitPrice.String())
	require.Empty(t, res.Order.DiscountCode)
	require.Empty(t, f.store.redemptions)
}

func TestCheckoutRequiresSelection(t *testing.T) {
	f := newFixture(t)
	sara := f.store.addUser("Sara", "sara@example.com")
	f.store.addCart(sara, map[int64]storeLine{1: {quantity: 1, selected: false}})

	_, err := f.svc.Checkout(context.Background(), sara, Input{})
	requireAppError(t, err, http.StatusBadRequest, "BAD_REQUEST")
	require.Empty(t, f.store.orders)
}

func TestCheckoutRejectsIneligibleCode(t *testing.T) {
	f := newFixture(t)
	f.store.addCode("SPENT", 20, 0)

	_, err := f.svc.Checkout(context.Background(), f.userID, Input{Currency: "USD", DiscountCode: "SPENT"})
	appErr := requireAppError(t, err, http.StatusConflict, "DISCOUNT_EXHAUSTED")
	require.Equal(t, "Code exhausted", appErr.Message)

	_, err = f.svc.Checkout(context.Background(), f.userID, Input{Currency: "USD", DiscountCode: "NOPE"})
	appErr = requireAppError(t, err, http.StatusBadRequest, "DISCOUNT_INVALID")
	require.Equal(t, "Invalid discount code", appErr.Message)

	require.Empty(t, f.store.orders)
	require.Len(t, f.store.cartLines(f.userID), 2)
}

func TestCheckoutLosesRaceForLastUse(t *testing.T) {
	f := newFixture(t)
	f.store.redeemErr = pgx.ErrNoRows

	_, err := f.svc.Checkout(context.Background(), f.userID, Input{Currency: "USD", DiscountCode: "SAVE10"})
	requireAppError(t, err, http.StatusConflict, "DISCOUNT_EXHAUSTED")
	require.Empty(t, f.sent)
}

func TestCheckoutRejectsUnsupportedCurrency(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Checkout(context.Background(), f.userID, Input{Currency: "XYZ"})
	requireAppError(t, err, http.StatusBadRequest, "BAD_REQUEST")
}

func TestCheckoutKeepsOrderPendingWhenPaymentFails(t *testing.T) {
	f := newFixture(t)
	f.svc.Payments = &payment.Service{Provider: failingProvider{}}

	res, err := f.svc.Checkout(context.Background(), f.userID, Input{Currency: "USD"})
	require.NoError(t, err)
	require.Nil(t, res.Payment)
	require.Equal(t, StatusPendingPayment, res.Order.Status)
	require.Empty(t, f.store.intents)
	require.Len(t, f.sent, 1)
}

func TestCheckoutFullDiscountSkipsPayment(t *testing.T) {
	f := newFixture(t)
	f.store.addCode("FREEBIE", 100, 5)

	// above the free shipping threshold so the total is zero
	liya := f.store.addUser("Liya", "liya@example.com")
	f.store.addCart(liya, map[int64]storeLine{1: {quantity: 4, selected: true}})

	res, err := f.svc.Checkout(context.Background(), liya, Input{Currency: "USD", Region: "US", DiscountCode: "FREEBIE"})
	require.NoError(t, err)
	require.True(t, res.Order.Total.IsZero(), res.Order.Total.String())
	require.Nil(t, res.Payment)
	require.Equal(t, StatusPaid, res.Order.Status)
	require.Len(t, f.store.intents, 1)
}

func TestCheckoutSerialisesPerUser(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := &lock.Locker{R: rdb, MaxWait: 20 * time.Millisecond, RetryBackoff: 5 * time.Millisecond}
	f.svc.Locker = locker

	require.NoError(t, mr.Set(locker.Key("checkout", f.userID), "someone-else"))
	_, err := f.svc.Checkout(context.Background(), f.userID, Input{Currency: "USD"})
	requireAppError(t, err, http.StatusConflict, "CHECKOUT_IN_PROGRESS")

	mr.Del(locker.Key("checkout", f.userID))
	_, err = f.svc.Checkout(context.Background(), f.userID, Input{Currency: "USD"})
	require.NoError(t, err)
	require.False(t, mr.Exists(locker.Key("checkout", f.userID)))
}

func TestListAndGetAreScopedToUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Checkout(ctx, f.userID, Input{Currency: "USD"})
	require.NoError(t, err)
	f.store.lines[f.store.cartID(f.userID)][2] = storeLine{quantity: 1, selected: true}
	second, err := f.svc.Checkout(ctx, f.userID, Input{Currency: "EUR", Region: "EU"})
	require.NoError(t, err)

	orders, err := f.svc.List(ctx, f.userID, 0, 20)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, second.Order.ID, orders[0].ID)
	require.Empty(t, orders[0].Items)

	got, err := f.svc.Get(ctx, f.userID, first.Order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.Equal(t, "Fikir Eske Mekabir", got.Items[0].Title)

	stranger := f.store.addUser("Other", "other@example.com")
	_, err = f.svc.Get(ctx, stranger, first.Order.ID)
	requireAppError(t, err, http.StatusNotFound, "NOT_FOUND")

	_, err = f.svc.Get(ctx, f.userID, "not-a-uuid")
	requireAppError(t, err, http.StatusNotFound, "NOT_FOUND")
}
