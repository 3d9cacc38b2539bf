package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/bookwise-api/internal/cart"
	"github.com/noah-isme/bookwise-api/internal/common"
	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
	"github.com/noah-isme/bookwise-api/internal/discount"
	"github.com/noah-isme/bookwise-api/internal/events"
	"github.com/noah-isme/bookwise-api/internal/lock"
	"github.com/noah-isme/bookwise-api/internal/obs"
	"github.com/noah-isme/bookwise-api/internal/payment"
	"github.com/noah-isme/bookwise-api/internal/pricing"
	"github.com/noah-isme/bookwise-api/internal/queue"
)

// Order statuses.
const (
	StatusPendingPayment  = "pending_payment"
	StatusAwaitingPayment = "awaiting_payment"
	StatusPaid            = "paid"
)

// Querier captures the read side used outside of checkout.
type Querier interface {
	GetOrderForUser(ctx context.Context, arg dbgen.GetOrderForUserParams) (dbgen.Order, error)
	ListOrdersByUser(ctx context.Context, arg dbgen.ListOrdersByUserParams) ([]dbgen.Order, error)
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]dbgen.OrderItem, error)
	SetOrderPaymentIntent(ctx context.Context, arg dbgen.SetOrderPaymentIntentParams) error
}

// TxQuerier is everything checkout touches inside its transaction.
type TxQuerier interface {
	cart.Querier
	discount.Querier
	CreateOrder(ctx context.Context, arg dbgen.CreateOrderParams) (dbgen.Order, error)
	CreateOrderItem(ctx context.Context, arg dbgen.CreateOrderItemParams) error
	GetUserByID(ctx context.Context, id pgtype.UUID) (dbgen.User, error)
}

// Input is the shopper's checkout request.
type Input struct {
	Currency        string
	Region          string
	DiscountCode    string
	GiftWrap        bool
	ExpressShipping bool
	Notes           string
}

// Item is one purchased book priced in the order currency.
type Item struct {
	BookID    int64           `json:"bookId"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Order is the API view of a stored order.
type Order struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	Currency        string          `json:"currency"`
	Region          string          `json:"region"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountCode    string          `json:"discountCode,omitempty"`
	DiscountPercent int             `json:"discountPercent"`
	Discount        decimal.Decimal `json:"discount"`
	Tax             decimal.Decimal `json:"tax"`
	Shipping        decimal.Decimal `json:"shipping"`
	Extras          decimal.Decimal `json:"extras"`
	Total           decimal.Decimal `json:"total"`
	GiftWrap        bool            `json:"giftWrap"`
	ExpressShipping bool            `json:"expressShipping"`
	Notes           string          `json:"notes,omitempty"`
	PaymentIntentID string          `json:"paymentIntentId,omitempty"`
	Items           []Item          `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Result is returned by Checkout.
type Result struct {
	Order   Order           `json:"order"`
	Payment *payment.Intent `json:"payment,omitempty"`
}

// Service turns the selected cart lines into orders.
type Service struct {
	Q Querier
	// Tx runs fn inside a transaction.
	Tx        func(ctx context.Context, fn func(TxQuerier) error) error
	Carts     *cart.Service
	Discounts *discount.Service
	Payments  *payment.Service
	Locker    *lock.Locker
	LockTTL   time.Duration
	Events    *events.Bus
	Logger    zerolog.Logger
}

// Checkout places an order for the user's selected cart lines. Checkouts for
// the same user are serialised through the locker when one is configured.
func (s *Service) Checkout(ctx context.Context, userID string, in Input) (Result, error) {
	if s == nil || s.Tx == nil || s.Carts == nil || s.Discounts == nil {
		return Result{}, errors.New("order service not configured")
	}
	ctx, span := otel.Tracer("order.Service").Start(ctx, "OrderService.Checkout")
	defer span.End()

	var out Result
	run := func(ctx context.Context) error {
		var err error
		out, err = s.checkout(ctx, userID, in)
		return err
	}
	var err error
	if s.Locker != nil && s.Locker.R != nil {
		err = s.Locker.WithLock(ctx, s.Locker.Key("checkout", userID), s.LockTTL, run)
		if errors.Is(err, lock.ErrBusy) {
			err = common.NewAppError("CHECKOUT_IN_PROGRESS", "checkout already in progress", http.StatusConflict, err)
		}
	} else {
		err = run(ctx)
	}
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("order.id", out.Order.ID),
		attribute.String("order.currency", out.Order.Currency),
		attribute.String("order.total", out.Order.Total.String()),
	)
	return out, nil
}

func (s *Service) checkout(ctx context.Context, userID string, in Input) (Result, error) {
	uid, err := toUUID(userID)
	if err != nil {
		return Result{}, common.NewAppError("UNAUTHORIZED", "Unauthorized", http.StatusUnauthorized, err)
	}
	currency := pricing.NormalizeCode(in.Currency)
	if currency == "" {
		currency = pricing.BaseCurrency
	}
	cur, ok := pricing.LookupCurrency(currency)
	if !ok {
		return Result{}, common.BadRequest(fmt.Sprintf("unsupported currency %q", in.Currency), nil)
	}
	region := pricing.NormalizeCode(in.Region)
	if region == "" {
		region = pricing.DefaultRegion
	}
	code := discount.NormalizeCode(in.DiscountCode)

	var (
		order   Order
		contact dbgen.User
	)
	err = s.Tx(ctx, func(q TxQuerier) error {
		c, err := s.Carts.LoadTx(ctx, q, cart.Owner{UserID: userID})
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		selected := c.Selected()
		if len(selected) == 0 {
			return common.BadRequest("no items selected for checkout", nil)
		}
		lines := cart.PricingLines(selected)
		discounts := s.Discounts.WithQ(q)

		percent := 0
		if code != "" {
			pre := pricing.Quote(pricing.Input{Lines: lines, Currency: cur.Code, Region: region})
			res, err := discounts.Validate(ctx, code, pre.Subtotal, cur.Code, region)
			if err != nil {
				return discountError(err)
			}
			percent = res.Percentage
		}
		b := pricing.Quote(pricing.Input{
			Lines:           lines,
			Currency:        cur.Code,
			Region:          region,
			DiscountPercent: percent,
			Options:         pricing.Options{GiftWrap: in.GiftWrap, ExpressShipping: in.ExpressShipping},
		})

		row, err := q.CreateOrder(ctx, dbgen.CreateOrderParams{
			UserID:          uid,
			Status:          StatusPendingPayment,
			Currency:        b.Currency,
			Region:          b.Region,
			Subtotal:        b.Subtotal,
			DiscountCode:    pgText(code),
			DiscountPercent: int32(b.DiscountPercent),
			Discount:        b.Discount,
			Tax:             b.Tax,
			Shipping:        b.Shipping,
			Extras:          b.Extras,
			Total:           b.Total,
			GiftWrap:        in.GiftWrap,
			ExpressShipping: in.ExpressShipping,
			Notes:           pgText(strings.TrimSpace(in.Notes)),
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		order = fromModel(row)

		bookIDs := make([]int64, 0, len(selected))
		for _, it := range selected {
			item := Item{
				BookID:    it.BookID,
				Title:     it.Title,
				Quantity:  it.Quantity,
				UnitPrice: pricing.Convert(it.UnitPrice, pricing.BaseCurrency, cur.Code).Round(cur.Precision),
			}
			if err := q.CreateOrderItem(ctx, dbgen.CreateOrderItemParams{
				OrderID:   row.ID,
				BookID:    item.BookID,
				Title:     item.Title,
				Quantity:  int32(item.Quantity),
				UnitPrice: item.UnitPrice,
			}); err != nil {
				return fmt.Errorf("create order item %d: %w", it.BookID, err)
			}
			order.Items = append(order.Items, item)
			bookIDs = append(bookIDs, it.BookID)
		}

		if code != "" {
			if err := discounts.Redeem(ctx, code, row.ID, uid); err != nil {
				return discountError(err)
			}
		}
		if err := s.Carts.RemoveLinesTx(ctx, q, c.ID, bookIDs); err != nil {
			return fmt.Errorf("remove purchased lines: %w", err)
		}
		contact, err = q.GetUserByID(ctx, uid)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	obs.Inc(obs.OrdersCreatedTotal, order.Currency)

	out := Result{Order: order}
	out.Payment = s.openPayment(ctx, &out.Order, contact.Email)
	s.publish(ctx, out.Order, contact)
	return out, nil
}

// openPayment requests an intent for the committed order. Failures leave the
// order pending so the client can retry payment later.
func (s *Service) openPayment(ctx context.Context, o *Order, email string) *payment.Intent {
	status := StatusAwaitingPayment
	var intentID pgtype.Text
	var intent *payment.Intent

	switch {
	case o.Total.IsZero():
		status = StatusPaid
	case s.Payments == nil:
		return nil
	default:
		created, err := s.Payments.CreateIntent(ctx, payment.IntentRequest{
			OrderID:     o.ID,
			Amount:      o.Total,
			Currency:    o.Currency,
			Description: "BookWise Pro order " + o.ID,
			Email:       email,
		})
		if err != nil {
			s.Logger.Warn().Err(err).Str("order_id", o.ID).Msg("create payment intent")
			return nil
		}
		intent = &created
		intentID = pgtype.Text{String: created.ID, Valid: true}
	}

	id, _ := toUUID(o.ID)
	if s.Q != nil {
		if err := s.Q.SetOrderPaymentIntent(ctx, dbgen.SetOrderPaymentIntentParams{
			ID:              id,
			PaymentIntentID: intentID,
			Status:          status,
		}); err != nil {
			s.Logger.Error().Err(err).Str("order_id", o.ID).Msg("store payment intent")
			return intent
		}
	}
	o.Status = status
	o.PaymentIntentID = intentID.String
	return intent
}

func (s *Service) publish(ctx context.Context, o Order, user dbgen.User) {
	if s.Events == nil {
		return
	}
	payload := queue.OrderConfirmation{
		OrderID:  o.ID,
		Email:    user.Email,
		Name:     user.Name,
		Currency: o.Currency,
		Total:    o.Total.String(),
		Code:     o.DiscountCode,
		Lines:    make([]queue.OrderLine, 0, len(o.Items)),
	}
	if o.Discount.IsPositive() {
		payload.Discount = o.Discount.String()
	}
	for _, it := range o.Items {
		payload.Lines = append(payload.Lines, queue.OrderLine{
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
		})
	}
	if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, o.ID, payload); err != nil {
		s.Logger.Error().Err(err).Str("order_id", o.ID).Msg("emit order.created")
	}
}

// List returns the user's orders, newest first, without items.
func (s *Service) List(ctx context.Context, userID string, skip, limit int) ([]Order, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("order service not configured")
	}
	uid, err := toUUID(userID)
	if err != nil {
		return nil, common.NewAppError("UNAUTHORIZED", "Unauthorized", http.StatusUnauthorized, err)
	}
	rows, err := s.Q.ListOrdersByUser(ctx, dbgen.ListOrdersByUserParams{
		UserID: uid,
		Limit:  int32(limit),
		Offset: int32(skip),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

// Get returns one of the user's orders with its items. Orders belonging to
// other users are reported as not found.
func (s *Service) Get(ctx context.Context, userID, orderID string) (Order, error) {
	if s == nil || s.Q == nil {
		return Order{}, errors.New("order service not configured")
	}
	uid, err := toUUID(userID)
	if err != nil {
		return Order{}, common.NewAppError("UNAUTHORIZED", "Unauthorized", http.StatusUnauthorized, err)
	}
	oid, err := toUUID(orderID)
	if err != nil {
		return Order{}, notFound()
	}
	row, err := s.Q.GetOrderForUser(ctx, dbgen.GetOrderForUserParams{ID: oid, UserID: uid})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, notFound()
		}
		return Order{}, err
	}
	items, err := s.Q.ListOrderItems(ctx, oid)
	if err != nil {
		return Order{}, err
	}
	o := fromModel(row)
	o.Items = make([]Item, 0, len(items))
	for _, it := range items {
		o.Items = append(o.Items, Item{
			BookID:    it.BookID,
			Title:     it.Title,
			Quantity:  int(it.Quantity),
			UnitPrice: it.UnitPrice,
		})
	}
	return o, nil
}

func discountError(err error) error {
	var inv *discount.InvalidError
	if !errors.As(err, &inv) {
		return err
	}
	if errors.Is(err, discount.ErrCodeExhausted) {
		return common.NewAppError("DISCOUNT_EXHAUSTED", inv.Reason, http.StatusConflict, err)
	}
	return common.NewAppError("DISCOUNT_INVALID", inv.Reason, http.StatusBadRequest, err)
}

func notFound() error {
	return common.NewAppError("NOT_FOUND", "order not found", http.StatusNotFound, nil)
}

func fromModel(row dbgen.Order) Order {
	return Order{
		ID:              uuidString(row.ID),
		Status:          row.Status,
		Currency:        row.Currency,
		Region:          row.Region,
		Subtotal:        row.Subtotal,
		DiscountCode:    row.DiscountCode.String,
		DiscountPercent: int(row.DiscountPercent),
		Discount:        row.Discount,
		Tax:             row.Tax,
		Shipping:        row.Shipping,
		Extras:          row.Extras,
		Total:           row.Total,
		GiftWrap:        row.GiftWrap,
		ExpressShipping: row.ExpressShipping,
		Notes:           row.Notes.String,
		PaymentIntentID: row.PaymentIntentID.String,
		CreatedAt:       row.CreatedAt.Time,
	}
}

func toUUID(value string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(value)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}

func pgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
