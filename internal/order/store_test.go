package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
)

var testNow = time.Date(2025, time.October, 1, 9, 0, 0, 0, time.UTC)

type storeLine struct {
	quantity int32
	selected bool
}

// memStore backs both the checkout transaction and the read side.
type memStore struct {
	mu          sync.Mutex
	books       map[int64]dbgen.Book
	users       map[pgtype.UUID]dbgen.User
	carts       map[pgtype.UUID]dbgen.Cart
	lines       map[pgtype.UUID]map[int64]storeLine
	codes       map[string]dbgen.DiscountCode
	redemptions []dbgen.InsertDiscountRedemptionParams
	orders      []dbgen.Order
	items       map[pgtype.UUID][]dbgen.OrderItem
	intents     []dbgen.SetOrderPaymentIntentParams
	// redeemErr simulates a code consumed by a concurrent checkout.
	redeemErr error
}

func newMemStore() *memStore {
	return &memStore{
		books: map[int64]dbgen.Book{
			1: {ID: 1, Title: "Fikir Eske Mekabir", Author: "Haddis Alemayehu", Price: decimal.RequireFromString("15.99"), Stock: true},
			2: {ID: 2, Title: "Oromay", Author: "Bealu Girma", Price: decimal.RequireFromString("12.50"), Stock: true},
		},
		users: map[pgtype.UUID]dbgen.User{},
		carts: map[pgtype.UUID]dbgen.Cart{},
		lines: map[pgtype.UUID]map[int64]storeLine{},
		codes: map[string]dbgen.DiscountCode{},
		items: map[pgtype.UUID][]dbgen.OrderItem{},
	}
}

func newID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func (m *memStore) addUser(name, email string) string {
	id := newID()
	m.users[id] = dbgen.User{ID: id, Name: name, Email: email}
	return uuidString(id)
}

func (m *memStore) addCart(userID string, lines map[int64]storeLine) {
	uid, _ := toUUID(userID)
	id := newID()
	m.carts[id] = dbgen.Cart{ID: id, UserID: uid}
	m.lines[id] = lines
}

func (m *memStore) addCode(code string, percent, usesLeft int32) {
	m.codes[code] = dbgen.DiscountCode{
		Code:              code,
		Percentage:        percent,
		MinAmount:         decimal.Zero,
		MinAmountCurrency: "USD",
		MaxUses:           10,
		UsesLeft:          usesLeft,
		ExpiresAt:         pgtype.Timestamptz{Time: testNow.AddDate(0, 3, 0), Valid: true},
		Currencies:        []string{"USD", "ETB", "EUR"},
		Regions:           []string{"all"},
		Active:            true,
	}
}

func (m *memStore) cartID(userID string) pgtype.UUID {
	uid, _ := toUUID(userID)
	for id, c := range m.carts {
		if c.UserID == uid {
			return id
		}
	}
	return pgtype.UUID{}
}

func (m *memStore) cartLines(userID string) map[int64]storeLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, _ := toUUID(userID)
	for id, c := range m.carts {
		if c.UserID == uid {
			return m.lines[id]
		}
	}
	return nil
}

func (m *memStore) GetCartByUser(_ context.Context, userID pgtype.UUID) (dbgen.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.UserID.Valid && c.UserID == userID {
			return c, nil
		}
	}
	return dbgen.Cart{}, pgx.ErrNoRows
}

func (m *memStore) GetActiveCartByAnon(context.Context, pgtype.Text) (dbgen.Cart, error) {
	return dbgen.Cart{}, pgx.ErrNoRows
}

func (m *memStore) LockCart(_ context.Context, id pgtype.UUID) (dbgen.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[id]
	if !ok {
		return dbgen.Cart{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *memStore) CreateCart(context.Context, dbgen.CreateCartParams) (dbgen.Cart, error) {
	return dbgen.Cart{}, errors.New("not used")
}

func (m *memStore) TouchCart(context.Context, dbgen.TouchCartParams) error { return nil }

func (m *memStore) DeleteCart(context.Context, pgtype.UUID) error { return nil }

func (m *memStore) DeleteExpiredGuestCarts(context.Context, pgtype.Timestamptz) (int64, error) {
	return 0, nil
}

func (m *memStore) ListCartLines(_ context.Context, cartID pgtype.UUID) ([]dbgen.ListCartLinesRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := []dbgen.ListCartLinesRow{}
	for bookID, l := range m.lines[cartID] {
		b := m.books[bookID]
		rows = append(rows, dbgen.ListCartLinesRow{
			CartID:   cartID,
			BookID:   bookID,
			Quantity: l.quantity,
			Selected: l.selected,
			Title:    b.Title,
			Author:   b.Author,
			Price:    b.Price,
			Stock:    b.Stock,
			WeightKg: b.WeightKg,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].BookID < rows[j].BookID })
	return rows, nil
}

func (m *memStore) UpsertCartItem(context.Context, dbgen.UpsertCartItemParams) error { return nil }

func (m *memStore) DeleteCartItem(_ context.Context, arg dbgen.DeleteCartItemParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lines[arg.CartID][arg.BookID]; !ok {
		return 0, nil
	}
	delete(m.lines[arg.CartID], arg.BookID)
	return 1, nil
}

func (m *memStore) ClearCart(context.Context, pgtype.UUID) error { return nil }

func (m *memStore) GetBook(_ context.Context, id int64) (dbgen.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return dbgen.Book{}, pgx.ErrNoRows
	}
	return b, nil
}

func (m *memStore) GetDiscountCode(_ context.Context, code string) (dbgen.DiscountCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.codes[code]
	if !ok {
		return dbgen.DiscountCode{}, pgx.ErrNoRows
	}
	return row, nil
}

func (m *memStore) ListDiscountCodes(context.Context) ([]dbgen.DiscountCode, error) {
	return nil, nil
}

func (m *memStore) CreateDiscountCode(context.Context, dbgen.CreateDiscountCodeParams) (dbgen.DiscountCode, error) {
	return dbgen.DiscountCode{}, errors.New("not used")
}

func (m *memStore) DecrementDiscountUses(_ context.Context, code string) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redeemErr != nil {
		return 0, m.redeemErr
	}
	row, ok := m.codes[code]
	if !ok || row.UsesLeft <= 0 {
		return 0, pgx.ErrNoRows
	}
	row.UsesLeft--
	m.codes[code] = row
	return row.UsesLeft, nil
}

func (m *memStore) InsertDiscountRedemption(_ context.Context, arg dbgen.InsertDiscountRedemptionParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redemptions = append(m.redemptions, arg)
	return nil
}

func (m *memStore) CreateOrder(_ context.Context, arg dbgen.CreateOrderParams) (dbgen.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := dbgen.Order{
		ID:              newID(),
		UserID:          arg.UserID,
		Status:          arg.Status,
		Currency:        arg.Currency,
		Region:          arg.Region,
		Subtotal:        arg.Subtotal,
		DiscountCode:    arg.DiscountCode,
		DiscountPercent: arg.DiscountPercent,
		Discount:        arg.Discount,
		Tax:             arg.Tax,
		Shipping:        arg.Shipping,
		Extras:          arg.Extras,
		Total:           arg.Total,
		GiftWrap:        arg.GiftWrap,
		ExpressShipping: arg.ExpressShipping,
		Notes:           arg.Notes,
		CreatedAt:       pgtype.Timestamptz{Time: testNow.Add(time.Duration(len(m.orders)) * time.Minute), Valid: true},
	}
	m.orders = append(m.orders, row)
	return row, nil
}

func (m *memStore) CreateOrderItem(_ context.Context, arg dbgen.CreateOrderItemParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[arg.OrderID] = append(m.items[arg.OrderID], dbgen.OrderItem(arg))
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id pgtype.UUID) (dbgen.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return dbgen.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *memStore) GetOrderForUser(_ context.Context, arg dbgen.GetOrderForUserParams) (dbgen.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == arg.ID && o.UserID == arg.UserID {
			return o, nil
		}
	}
	return dbgen.Order{}, pgx.ErrNoRows
}

func (m *memStore) ListOrdersByUser(_ context.Context, arg dbgen.ListOrdersByUserParams) ([]dbgen.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []dbgen.Order{}
	for i := len(m.orders) - 1; i >= 0; i-- {
		if m.orders[i].UserID == arg.UserID {
			out = append(out, m.orders[i])
		}
	}
	start := min(int(arg.Offset), len(out))
	end := min(start+int(arg.Limit), len(out))
	return out[start:end], nil
}

func (m *memStore) ListOrderItems(_ context.Context, orderID pgtype.UUID) ([]dbgen.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dbgen.OrderItem(nil), m.items[orderID]...), nil
}

func (m *memStore) SetOrderPaymentIntent(_ context.Context, arg dbgen.SetOrderPaymentIntentParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents = append(m.intents, arg)
	for i := range m.orders {
		if m.orders[i].ID == arg.ID {
			m.orders[i].Status = arg.Status
			m.orders[i].PaymentIntentID = arg.PaymentIntentID
		}
	}
	return nil
}
