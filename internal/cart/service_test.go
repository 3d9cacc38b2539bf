package cart

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
	"github.com/noah-isme/bookwise-api/internal/pricing"
)

type stubItem struct {
	quantity int32
	selected bool
	price    decimal.Decimal
	created  time.Time
}

type stubQueries struct {
	mu      sync.Mutex
	books   map[int64]dbgen.Book
	carts   map[pgtype.UUID]dbgen.Cart
	items   map[pgtype.UUID]map[int64]stubItem
	upserts int
	now     time.Time
}

func newStubQueries(now time.Time) *stubQueries {
	return &stubQueries{
		books: map[int64]dbgen.Book{
			1: {ID: 1, Title: "Fikir Eske Mekabir", Author: "Haddis Alemayehu", Price: decimal.RequireFromString("15.99"), Stock: true},
			2: {ID: 2, Title: "Oromay", Author: "Bealu Girma", Price: decimal.RequireFromString("12.50"), Stock: true, WeightKg: decimal.NullDecimal{Decimal: decimal.RequireFromString("0.8"), Valid: true}},
			3: {ID: 3, Title: "Out of print", Author: "Nobody", Price: decimal.RequireFromString("9"), Stock: false},
		},
		carts: map[pgtype.UUID]dbgen.Cart{},
		items: map[pgtype.UUID]map[int64]stubItem{},
		now:   now,
	}
}

func (s *stubQueries) GetCartByUser(_ context.Context, userID pgtype.UUID) (dbgen.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.carts {
		if c.UserID.Valid && c.UserID == userID {
			return c, nil
		}
	}
	return dbgen.Cart{}, pgx.ErrNoRows
}

func (s *stubQueries) GetActiveCartByAnon(_ context.Context, anonID pgtype.Text) (dbgen.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.carts {
		if !c.UserID.Valid && c.AnonID == anonID && (!c.ExpiresAt.Valid || c.ExpiresAt.Time.After(s.now)) {
			return c, nil
		}
	}
	return dbgen.Cart{}, pgx.ErrNoRows
}

func (s *stubQueries) LockCart(_ context.Context, id pgtype.UUID) (dbgen.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return dbgen.Cart{}, pgx.ErrNoRows
	}
	return c, nil
}

func (s *stubQueries) CreateCart(_ context.Context, arg dbgen.CreateCartParams) (dbgen.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := dbgen.Cart{
		ID:        pgtype.UUID{Bytes: uuid.New(), Valid: true},
		UserID:    arg.UserID,
		AnonID:    arg.AnonID,
		ExpiresAt: arg.ExpiresAt,
	}
	s.carts[c.ID] = c
	s.items[c.ID] = map[int64]stubItem{}
	return c, nil
}

func (s *stubQueries) TouchCart(_ context.Context, arg dbgen.TouchCartParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.carts[arg.ID]
	c.ExpiresAt = arg.ExpiresAt
	s.carts[arg.ID] = c
	return nil
}

func (s *stubQueries) DeleteCart(_ context.Context, id pgtype.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, id)
	delete(s.items, id)
	return nil
}

func (s *stubQueries) DeleteExpiredGuestCarts(_ context.Context, before pgtype.Timestamptz) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.carts {
		if !c.UserID.Valid && c.ExpiresAt.Valid && !c.ExpiresAt.Time.After(before.Time) {
			delete(s.carts, id)
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

func (s *stubQueries) ListCartLines(_ context.Context, cartID pgtype.UUID) ([]dbgen.ListCartLinesRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := []dbgen.ListCartLinesRow{}
	for bookID, it := range s.items[cartID] {
		b := s.books[bookID]
		rows = append(rows, dbgen.ListCartLinesRow{
			CartID:    cartID,
			BookID:    bookID,
			Quantity:  it.quantity,
			Selected:  it.selected,
			CreatedAt: pgtype.Timestamptz{Time: it.created, Valid: true},
			Title:     b.Title,
			Author:    b.Author,
			Price:     b.Price,
			Stock:     b.Stock,
			WeightKg:  b.WeightKg,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].BookID < rows[j].BookID })
	return rows, nil
}

func (s *stubQueries) UpsertCartItem(_ context.Context, arg dbgen.UpsertCartItemParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	prev, ok := s.items[arg.CartID][arg.BookID]
	created := s.now
	if ok {
		created = prev.created
	}
	s.items[arg.CartID][arg.BookID] = stubItem{quantity: arg.Quantity, selected: arg.Selected, price: arg.UnitPrice, created: created}
	return nil
}

func (s *stubQueries) DeleteCartItem(_ context.Context, arg dbgen.DeleteCartItemParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[arg.CartID][arg.BookID]; !ok {
		return 0, nil
	}
	delete(s.items[arg.CartID], arg.BookID)
	return 1, nil
}

func (s *stubQueries) ClearCart(_ context.Context, cartID pgtype.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cartID] = map[int64]stubItem{}
	return nil
}

func (s *stubQueries) GetBook(_ context.Context, id int64) (dbgen.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return dbgen.Book{}, pgx.ErrNoRows
	}
	return b, nil
}

var serviceNow = time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *stubQueries) {
	q := newStubQueries(serviceNow)
	return &Service{Q: q, Now: func() time.Time { return serviceNow }}, q
}

func TestServiceAddItemCreatesGuestCart(t *testing.T) {
	svc, q := newTestService()
	ctx := context.Background()
	guest := Owner{AnonID: uuid.NewString()}

	c, created, err := svc.AddItem(ctx, guest, 1, 1)
	require.NoError(t, err)
	require.True(t, created)
	require.Len(t, c.Items, 1)

	c, created, err = svc.AddItem(ctx, guest, 1, 2)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, 3, c.Items[0].Quantity)

	require.Len(t, q.carts, 1)
	for _, row := range q.carts {
		require.True(t, row.ExpiresAt.Valid)
		require.Equal(t, serviceNow.Add(DefaultGuestTTL), row.ExpiresAt.Time)
	}
}

func TestServiceAddItemRejectsUnavailableBooks(t *testing.T) {
	svc, _ := newTestService()
	guest := Owner{AnonID: uuid.NewString()}

	_, _, err := svc.AddItem(context.Background(), guest, 3, 1)
	require.ErrorIs(t, err, ErrBookUnavailable)
	_, _, err = svc.AddItem(context.Background(), guest, 404, 1)
	require.ErrorIs(t, err, ErrBookUnavailable)
	_, _, err = svc.AddItem(context.Background(), guest, 1, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestServiceMutationsPersistOnlyChangedLines(t *testing.T) {
	svc, q := newTestService()
	ctx := context.Background()
	user := Owner{UserID: uuid.NewString()}

	_, _, err := svc.AddItem(ctx, user, 1, 1)
	require.NoError(t, err)
	_, _, err = svc.AddItem(ctx, user, 2, 2)
	require.NoError(t, err)
	require.Equal(t, 2, q.upserts)

	c, err := svc.ToggleSelected(ctx, user, 2)
	require.NoError(t, err)
	require.Len(t, c.Selected(), 1)
	require.Equal(t, 3, q.upserts)

	c, err = svc.SetQuantity(ctx, user, 1, 0)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)

	_, err = svc.SetQuantity(ctx, user, 1, 2)
	require.ErrorIs(t, err, ErrItemNotFound)

	loaded, err := svc.Load(ctx, user)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	require.False(t, loaded.Items[0].Selected)
	require.Equal(t, "0.8", loaded.Items[0].WeightKg.String())
}

func TestServiceRemoveSelectedAndClear(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	user := Owner{UserID: uuid.NewString()}

	_, _, _ = svc.AddItem(ctx, user, 1, 1)
	_, _, _ = svc.AddItem(ctx, user, 2, 1)
	_, _ = svc.ToggleSelected(ctx, user, 1)

	c, removed, err := svc.RemoveSelected(ctx, user)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, int64(1), c.Items[0].BookID)

	c, err = svc.Clear(ctx, user)
	require.NoError(t, err)
	require.Empty(t, c.Items)

	stranger := Owner{AnonID: uuid.NewString()}
	c, err = svc.Clear(ctx, stranger)
	require.NoError(t, err)
	require.Empty(t, c.Items)
	_, err = svc.RemoveItem(ctx, stranger, 1)
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestServiceMergeSumsQuantities(t *testing.T) {
	svc, q := newTestService()
	ctx := context.Background()
	anon := uuid.NewString()
	userID := uuid.NewString()

	_, _, _ = svc.AddItem(ctx, Owner{AnonID: anon}, 1, 2)
	_, _, _ = svc.AddItem(ctx, Owner{AnonID: anon}, 2, 1)
	_, _, _ = svc.AddItem(ctx, Owner{UserID: userID}, 1, 1)

	merged, err := svc.Merge(ctx, anon, userID)
	require.NoError(t, err)
	require.Len(t, merged.Items, 2)
	line, ok := merged.Find(1)
	require.True(t, ok)
	require.Equal(t, 3, line.Quantity)

	require.Len(t, q.carts, 1)
	guest, err := svc.Load(ctx, Owner{AnonID: anon})
	require.NoError(t, err)
	require.Empty(t, guest.Items)
}

func TestServiceRejectsQuantitiesBeyondStorage(t *testing.T) {
	svc, q := newTestService()
	ctx := context.Background()
	user := Owner{UserID: uuid.NewString()}

	_, _, err := svc.AddItem(ctx, user, 1, 2)
	require.NoError(t, err)

	_, err = svc.SetQuantity(ctx, user, 1, 1<<32+2)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.SetQuantity(ctx, user, 1, 3_000_000_000)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, _, err = svc.AddItem(ctx, user, 1, MaxQuantity)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	c, err := svc.Load(ctx, user)
	require.NoError(t, err)
	require.Equal(t, 2, c.Items[0].Quantity)
	for _, lines := range q.items {
		require.Equal(t, int32(2), lines[1].quantity)
	}
}

func TestServiceMergeCapsSummedQuantity(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	anon := uuid.NewString()
	userID := uuid.NewString()

	_, _, _ = svc.AddItem(ctx, Owner{AnonID: anon}, 1, 600)
	_, _, _ = svc.AddItem(ctx, Owner{UserID: userID}, 1, 500)

	merged, err := svc.Merge(ctx, anon, userID)
	require.NoError(t, err)
	line, ok := merged.Find(1)
	require.True(t, ok)
	require.Equal(t, MaxQuantity, line.Quantity)
}

func TestServiceQuoteAndSubtotal(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	user := Owner{UserID: uuid.NewString()}
	_, _, _ = svc.AddItem(ctx, user, 1, 2)

	_, b, err := svc.Quote(ctx, user, pricing.Input{Currency: "USD", Region: "US"})
	require.NoError(t, err)
	require.Equal(t, "31.98", b.Subtotal.String())

	sub, err := svc.Subtotal(ctx, user, "ETB")
	require.NoError(t, err)
	require.Equal(t, "1758.9", sub.String())
}

func TestServicePurgeExpiredGuests(t *testing.T) {
	svc, q := newTestService()
	ctx := context.Background()
	_, _, _ = svc.AddItem(ctx, Owner{AnonID: uuid.NewString()}, 1, 1)
	_, _, _ = svc.AddItem(ctx, Owner{UserID: uuid.NewString()}, 1, 1)

	later := serviceNow.Add(DefaultGuestTTL + time.Minute)
	svc.Now = func() time.Time { return later }
	n, err := svc.PurgeExpiredGuests(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Len(t, q.carts, 1)
}
