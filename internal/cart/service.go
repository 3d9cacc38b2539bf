package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
	"github.com/noah-isme/bookwise-api/internal/obs"
	"github.com/noah-isme/bookwise-api/internal/pricing"
)

// DefaultGuestTTL is how long a guest cart survives after its last change.
const DefaultGuestTTL = 30 * 24 * time.Hour

// ErrBookUnavailable indicates the book does not exist or is out of stock.
var ErrBookUnavailable = errors.New("book out of stock or invalid id")

// ErrNoOwner is returned when a request carries neither a user nor a guest id.
var ErrNoOwner = errors.New("cart owner required")

// Querier captures the database methods required by the cart service.
type Querier interface {
	GetCartByUser(ctx context.Context, userID pgtype.UUID) (dbgen.Cart, error)
	GetActiveCartByAnon(ctx context.Context, anonID pgtype.Text) (dbgen.Cart, error)
	LockCart(ctx context.Context, id pgtype.UUID) (dbgen.Cart, error)
	CreateCart(ctx context.Context, arg dbgen.CreateCartParams) (dbgen.Cart, error)
	TouchCart(ctx context.Context, arg dbgen.TouchCartParams) error
	DeleteCart(ctx context.Context, id pgtype.UUID) error
	DeleteExpiredGuestCarts(ctx context.Context, before pgtype.Timestamptz) (int64, error)
	ListCartLines(ctx context.Context, cartID pgtype.UUID) ([]dbgen.ListCartLinesRow, error)
	UpsertCartItem(ctx context.Context, arg dbgen.UpsertCartItemParams) error
	DeleteCartItem(ctx context.Context, arg dbgen.DeleteCartItemParams) (int64, error)
	ClearCart(ctx context.Context, cartID pgtype.UUID) error
	GetBook(ctx context.Context, id int64) (dbgen.Book, error)
}

// Owner identifies whose cart is addressed. UserID wins over AnonID.
type Owner struct {
	UserID string
	AnonID string
}

func (o Owner) String() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	return "guest:" + o.AnonID
}

// Service persists cart aggregates.
type Service struct {
	Q Querier
	// Tx runs fn inside a transaction. When nil, fn runs directly against Q.
	Tx     func(ctx context.Context, fn func(Querier) error) error
	TTL    time.Duration
	Now    func() time.Time
	Logger zerolog.Logger
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return DefaultGuestTTL
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) inTx(ctx context.Context, fn func(Querier) error) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	if s.Tx != nil {
		return s.Tx(ctx, fn)
	}
	return fn(s.Q)
}

// Load returns the owner's cart, or an empty cart when none exists yet.
func (s *Service) Load(ctx context.Context, owner Owner) (Cart, error) {
	if s == nil || s.Q == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	row, err := s.find(ctx, s.Q, owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{Owner: owner.String(), Items: []LineItem{}}, nil
		}
		return Cart{}, err
	}
	return s.hydrate(ctx, s.Q, row, owner)
}

// AddItem adds qty copies of bookID at its current price. It reports whether a
// new line was created.
func (s *Service) AddItem(ctx context.Context, owner Owner, bookID int64, qty int) (Cart, bool, error) {
	if bookID <= 0 {
		return Cart{}, false, ErrBookUnavailable
	}
	if !validQuantity(qty) {
		return Cart{}, false, ErrInvalidQuantity
	}
	var created bool
	c, err := s.mutate(ctx, owner, true, "add", func(q Querier, c *Cart) error {
		b, err := q.GetBook(ctx, bookID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrBookUnavailable
			}
			return err
		}
		if !b.Stock {
			return ErrBookUnavailable
		}
		created, err = c.Add(LineItem{
			BookID:    b.ID,
			Title:     b.Title,
			Author:    b.Author,
			Image:     b.Image.String,
			UnitPrice: b.Price,
			Quantity:  qty,
			WeightKg:  weightOf(b.WeightKg),
		}, s.now())
		return err
	})
	return c, created, err
}

// SetQuantity sets an absolute quantity; below 1 removes the line.
func (s *Service) SetQuantity(ctx context.Context, owner Owner, bookID int64, qty int) (Cart, error) {
	return s.mutate(ctx, owner, false, "set_quantity", func(_ Querier, c *Cart) error {
		return c.SetQuantity(bookID, qty)
	})
}

// RemoveItem drops a single book.
func (s *Service) RemoveItem(ctx context.Context, owner Owner, bookID int64) (Cart, error) {
	return s.mutate(ctx, owner, false, "remove", func(_ Querier, c *Cart) error {
		return c.Remove(bookID)
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, owner Owner) (Cart, error) {
	c, err := s.mutate(ctx, owner, false, "clear", func(_ Querier, c *Cart) error {
		c.Clear()
		return nil
	})
	if errors.Is(err, ErrItemNotFound) {
		return Cart{Owner: owner.String(), Items: []LineItem{}}, nil
	}
	return c, err
}

// ToggleSelected flips the selection flag of one line.
func (s *Service) ToggleSelected(ctx context.Context, owner Owner, bookID int64) (Cart, error) {
	return s.mutate(ctx, owner, false, "toggle", func(_ Querier, c *Cart) error {
		_, err := c.ToggleSelected(bookID)
		return err
	})
}

// SelectAll sets the selection flag on every line.
func (s *Service) SelectAll(ctx context.Context, owner Owner, selected bool) (Cart, error) {
	return s.mutate(ctx, owner, false, "select_all", func(_ Querier, c *Cart) error {
		c.SelectAll(selected)
		return nil
	})
}

// RemoveSelected drops every selected line and returns the count removed.
func (s *Service) RemoveSelected(ctx context.Context, owner Owner) (Cart, int, error) {
	var removed int
	c, err := s.mutate(ctx, owner, false, "remove_selected", func(_ Querier, c *Cart) error {
		removed = c.RemoveSelected()
		return nil
	})
	return c, removed, err
}

// Merge folds the guest cart identified by anonID into the user's cart,
// summing quantities per book, and deletes the guest cart.
func (s *Service) Merge(ctx context.Context, anonID, userID string) (Cart, error) {
	if anonID == "" || userID == "" {
		return Cart{}, ErrNoOwner
	}
	guestOwner := Owner{AnonID: anonID}
	var merged Cart
	err := s.inTx(ctx, func(q Querier) error {
		guestRow, err := s.find(ctx, q, guestOwner)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				merged, err = s.loadWith(ctx, q, Owner{UserID: userID})
				return err
			}
			return err
		}
		guest, err := s.hydrate(ctx, q, guestRow, guestOwner)
		if err != nil {
			return err
		}
		merged, err = s.apply(ctx, q, Owner{UserID: userID}, true, func(_ Querier, c *Cart) error {
			for _, it := range guest.Items {
				if _, err := c.Absorb(it, s.now()); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		return q.DeleteCart(ctx, guestRow.ID)
	})
	if err == nil {
		obs.Inc(obs.CartMutationsTotal, "merge")
	}
	return merged, err
}

// Quote prices the whole cart and the selected subset.
func (s *Service) Quote(ctx context.Context, owner Owner, in pricing.Input) (Cart, pricing.Breakdown, error) {
	c, err := s.Load(ctx, owner)
	if err != nil {
		return Cart{}, pricing.Breakdown{}, err
	}
	in.Lines = c.Lines()
	return c, s.Price(in), nil
}

// Price runs the calculator and records the quote.
func (s *Service) Price(in pricing.Input) pricing.Breakdown {
	b := pricing.Quote(in)
	if s != nil && b.RegionDefaulted {
		s.Logger.Debug().Str("region", in.Region).Msg("unknown region, using fallback rates")
	}
	obs.Inc(obs.PriceQuotesTotal, b.Currency, fmt.Sprint(b.RegionDefaulted))
	return b
}

// Subtotal returns the cart subtotal converted into currency.
func (s *Service) Subtotal(ctx context.Context, owner Owner, currency string) (decimal.Decimal, error) {
	c, err := s.Load(ctx, owner)
	if err != nil {
		return decimal.Zero, err
	}
	return pricing.Convert(pricing.ComputeSubtotal(c.Lines()), pricing.BaseCurrency, currency), nil
}

// PurgeExpiredGuests deletes guest carts whose TTL has lapsed.
func (s *Service) PurgeExpiredGuests(ctx context.Context) (int64, error) {
	if s == nil || s.Q == nil {
		return 0, errors.New("cart service not configured")
	}
	return s.Q.DeleteExpiredGuestCarts(ctx, pgtype.Timestamptz{Time: s.now(), Valid: true})
}

// LoadTx loads and locks the owner's cart inside an existing transaction.
func (s *Service) LoadTx(ctx context.Context, q Querier, owner Owner) (Cart, error) {
	return s.loadWith(ctx, q, owner)
}

// RemoveLinesTx deletes the given books from the owner's cart inside an
// existing transaction.
func (s *Service) RemoveLinesTx(ctx context.Context, q Querier, cartID string, bookIDs []int64) error {
	id, err := toUUID(cartID)
	if err != nil {
		return fmt.Errorf("parse cart id: %w", err)
	}
	for _, bookID := range bookIDs {
		if _, err := q.DeleteCartItem(ctx, dbgen.DeleteCartItemParams{CartID: id, BookID: bookID}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, owner Owner, create bool, op string, fn func(Querier, *Cart) error) (Cart, error) {
	var out Cart
	err := s.inTx(ctx, func(q Querier) error {
		var err error
		out, err = s.apply(ctx, q, owner, create, fn)
		return err
	})
	if err != nil {
		return Cart{}, err
	}
	obs.Inc(obs.CartMutationsTotal, op)
	return out, nil
}

// apply locks the cart row, runs fn on the aggregate and writes back the diff.
func (s *Service) apply(ctx context.Context, q Querier, owner Owner, create bool, fn func(Querier, *Cart) error) (Cart, error) {
	row, err := s.find(ctx, q, owner)
	switch {
	case errors.Is(err, pgx.ErrNoRows) && create:
		row, err = s.create(ctx, q, owner)
		if err != nil {
			return Cart{}, err
		}
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, ErrNoOwner) && !create:
		return Cart{}, ErrItemNotFound
	case err != nil:
		return Cart{}, err
	}
	if _, err := q.LockCart(ctx, row.ID); err != nil {
		return Cart{}, err
	}
	c, err := s.hydrate(ctx, q, row, owner)
	if err != nil {
		return Cart{}, err
	}
	before := make(map[int64]LineItem, len(c.Items))
	for _, it := range c.Items {
		before[it.BookID] = it
	}
	if err := fn(q, &c); err != nil {
		return Cart{}, err
	}
	if err := persist(ctx, q, row.ID, before, c.Items); err != nil {
		return Cart{}, err
	}
	expires := pgtype.Timestamptz{Time: s.now().Add(s.ttl()), Valid: true}
	if err := q.TouchCart(ctx, dbgen.TouchCartParams{ID: row.ID, ExpiresAt: expires}); err != nil {
		return Cart{}, err
	}
	return c, nil
}

func persist(ctx context.Context, q Querier, cartID pgtype.UUID, before map[int64]LineItem, after []LineItem) error {
	if len(after) == 0 && len(before) > 0 {
		return q.ClearCart(ctx, cartID)
	}
	seen := make(map[int64]struct{}, len(after))
	for _, it := range after {
		seen[it.BookID] = struct{}{}
		prev, ok := before[it.BookID]
		if ok && prev.Quantity == it.Quantity && prev.Selected == it.Selected && prev.UnitPrice.Equal(it.UnitPrice) {
			continue
		}
		if err := q.UpsertCartItem(ctx, dbgen.UpsertCartItemParams{
			CartID:    cartID,
			BookID:    it.BookID,
			Quantity:  int32(it.Quantity),
			UnitPrice: it.UnitPrice,
			Selected:  it.Selected,
		}); err != nil {
			return fmt.Errorf("upsert cart item %d: %w", it.BookID, err)
		}
	}
	for id := range before {
		if _, ok := seen[id]; ok {
			continue
		}
		if _, err := q.DeleteCartItem(ctx, dbgen.DeleteCartItemParams{CartID: cartID, BookID: id}); err != nil {
			return fmt.Errorf("delete cart item %d: %w", id, err)
		}
	}
	return nil
}

func (s *Service) loadWith(ctx context.Context, q Querier, owner Owner) (Cart, error) {
	row, err := s.find(ctx, q, owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{Owner: owner.String(), Items: []LineItem{}}, nil
		}
		return Cart{}, err
	}
	if _, err := q.LockCart(ctx, row.ID); err != nil {
		return Cart{}, err
	}
	return s.hydrate(ctx, q, row, owner)
}

func (s *Service) find(ctx context.Context, q Querier, owner Owner) (dbgen.Cart, error) {
	switch {
	case owner.UserID != "":
		uid, err := toUUID(owner.UserID)
		if err != nil {
			return dbgen.Cart{}, fmt.Errorf("parse user id: %w", err)
		}
		return q.GetCartByUser(ctx, uid)
	case owner.AnonID != "":
		return q.GetActiveCartByAnon(ctx, pgtype.Text{String: owner.AnonID, Valid: true})
	default:
		return dbgen.Cart{}, ErrNoOwner
	}
}

func (s *Service) create(ctx context.Context, q Querier, owner Owner) (dbgen.Cart, error) {
	params := dbgen.CreateCartParams{}
	if owner.UserID != "" {
		uid, err := toUUID(owner.UserID)
		if err != nil {
			return dbgen.Cart{}, fmt.Errorf("parse user id: %w", err)
		}
		params.UserID = uid
	} else {
		params.AnonID = pgtype.Text{String: owner.AnonID, Valid: true}
		params.ExpiresAt = pgtype.Timestamptz{Time: s.now().Add(s.ttl()), Valid: true}
	}
	return q.CreateCart(ctx, params)
}

func (s *Service) hydrate(ctx context.Context, q Querier, row dbgen.Cart, owner Owner) (Cart, error) {
	lines, err := q.ListCartLines(ctx, row.ID)
	if err != nil {
		return Cart{}, err
	}
	c := Cart{ID: uuidString(row.ID), Owner: owner.String(), Items: make([]LineItem, 0, len(lines))}
	for _, l := range lines {
		c.Items = append(c.Items, LineItem{
			BookID:    l.BookID,
			Title:     l.Title,
			Author:    l.Author,
			Image:     l.Image.String,
			UnitPrice: l.Price,
			Quantity:  int(l.Quantity),
			Selected:  l.Selected,
			WeightKg:  weightOf(l.WeightKg),
			AddedAt:   l.CreatedAt.Time,
		})
	}
	return c, nil
}

func weightOf(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
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
