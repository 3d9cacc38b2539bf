package wishlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
)

// ErrBookNotFound indicates the book does not exist.
var ErrBookNotFound = errors.New("book not found")

type Querier interface {
	GetBook(ctx context.Context, id int64) (dbgen.Book, error)
	ListWishlist(ctx context.Context, userID pgtype.UUID) ([]dbgen.ListWishlistRow, error)
	AddWishlistItem(ctx context.Context, arg dbgen.AddWishlistItemParams) error
	RemoveWishlistItem(ctx context.Context, arg dbgen.RemoveWishlistItemParams) (int64, error)
}

// Item is a wishlisted book.
type Item struct {
	BookID  int64           `json:"bookId"`
	Title   string          `json:"title"`
	Author  string          `json:"author"`
	Price   decimal.Decimal `json:"price"`
	Rating  decimal.Decimal `json:"rating"`
	Stock   bool            `json:"stock"`
	Image   *string         `json:"image,omitempty"`
	AddedAt time.Time       `json:"addedAt"`
}

type Service struct {
	Q Querier
}

// List returns the user's wishlist, most recent first.
func (s *Service) List(ctx context.Context, userID string) ([]Item, error) {
	uid, err := toUUID(userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Q.ListWishlist(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(rows))
	for _, r := range rows {
		it := Item{
			BookID:  r.BookID,
			Title:   r.Title,
			Author:  r.Author,
			Price:   r.Price,
			Rating:  r.Rating,
			Stock:   r.Stock,
			AddedAt: r.CreatedAt.Time,
		}
		if r.Image.Valid {
			img := r.Image.String
			it.Image = &img
		}
		out = append(out, it)
	}
	return out, nil
}

// Add is idempotent: adding a book twice keeps a single entry.
func (s *Service) Add(ctx context.Context, userID string, bookID int64) ([]Item, error) {
	uid, err := toUUID(userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Q.GetBook(ctx, bookID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	if err := s.Q.AddWishlistItem(ctx, dbgen.AddWishlistItemParams{UserID: uid, BookID: bookID}); err != nil {
		return nil, err
	}
	return s.List(ctx, userID)
}

// Remove reports whether an entry was deleted.
func (s *Service) Remove(ctx context.Context, userID string, bookID int64) (bool, error) {
	uid, err := toUUID(userID)
	if err != nil {
		return false, err
	}
	n, err := s.Q.RemoveWishlistItem(ctx, dbgen.RemoveWishlistItemParams{UserID: uid, BookID: bookID})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func toUUID(value string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(value)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}
