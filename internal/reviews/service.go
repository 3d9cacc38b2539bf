package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
)

var (
	// ErrBookNotFound indicates the reviewed book does not exist.
	ErrBookNotFound = errors.New("book not found")
	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// Querier captures the database methods required by the review service.
type Querier interface {
	GetBook(ctx context.Context, id int64) (dbgen.Book, error)
	CreateReview(ctx context.Context, arg dbgen.CreateReviewParams) (dbgen.Review, error)
	ListReviewsByBook(ctx context.Context, arg dbgen.ListReviewsByBookParams) ([]dbgen.ListReviewsByBookRow, error)
	RefreshBookRating(ctx context.Context, bookID int64) (dbgen.RefreshBookRatingRow, error)
}

// Review is the public review payload.
type Review struct {
	ID        string    `json:"id"`
	BookID    int64     `json:"bookId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName,omitempty"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Created carries the stored review and the refreshed book aggregate.
type Created struct {
	Review      Review          `json:"review"`
	BookRating  decimal.Decimal `json:"bookRating"`
	ReviewCount int             `json:"reviewCount"`
}

type Service struct {
	Q  Querier
	Tx func(ctx context.Context, fn func(Querier) error) error
	// OnChange runs after a review commits, e.g. to drop cached book payloads.
	OnChange func(ctx context.Context, bookID int64)
}

func (s *Service) inTx(ctx context.Context, fn func(Querier) error) error {
	if s == nil || s.Q == nil {
		return errors.New("review service not configured")
	}
	if s.Tx != nil {
		return s.Tx(ctx, fn)
	}
	return fn(s.Q)
}

// Create stores a review and recomputes the book's rating and review count
// in the same transaction.
func (s *Service) Create(ctx context.Context, userID string, bookID int64, rating int, comment string) (Created, error) {
	if rating < 1 || rating > 5 {
		return Created{}, ErrInvalidRating
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return Created{}, fmt.Errorf("parse user id: %w", err)
	}
	comment = strings.TrimSpace(comment)

	var out Created
	err = s.inTx(ctx, func(q Querier) error {
		if _, err := q.GetBook(ctx, bookID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrBookNotFound
			}
			return err
		}
		row, err := q.CreateReview(ctx, dbgen.CreateReviewParams{
			BookID:  bookID,
			UserID:  pgtype.UUID{Bytes: uid, Valid: true},
			Rating:  int32(rating),
			Comment: pgtype.Text{String: comment, Valid: comment != ""},
		})
		if err != nil {
			return fmt.Errorf("create review: %w", err)
		}
		agg, err := q.RefreshBookRating(ctx, bookID)
		if err != nil {
			return fmt.Errorf("refresh book rating: %w", err)
		}
		out = Created{
			Review:      fromRow(row.ID, row.BookID, row.UserID, row.Rating, row.Comment, row.CreatedAt, ""),
			BookRating:  agg.Rating,
			ReviewCount: int(agg.ReviewCount),
		}
		return nil
	})
	if err != nil {
		return Created{}, err
	}
	if s.OnChange != nil {
		s.OnChange(ctx, bookID)
	}
	return out, nil
}

// List returns a book's reviews, newest first.
func (s *Service) List(ctx context.Context, bookID int64, skip, limit int) ([]Review, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("review service not configured")
	}
	if limit < 1 {
		limit = 20
	}
	rows, err := s.Q.ListReviewsByBook(ctx, dbgen.ListReviewsByBookParams{
		BookID: bookID,
		Limit:  int32(limit),
		Offset: int32(max(skip, 0)),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Review, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r.ID, r.BookID, r.UserID, r.Rating, r.Comment, r.CreatedAt, r.UserName))
	}
	return out, nil
}

func fromRow(id pgtype.UUID, bookID int64, userID pgtype.UUID, rating int32, comment pgtype.Text, created pgtype.Timestamptz, userName string) Review {
	r := Review{
		ID:        uuidString(id),
		BookID:    bookID,
		UserID:    uuidString(userID),
		UserName:  userName,
		Rating:    int(rating),
		CreatedAt: created.Time,
	}
	if comment.Valid {
		c := comment.String
		r.Comment = &c
	}
	return r
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}
