package dbgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createReview = `-- name: CreateReview :one
INSERT INTO reviews (book_id, user_id, rating, comment)
VALUES ($1, $2, $3, $4)
RETURNING id, book_id, user_id, rating, comment, created_at`

type CreateReviewParams struct {
	BookID  int64
	UserID  pgtype.UUID
	Rating  int32
	Comment pgtype.Text
}

func (q *Queries) CreateReview(ctx context.Context, arg CreateReviewParams) (Review, error) {
	row := q.db.QueryRow(ctx, createReview, arg.BookID, arg.UserID, arg.Rating, arg.Comment)
	var i Review
	err := row.Scan(
		&i.ID,
		&i.BookID,
		&i.UserID,
		&i.Rating,
		&i.Comment,
		&i.CreatedAt,
	)
	return i, err
}

const listReviewsByBook = `-- name: ListReviewsByBook :many
SELECT r.id, r.book_id, r.user_id, r.rating, r.comment, r.created_at, u.name AS user_name
FROM reviews r
JOIN users u ON u.id = r.user_id
WHERE r.book_id = $1
ORDER BY r.created_at DESC
LIMIT $2 OFFSET $3`

type ListReviewsByBookParams struct {
	BookID int64
	Limit  int32
	Offset int32
}

type ListReviewsByBookRow struct {
	ID        pgtype.UUID
	BookID    int64
	UserID    pgtype.UUID
	Rating    int32
	Comment   pgtype.Text
	CreatedAt pgtype.Timestamptz
	UserName  string
}

func (q *Queries) ListReviewsByBook(ctx context.Context, arg ListReviewsByBookParams) ([]ListReviewsByBookRow, error) {
	rows, err := q.db.Query(ctx, listReviewsByBook, arg.BookID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListReviewsByBookRow{}
	for rows.Next() {
		var i ListReviewsByBookRow
		if err := rows.Scan(
			&i.ID,
			&i.BookID,
			&i.UserID,
			&i.Rating,
			&i.Comment,
			&i.CreatedAt,
			&i.UserName,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
