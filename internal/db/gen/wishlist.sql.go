package dbgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const listWishlist = `-- name: ListWishlist :many
SELECT w.book_id, w.created_at, b.title, b.author, b.price, b.rating, b.stock, b.image
FROM wishlist_items w
JOIN books b ON b.id = w.book_id
WHERE w.user_id = $1
ORDER BY w.created_at DESC`

type ListWishlistRow struct {
	BookID    int64
	CreatedAt pgtype.Timestamptz
	Title     string
	Author    string
	Price     decimal.Decimal
	Rating    decimal.Decimal
	Stock     bool
	Image     pgtype.Text
}

func (q *Queries) ListWishlist(ctx context.Context, userID pgtype.UUID) ([]ListWishlistRow, error) {
	rows, err := q.db.Query(ctx, listWishlist, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListWishlistRow{}
	for rows.Next() {
		var i ListWishlistRow
		if err := rows.Scan(
			&i.BookID,
			&i.CreatedAt,
			&i.Title,
			&i.Author,
			&i.Price,
			&i.Rating,
			&i.Stock,
			&i.Image,
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

const addWishlistItem = `-- name: AddWishlistItem :exec
INSERT INTO wishlist_items (user_id, book_id) VALUES ($1, $2)
ON CONFLICT (user_id, book_id) DO NOTHING`

type AddWishlistItemParams struct {
	UserID pgtype.UUID
	BookID int64
}

func (q *Queries) AddWishlistItem(ctx context.Context, arg AddWishlistItemParams) error {
	_, err := q.db.Exec(ctx, addWishlistItem, arg.UserID, arg.BookID)
	return err
}

const removeWishlistItem = `-- name: RemoveWishlistItem :execrows
DELETE FROM wishlist_items WHERE user_id = $1 AND book_id = $2`

type RemoveWishlistItemParams struct {
	UserID pgtype.UUID
	BookID int64
}

func (q *Queries) RemoveWishlistItem(ctx context.Context, arg RemoveWishlistItemParams) (int64, error) {
	result, err := q.db.Exec(ctx, removeWishlistItem, arg.UserID, arg.BookID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
