package dbgen

import (
	"context"

	"github.com/shopspring/decimal"
)

const bookColumns = `id, title, author, category, price, rating, review_count, stock, weight_kg, image, description, created_at`

func scanBook(row interface{ Scan(dest ...any) error }) (Book, error) {
	var i Book
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Author,
		&i.Category,
		&i.Price,
		&i.Rating,
		&i.ReviewCount,
		&i.Stock,
		&i.WeightKg,
		&i.Image,
		&i.Description,
		&i.CreatedAt,
	)
	return i, err
}

const getBook = `-- name: GetBook :one
SELECT ` + bookColumns + ` FROM books WHERE id = $1`

func (q *Queries) GetBook(ctx context.Context, id int64) (Book, error) {
	row := q.db.QueryRow(ctx, getBook, id)
	return scanBook(row)
}

const bookFilter = `
WHERE stock = TRUE
  AND price >= $3 AND price <= $4
  AND rating >= $5
  AND ($1::text = '' OR title ILIKE '%' || $1 || '%' OR author ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
  AND ($2::text = '' OR category = $2)`

const listBooks = `-- name: ListBooks :many
SELECT ` + bookColumns + ` FROM books` + bookFilter + `
ORDER BY
  CASE WHEN $6::text = 'price' THEN price END DESC,
  CASE WHEN $6::text = 'createdAt' THEN created_at END DESC,
  CASE WHEN $6::text = 'rating' THEN rating END DESC,
  id DESC
LIMIT $7 OFFSET $8`

type ListBooksParams struct {
	Search    string
	Category  string
	MinPrice  decimal.Decimal
	MaxPrice  decimal.Decimal
	MinRating decimal.Decimal
	Sort      string
	Limit     int32
	Offset    int32
}

func (q *Queries) ListBooks(ctx context.Context, arg ListBooksParams) ([]Book, error) {
	rows, err := q.db.Query(ctx, listBooks,
		arg.Search,
		arg.Category,
		arg.MinPrice,
		arg.MaxPrice,
		arg.MinRating,
		arg.Sort,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Book{}
	for rows.Next() {
		i, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countBooks = `-- name: CountBooks :one
SELECT count(*) FROM books` + bookFilter

type CountBooksParams struct {
	Search    string
	Category  string
	MinPrice  decimal.Decimal
	MaxPrice  decimal.Decimal
	MinRating decimal.Decimal
}

func (q *Queries) CountBooks(ctx context.Context, arg CountBooksParams) (int64, error) {
	row := q.db.QueryRow(ctx, countBooks,
		arg.Search,
		arg.Category,
		arg.MinPrice,
		arg.MaxPrice,
		arg.MinRating,
	)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const refreshBookRating = `-- name: RefreshBookRating :one
UPDATE books SET
  rating = COALESCE((SELECT round(avg(rating)::numeric, 2) FROM reviews WHERE book_id = $1), 0),
  review_count = (SELECT count(*) FROM reviews WHERE book_id = $1)
WHERE id = $1
RETURNING rating, review_count`

type RefreshBookRatingRow struct {
	Rating      decimal.Decimal
	ReviewCount int32
}

func (q *Queries) RefreshBookRating(ctx context.Context, bookID int64) (RefreshBookRatingRow, error) {
	row := q.db.QueryRow(ctx, refreshBookRating, bookID)
	var i RefreshBookRatingRow
	err := row.Scan(&i.Rating, &i.ReviewCount)
	return i, err
}

const listBookCategories = `-- name: ListBookCategories :many
SELECT category, count(*) AS books FROM books WHERE stock = TRUE GROUP BY category ORDER BY category`

type ListBookCategoriesRow struct {
	Category string
	Books    int64
}

func (q *Queries) ListBookCategories(ctx context.Context) ([]ListBookCategoriesRow, error) {
	rows, err := q.db.Query(ctx, listBookCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListBookCategoriesRow{}
	for rows.Next() {
		var i ListBookCategoriesRow
		if err := rows.Scan(&i.Category, &i.Books); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
