package dbgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const cartColumns = `id, user_id, anon_id, expires_at, created_at, updated_at`

func scanCart(row interface{ Scan(dest ...any) error }) (Cart, error) {
	var i Cart
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.AnonID,
		&i.ExpiresAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getCartByUser = `-- name: GetCartByUser :one
SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1`

func (q *Queries) GetCartByUser(ctx context.Context, userID pgtype.UUID) (Cart, error) {
	row := q.db.QueryRow(ctx, getCartByUser, userID)
	return scanCart(row)
}

const getActiveCartByAnon = `-- name: GetActiveCartByAnon :one
SELECT ` + cartColumns + ` FROM carts
WHERE anon_id = $1 AND user_id IS NULL AND (expires_at IS NULL OR expires_at > now())`

func (q *Queries) GetActiveCartByAnon(ctx context.Context, anonID pgtype.Text) (Cart, error) {
	row := q.db.QueryRow(ctx, getActiveCartByAnon, anonID)
	return scanCart(row)
}

const lockCart = `-- name: LockCart :one
SELECT ` + cartColumns + ` FROM carts WHERE id = $1 FOR UPDATE`

func (q *Queries) LockCart(ctx context.Context, id pgtype.UUID) (Cart, error) {
	row := q.db.QueryRow(ctx, lockCart, id)
	return scanCart(row)
}

const createCart = `-- name: CreateCart :one
INSERT INTO carts (user_id, anon_id, expires_at)
VALUES ($1, $2, $3)
RETURNING ` + cartColumns

type CreateCartParams struct {
	UserID    pgtype.UUID
	AnonID    pgtype.Text
	ExpiresAt pgtype.Timestamptz
}

func (q *Queries) CreateCart(ctx context.Context, arg CreateCartParams) (Cart, error) {
	row := q.db.QueryRow(ctx, createCart, arg.UserID, arg.AnonID, arg.ExpiresAt)
	return scanCart(row)
}

const touchCart = `-- name: TouchCart :exec
UPDATE carts SET expires_at = $2, updated_at = now() WHERE id = $1`

type TouchCartParams struct {
	ID        pgtype.UUID
	ExpiresAt pgtype.Timestamptz
}

func (q *Queries) TouchCart(ctx context.Context, arg TouchCartParams) error {
	_, err := q.db.Exec(ctx, touchCart, arg.ID, arg.ExpiresAt)
	return err
}

const deleteCart = `-- name: DeleteCart :exec
DELETE FROM carts WHERE id = $1`

func (q *Queries) DeleteCart(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, deleteCart, id)
	return err
}

const deleteExpiredGuestCarts = `-- name: DeleteExpiredGuestCarts :execrows
DELETE FROM carts WHERE user_id IS NULL AND expires_at IS NOT NULL AND expires_at <= $1`

func (q *Queries) DeleteExpiredGuestCarts(ctx context.Context, before pgtype.Timestamptz) (int64, error) {
	result, err := q.db.Exec(ctx, deleteExpiredGuestCarts, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listCartLines = `-- name: ListCartLines :many
SELECT ci.cart_id, ci.book_id, ci.quantity, ci.selected, ci.created_at,
       b.title, b.author, b.price, b.stock, b.weight_kg, b.image
FROM cart_items ci
JOIN books b ON b.id = ci.book_id
WHERE ci.cart_id = $1
ORDER BY ci.created_at, ci.book_id`

type ListCartLinesRow struct {
	CartID    pgtype.UUID
	BookID    int64
	Quantity  int32
	Selected  bool
	CreatedAt pgtype.Timestamptz
	Title     string
	Author    string
	Price     decimal.Decimal
	Stock     bool
	WeightKg  decimal.NullDecimal
	Image     pgtype.Text
}

func (q *Queries) ListCartLines(ctx context.Context, cartID pgtype.UUID) ([]ListCartLinesRow, error) {
	rows, err := q.db.Query(ctx, listCartLines, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListCartLinesRow{}
	for rows.Next() {
		var i ListCartLinesRow
		if err := rows.Scan(
			&i.CartID,
			&i.BookID,
			&i.Quantity,
			&i.Selected,
			&i.CreatedAt,
			&i.Title,
			&i.Author,
			&i.Price,
			&i.Stock,
			&i.WeightKg,
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

const upsertCartItem = `-- name: UpsertCartItem :exec
INSERT INTO cart_items (cart_id, book_id, quantity, unit_price, selected)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (cart_id, book_id) DO UPDATE SET
  quantity = EXCLUDED.quantity,
  unit_price = EXCLUDED.unit_price,
  selected = EXCLUDED.selected,
  updated_at = now()`

type UpsertCartItemParams struct {
	CartID    pgtype.UUID
	BookID    int64
	Quantity  int32
	UnitPrice decimal.Decimal
	Selected  bool
}

func (q *Queries) UpsertCartItem(ctx context.Context, arg UpsertCartItemParams) error {
	_, err := q.db.Exec(ctx, upsertCartItem,
		arg.CartID,
		arg.BookID,
		arg.Quantity,
		arg.UnitPrice,
		arg.Selected,
	)
	return err
}

const deleteCartItem = `-- name: DeleteCartItem :execrows
DELETE FROM cart_items WHERE cart_id = $1 AND book_id = $2`

type DeleteCartItemParams struct {
	CartID pgtype.UUID
	BookID int64
}

func (q *Queries) DeleteCartItem(ctx context.Context, arg DeleteCartItemParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteCartItem, arg.CartID, arg.BookID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const clearCart = `-- name: ClearCart :exec
DELETE FROM cart_items WHERE cart_id = $1`

func (q *Queries) ClearCart(ctx context.Context, cartID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, clearCart, cartID)
	return err
}
