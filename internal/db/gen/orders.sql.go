package dbgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, status, currency, region, subtotal, discount_code, discount_percent, discount, tax, shipping, extras, total, gift_wrap, express_shipping, notes, payment_intent_id, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Status,
		&i.Currency,
		&i.Region,
		&i.Subtotal,
		&i.DiscountCode,
		&i.DiscountPercent,
		&i.Discount,
		&i.Tax,
		&i.Shipping,
		&i.Extras,
		&i.Total,
		&i.GiftWrap,
		&i.ExpressShipping,
		&i.Notes,
		&i.PaymentIntentID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (user_id, status, currency, region, subtotal, discount_code, discount_percent, discount, tax, shipping, extras, total, gift_wrap, express_shipping, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	UserID          pgtype.UUID
	Status          string
	Currency        string
	Region          string
	Subtotal        decimal.Decimal
	DiscountCode    pgtype.Text
	DiscountPercent int32
	Discount        decimal.Decimal
	Tax             decimal.Decimal
	Shipping        decimal.Decimal
	Extras          decimal.Decimal
	Total           decimal.Decimal
	GiftWrap        bool
	ExpressShipping bool
	Notes           pgtype.Text
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.UserID,
		arg.Status,
		arg.Currency,
		arg.Region,
		arg.Subtotal,
		arg.DiscountCode,
		arg.DiscountPercent,
		arg.Discount,
		arg.Tax,
		arg.Shipping,
		arg.Extras,
		arg.Total,
		arg.GiftWrap,
		arg.ExpressShipping,
		arg.Notes,
	)
	return scanOrder(row)
}

const createOrderItem = `-- name: CreateOrderItem :exec
INSERT INTO order_items (order_id, book_id, title, quantity, unit_price) VALUES ($1, $2, $3, $4, $5)`

type CreateOrderItemParams struct {
	OrderID   pgtype.UUID
	BookID    int64
	Title     string
	Quantity  int32
	UnitPrice decimal.Decimal
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) error {
	_, err := q.db.Exec(ctx, createOrderItem,
		arg.OrderID,
		arg.BookID,
		arg.Title,
		arg.Quantity,
		arg.UnitPrice,
	)
	return err
}

const getOrderForUser = `-- name: GetOrderForUser :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`

type GetOrderForUserParams struct {
	ID     pgtype.UUID
	UserID pgtype.UUID
}

func (q *Queries) GetOrderForUser(ctx context.Context, arg GetOrderForUserParams) (Order, error) {
	row := q.db.QueryRow(ctx, getOrderForUser, arg.ID, arg.UserID)
	return scanOrder(row)
}

const listOrdersByUser = `-- name: ListOrdersByUser :many
SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

type ListOrdersByUserParams struct {
	UserID pgtype.UUID
	Limit  int32
	Offset int32
}

func (q *Queries) ListOrdersByUser(ctx context.Context, arg ListOrdersByUserParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUser, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
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

const listOrderItems = `-- name: ListOrderItems :many
SELECT order_id, book_id, title, quantity, unit_price FROM order_items WHERE order_id = $1 ORDER BY book_id`

func (q *Queries) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(
			&i.OrderID,
			&i.BookID,
			&i.Title,
			&i.Quantity,
			&i.UnitPrice,
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

const setOrderPaymentIntent = `-- name: SetOrderPaymentIntent :exec
UPDATE orders SET payment_intent_id = $2, status = $3, updated_at = now() WHERE id = $1`

type SetOrderPaymentIntentParams struct {
	ID              pgtype.UUID
	PaymentIntentID pgtype.Text
	Status          string
}

func (q *Queries) SetOrderPaymentIntent(ctx context.Context, arg SetOrderPaymentIntentParams) error {
	_, err := q.db.Exec(ctx, setOrderPaymentIntent, arg.ID, arg.PaymentIntentID, arg.Status)
	return err
}
