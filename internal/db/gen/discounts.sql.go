package dbgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const discountColumns = `code, percentage, min_amount, min_amount_currency, max_uses, uses_left, expires_at, currencies, regions, description, active, created_at`

func scanDiscountCode(row interface{ Scan(dest ...any) error }) (DiscountCode, error) {
	var i DiscountCode
	err := row.Scan(
		&i.Code,
		&i.Percentage,
		&i.MinAmount,
		&i.MinAmountCurrency,
		&i.MaxUses,
		&i.UsesLeft,
		&i.ExpiresAt,
		&i.Currencies,
		&i.Regions,
		&i.Description,
		&i.Active,
		&i.CreatedAt,
	)
	return i, err
}

const getDiscountCode = `-- name: GetDiscountCode :one
SELECT ` + discountColumns + ` FROM discount_codes WHERE code = upper($1) AND active = TRUE`

func (q *Queries) GetDiscountCode(ctx context.Context, code string) (DiscountCode, error) {
	row := q.db.QueryRow(ctx, getDiscountCode, code)
	return scanDiscountCode(row)
}

const listDiscountCodes = `-- name: ListDiscountCodes :many
SELECT ` + discountColumns + ` FROM discount_codes ORDER BY code`

func (q *Queries) ListDiscountCodes(ctx context.Context) ([]DiscountCode, error) {
	rows, err := q.db.Query(ctx, listDiscountCodes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []DiscountCode{}
	for rows.Next() {
		i, err := scanDiscountCode(rows)
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

const createDiscountCode = `-- name: CreateDiscountCode :one
INSERT INTO discount_codes (code, percentage, min_amount, min_amount_currency, max_uses, uses_left, expires_at, currencies, regions, description, active)
VALUES (upper($1), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + discountColumns

type CreateDiscountCodeParams struct {
	Code              string
	Percentage        int32
	MinAmount         decimal.Decimal
	MinAmountCurrency string
	MaxUses           int32
	UsesLeft          int32
	ExpiresAt         pgtype.Timestamptz
	Currencies        []string
	Regions           []string
	Description       string
	Active            bool
}

func (q *Queries) CreateDiscountCode(ctx context.Context, arg CreateDiscountCodeParams) (DiscountCode, error) {
	row := q.db.QueryRow(ctx, createDiscountCode,
		arg.Code,
		arg.Percentage,
		arg.MinAmount,
		arg.MinAmountCurrency,
		arg.MaxUses,
		arg.UsesLeft,
		arg.ExpiresAt,
		arg.Currencies,
		arg.Regions,
		arg.Description,
		arg.Active,
	)
	return scanDiscountCode(row)
}

const decrementDiscountUses = `-- name: DecrementDiscountUses :one
UPDATE discount_codes SET uses_left = uses_left - 1
WHERE code = upper($1) AND active = TRUE AND uses_left > 0
RETURNING uses_left`

// DecrementDiscountUses returns pgx.ErrNoRows when the code has no uses left.
func (q *Queries) DecrementDiscountUses(ctx context.Context, code string) (int32, error) {
	row := q.db.QueryRow(ctx, decrementDiscountUses, code)
	var usesLeft int32
	err := row.Scan(&usesLeft)
	return usesLeft, err
}

const insertDiscountRedemption = `-- name: InsertDiscountRedemption :exec
INSERT INTO discount_redemptions (code, order_id, user_id) VALUES (upper($1), $2, $3)`

type InsertDiscountRedemptionParams struct {
	Code    string
	OrderID pgtype.UUID
	UserID  pgtype.UUID
}

func (q *Queries) InsertDiscountRedemption(ctx context.Context, arg InsertDiscountRedemptionParams) error {
	_, err := q.db.Exec(ctx, insertDiscountRedemption, arg.Code, arg.OrderID, arg.UserID)
	return err
}
