package dbgen

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type User struct {
	ID           pgtype.UUID
	Name         string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

type Session struct {
	ID               pgtype.UUID
	UserID           pgtype.UUID
	RefreshTokenHash string
	UserAgent        pgtype.Text
	Ip               pgtype.Text
	ExpiresAt        pgtype.Timestamptz
	RevokedAt        pgtype.Timestamptz
	CreatedAt        pgtype.Timestamptz
}

type Book struct {
	ID          int64
	Title       string
	Author      string
	Category    string
	Price       decimal.Decimal
	Rating      decimal.Decimal
	ReviewCount int32
	Stock       bool
	WeightKg    decimal.NullDecimal
	Image       pgtype.Text
	Description pgtype.Text
	CreatedAt   pgtype.Timestamptz
}

type Cart struct {
	ID        pgtype.UUID
	UserID    pgtype.UUID
	AnonID    pgtype.Text
	ExpiresAt pgtype.Timestamptz
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

type CartItem struct {
	CartID    pgtype.UUID
	BookID    int64
	Quantity  int32
	UnitPrice decimal.Decimal
	Selected  bool
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

type DiscountCode struct {
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
	CreatedAt         pgtype.Timestamptz
}

type DiscountRedemption struct {
	Code       string
	OrderID    pgtype.UUID
	UserID     pgtype.UUID
	RedeemedAt pgtype.Timestamptz
}

type Order struct {
	ID              pgtype.UUID
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
	PaymentIntentID pgtype.Text
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
}

type OrderItem struct {
	OrderID   pgtype.UUID
	BookID    int64
	Title     string
	Quantity  int32
	UnitPrice decimal.Decimal
}

type Review struct {
	ID        pgtype.UUID
	BookID    int64
	UserID    pgtype.UUID
	Rating    int32
	Comment   pgtype.Text
	CreatedAt pgtype.Timestamptz
}

type WishlistItem struct {
	UserID    pgtype.UUID
	BookID    int64
	CreatedAt pgtype.Timestamptz
}
