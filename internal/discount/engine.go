package discount

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/bookwise-api/internal/pricing"
)

// WildcardRegion marks a code as valid in every region.
const WildcardRegion = "all"

var (
	// ErrCodeNotFound is returned when no active code matches.
	ErrCodeNotFound = errors.New("discount code not found")
	// ErrCodeExhausted indicates the code has no uses left.
	ErrCodeExhausted = errors.New("discount code exhausted")
	// ErrCodeExpired indicates the code is past its expiry.
	ErrCodeExpired = errors.New("discount code expired")
	// ErrCurrencyNotEligible indicates the active currency is not accepted by the code.
	ErrCurrencyNotEligible = errors.New("discount code not valid for currency")
	// ErrRegionNotEligible indicates the shopper's region is not accepted by the code.
	ErrRegionNotEligible = errors.New("discount code not valid in region")
	// ErrMinimumNotMet indicates the subtotal is below the converted minimum.
	ErrMinimumNotMet = errors.New("discount code minimum not met")
)

// InvalidError carries the shopper-facing reason alongside the sentinel cause.
type InvalidError struct {
	Err    error
	Reason string
}

func (e *InvalidError) Error() string { return e.Reason }

func (e *InvalidError) Unwrap() error { return e.Err }

func invalid(err error, reason string) error {
	return &InvalidError{Err: err, Reason: reason}
}

// Code is a redeemable percentage discount.
type Code struct {
	Code              string          `json:"code"`
	Percentage        int             `json:"percentage"`
	MinAmount         decimal.Decimal `json:"minAmount"`
	MinAmountCurrency string          `json:"minAmountCurrency"`
	MaxUses           int             `json:"maxUses"`
	UsesLeft          int             `json:"usesLeft"`
	ExpiresAt         time.Time       `json:"expiresAt"`
	Currencies        []string        `json:"currencies"`
	Regions           []string        `json:"regions"`
	Description       string          `json:"description"`
}

// Result is the outcome of validating a code against a cart snapshot.
type Result struct {
	Code       string `json:"code"`
	Valid      bool   `json:"valid"`
	Percentage int    `json:"percentage"`
	Reason     string `json:"reason,omitempty"`
}

// NormalizeCode canonicalises a code for lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check applies the eligibility rules in order and returns the first failure.
// subtotal is expressed in currency.
func (c Code) Check(subtotal decimal.Decimal, currency, region string, now time.Time) error {
	currency = pricing.NormalizeCode(currency)
	region = pricing.NormalizeCode(region)

	if c.UsesLeft <= 0 {
		return invalid(ErrCodeExhausted, "Code exhausted")
	}
	if now.After(c.ExpiresAt) {
		return invalid(ErrCodeExpired, "Code expired")
	}
	if !slices.ContainsFunc(c.Currencies, func(v string) bool { return strings.EqualFold(v, currency) }) {
		return invalid(ErrCurrencyNotEligible, "Code not valid for this currency")
	}
	if !c.validInRegion(region) {
		return invalid(ErrRegionNotEligible, "Code not valid in your region")
	}
	minimum := c.MinimumIn(currency)
	if subtotal.LessThan(minimum) {
		return invalid(ErrMinimumNotMet, fmt.Sprintf("Minimum %s %s required", minimum.StringFixed(2), currency))
	}
	return nil
}

// MinimumIn converts the code's minimum order amount into currency.
func (c Code) MinimumIn(currency string) decimal.Decimal {
	from := c.MinAmountCurrency
	if from == "" {
		from = pricing.BaseCurrency
	}
	return pricing.Convert(c.MinAmount, from, currency)
}

func (c Code) validInRegion(region string) bool {
	for _, r := range c.Regions {
		if strings.EqualFold(r, WildcardRegion) || strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

// Evaluate validates a looked-up code. A nil code means the lookup found nothing.
func Evaluate(c *Code, requested string, subtotal decimal.Decimal, currency, region string, now time.Time) (Result, error) {
	res := Result{Code: NormalizeCode(requested)}
	if c == nil {
		err := invalid(ErrCodeNotFound, "Invalid discount code")
		res.Reason = err.Error()
		return res, err
	}
	if err := c.Check(subtotal, currency, region, now); err != nil {
		res.Reason = err.Error()
		return res, err
	}
	res.Valid = true
	res.Percentage = c.Percentage
	return res, nil
}

// SeedCodes returns the launch set of discount codes.
func SeedCodes() []Code {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
	}
	return []Code{
		{
			Code: "WELCOME10", Percentage: 10, MinAmount: decimal.NewFromInt(20), MinAmountCurrency: "USD",
			MaxUses: 1000, UsesLeft: 950, ExpiresAt: day(2026, time.December, 31),
			Currencies: []string{"USD", "EUR"}, Regions: []string{WildcardRegion}, Description: "Welcome discount",
		},
		{
			Code: "BOOKLOVER", Percentage: 15, MinAmount: decimal.NewFromInt(50), MinAmountCurrency: "USD",
			MaxUses: 500, UsesLeft: 420, ExpiresAt: day(2025, time.December, 31),
			Currencies: []string{"USD", "GBP"}, Regions: []string{WildcardRegion}, Description: "Book lovers special",
		},
		{
			Code: "CYBER20", Percentage: 20, MinAmount: decimal.NewFromInt(100), MinAmountCurrency: "USD",
			MaxUses: 200, UsesLeft: 150, ExpiresAt: day(2025, time.November, 30),
			Currencies: []string{"USD", "EUR", "BTC"}, Regions: []string{WildcardRegion}, Description: "Cyber Monday",
		},
		{
			Code: "ETB5OFF", Percentage: 5, MinAmount: decimal.NewFromInt(1000), MinAmountCurrency: "ETB",
			MaxUses: 300, UsesLeft: 280, ExpiresAt: day(2025, time.December, 31),
			Currencies: []string{"ETB"}, Regions: []string{"ET"}, Description: "Ethiopian special",
		},
	}
}
