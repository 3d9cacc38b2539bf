package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency every catalog price is stored in.
const BaseCurrency = "USD"

// DefaultRegion is the region used when the shopper does not provide one.
const DefaultRegion = "ET"

// Currency describes a supported display currency.
type Currency struct {
	Code      string          `json:"code"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Rate      decimal.Decimal `json:"rate"`
	Precision int32           `json:"precision"`
}

// ShippingRate is the per-region shipping fee schedule in base currency.
type ShippingRate struct {
	Base  decimal.Decimal
	PerKg decimal.Decimal
}

var (
	currencies = []Currency{
		{Code: "USD", Symbol: "$", Name: "US Dollar", Rate: decimal.NewFromInt(1), Precision: 2},
		{Code: "EUR", Symbol: "€", Name: "Euro", Rate: decimal.RequireFromString("0.92"), Precision: 2},
		{Code: "GBP", Symbol: "£", Name: "British Pound", Rate: decimal.RequireFromString("0.81"), Precision: 2},
		{Code: "ETB", Symbol: "Br", Name: "Ethiopian Birr", Rate: decimal.RequireFromString("55.0"), Precision: 2},
		{Code: "BTC", Symbol: "₿", Name: "Bitcoin", Rate: decimal.RequireFromString("0.000018"), Precision: 8},
	}
	currencyByCode = indexCurrencies(currencies)

	taxRates = map[string]decimal.Decimal{
		"US": decimal.RequireFromString("0.08"),
		"EU": decimal.RequireFromString("0.21"),
		"UK": decimal.RequireFromString("0.20"),
		"ET": decimal.RequireFromString("0.15"),
	}
	// DefaultTaxRate applies to regions missing from the tax table.
	DefaultTaxRate = decimal.RequireFromString("0.15")

	shippingRates = map[string]ShippingRate{
		"US": {Base: decimal.RequireFromString("5.99"), PerKg: decimal.RequireFromString("2.5")},
		"EU": {Base: decimal.RequireFromString("8.99"), PerKg: decimal.RequireFromString("3.0")},
		"UK": {Base: decimal.RequireFromString("7.99"), PerKg: decimal.RequireFromString("2.8")},
		"ET": {Base: decimal.RequireFromString("4.99"), PerKg: decimal.RequireFromString("1.5")},
	}
	// FallbackShippingRegion supplies rates for regions missing from the table.
	FallbackShippingRegion = "US"
	// FreeShippingThreshold is compared against the pre-discount base subtotal.
	FreeShippingThreshold = decimal.NewFromInt(50)
	// DefaultItemWeightKg is used for line items without a recorded weight.
	DefaultItemWeightKg = decimal.RequireFromString("0.5")

	giftWrapFee        = decimal.NewFromInt(5)
	expressShippingFee = decimal.NewFromInt(15)
)

func indexCurrencies(list []Currency) map[string]Currency {
	out := make(map[string]Currency, len(list))
	for _, c := range list {
		out[c.Code] = c
	}
	return out
}

// NormalizeCode upper-cases and trims a currency or region code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Currencies returns the supported currencies in display order.
func Currencies() []Currency {
	out := make([]Currency, len(currencies))
	copy(out, currencies)
	return out
}

// LookupCurrency finds a currency by code, ignoring case.
func LookupCurrency(code string) (Currency, bool) {
	c, ok := currencyByCode[NormalizeCode(code)]
	return c, ok
}

// RateOf returns the conversion rate for code, or 1 when the currency is unknown.
func RateOf(code string) decimal.Decimal {
	if c, ok := LookupCurrency(code); ok {
		return c.Rate
	}
	return decimal.NewFromInt(1)
}

// Convert moves amount from one currency into another through the base currency.
func Convert(amount decimal.Decimal, from, to string) decimal.Decimal {
	fromRate := RateOf(from)
	if fromRate.IsZero() {
		return amount
	}
	return amount.Mul(RateOf(to)).Div(fromRate)
}

// TaxRate returns the tax rate for region and whether the region was known.
func TaxRate(region string) (decimal.Decimal, bool) {
	if rate, ok := taxRates[NormalizeCode(region)]; ok {
		return rate, true
	}
	return DefaultTaxRate, false
}

// ShippingRateFor returns the shipping schedule for region and whether it was known.
func ShippingRateFor(region string) (ShippingRate, bool) {
	if rate, ok := shippingRates[NormalizeCode(region)]; ok {
		return rate, true
	}
	return shippingRates[FallbackShippingRegion], false
}
