package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Line describes a cart line consumed by the calculator. Prices are in base currency.
type Line struct {
	BookID    int64
	UnitPrice decimal.Decimal
	Quantity  int
	WeightKg  decimal.Decimal
}

// Options are the optional checkout extras charged on top of shipping.
type Options struct {
	GiftWrap        bool `json:"giftWrap"`
	ExpressShipping bool `json:"expressShipping"`
}

// Input bundles everything Quote needs.
type Input struct {
	Lines           []Line
	Currency        string
	Region          string
	DiscountPercent int
	Options         Options
}

// Breakdown is the priced result expressed in the requested currency.
type Breakdown struct {
	Currency        string          `json:"currency"`
	Region          string          `json:"region"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountPercent int             `json:"discountPercent"`
	Discount        decimal.Decimal `json:"discount"`
	Discounted      decimal.Decimal `json:"discounted"`
	TaxRate         decimal.Decimal `json:"taxRate"`
	Tax             decimal.Decimal `json:"tax"`
	WeightKg        decimal.Decimal `json:"weightKg"`
	Shipping        decimal.Decimal `json:"shipping"`
	Extras          decimal.Decimal `json:"extras"`
	Total           decimal.Decimal `json:"total"`
	RegionDefaulted bool            `json:"regionDefaulted,omitempty"`
}

// ComputeSubtotal sums unit price times quantity over every line. Lines with a
// non-positive quantity or negative price contribute nothing.
func ComputeSubtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 || l.UnitPrice.IsNegative() {
			continue
		}
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// TotalWeight sums line weights, using DefaultItemWeightKg for lines without one.
func TotalWeight(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		w := l.WeightKg
		if !w.IsPositive() {
			w = DefaultItemWeightKg
		}
		sum = sum.Add(w.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// ApplyDiscount returns subtotal reduced by percent, clamped to 0..100.
func ApplyDiscount(subtotal decimal.Decimal, percent int) decimal.Decimal {
	return subtotal.Sub(discountAmount(subtotal, percent))
}

func discountAmount(subtotal decimal.Decimal, percent int) decimal.Decimal {
	if percent <= 0 {
		return decimal.Zero
	}
	if percent > 100 {
		percent = 100
	}
	return subtotal.Mul(decimal.NewFromInt(int64(percent))).Div(hundred)
}

// ComputeTax applies the region's tax rate to the discounted subtotal.
func ComputeTax(discountedSubtotal decimal.Decimal, region string) decimal.Decimal {
	rate, _ := TaxRate(region)
	return discountedSubtotal.Mul(rate)
}

// ComputeShipping prices shipping for the region and converts it into currency.
// subtotal is the pre-discount amount in base currency; above the free
// shipping threshold the cost is zero regardless of weight.
func ComputeShipping(subtotal, weightKg decimal.Decimal, region, currency string) decimal.Decimal {
	rate, _ := ShippingRateFor(region)
	cost := rate.Base.Add(weightKg.Mul(rate.PerKg))
	if subtotal.GreaterThan(FreeShippingThreshold) {
		cost = decimal.Zero
	}
	return cost.Mul(RateOf(currency))
}

// ComputeTotal adds the discounted subtotal, tax and shipping.
func ComputeTotal(discountedSubtotal, tax, shipping decimal.Decimal) decimal.Decimal {
	return discountedSubtotal.Add(tax).Add(shipping)
}

// Quote prices the lines in the requested currency and region. It never fails:
// unknown currencies price in base currency and unknown regions fall back to
// default tax and shipping rates.
func Quote(in Input) Breakdown {
	cur, ok := LookupCurrency(in.Currency)
	if !ok {
		cur, _ = LookupCurrency(BaseCurrency)
	}
	region := NormalizeCode(in.Region)
	if region == "" {
		region = DefaultRegion
	}
	round := func(d decimal.Decimal) decimal.Decimal { return d.Round(cur.Precision) }

	base := ComputeSubtotal(in.Lines)
	weight := TotalWeight(in.Lines)
	taxRate, taxKnown := TaxRate(region)
	_, shipKnown := ShippingRateFor(region)

	percent := in.DiscountPercent
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	subtotal := round(base.Mul(cur.Rate))
	discount := round(discountAmount(subtotal, percent))
	discounted := subtotal.Sub(discount)
	tax := round(ComputeTax(discounted, region))
	shipping := round(ComputeShipping(base, weight, region, cur.Code))

	extras := decimal.Zero
	if weight.IsZero() {
		// nothing to ship
		shipping = decimal.Zero
		in.Options = Options{}
	}
	if in.Options.GiftWrap {
		extras = extras.Add(giftWrapFee)
	}
	if in.Options.ExpressShipping {
		extras = extras.Add(expressShippingFee)
	}
	extras = round(extras.Mul(cur.Rate))

	return Breakdown{
		Currency:        cur.Code,
		Region:          region,
		Subtotal:        subtotal,
		DiscountPercent: percent,
		Discount:        discount,
		Discounted:      discounted,
		TaxRate:         taxRate,
		Tax:             tax,
		WeightKg:        weight,
		Shipping:        shipping,
		Extras:          extras,
		Total:           ComputeTotal(discounted, tax, shipping).Add(extras),
		RegionDefaulted: !taxKnown || !shipKnown,
	}
}
