package discount

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var launchDay = time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)

func seedCode(t *testing.T, code string) *Code {
	t.Helper()
	for _, c := range SeedCodes() {
		if c.Code == code {
			c := c
			return &c
		}
	}
	t.Fatalf("seed code %s missing", code)
	return nil
}

func TestEvaluateWelcomeCode(t *testing.T) {
	res, err := Evaluate(seedCode(t, "WELCOME10"), "welcome10", decimal.NewFromInt(25), "USD", "US", launchDay)
	if err != nil {
		t.Fatalf("expected valid code, got %v", err)
	}
	if !res.Valid || res.Percentage != 10 {
		t.Fatalf("expected 10%% valid result, got %+v", res)
	}
	if res.Code != "WELCOME10" {
		t.Fatalf("expected normalised code, got %q", res.Code)
	}
}

func TestEvaluateMinimumUsesCodeCurrency(t *testing.T) {
	res, err := Evaluate(seedCode(t, "ETB5OFF"), "ETB5OFF", decimal.NewFromInt(900), "ETB", "ET", launchDay)
	if !errors.Is(err, ErrMinimumNotMet) {
		t.Fatalf("expected ErrMinimumNotMet, got %v", err)
	}
	if res.Reason != "Minimum 1000.00 ETB required" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestEvaluateMinimumConvertedFromBase(t *testing.T) {
	// 20 USD converted into EUR is 18.40
	_, err := Evaluate(seedCode(t, "WELCOME10"), "WELCOME10", decimal.RequireFromString("18.39"), "EUR", "EU", launchDay)
	var inv *InvalidError
	if !errors.As(err, &inv) || inv.Reason != "Minimum 18.40 EUR required" {
		t.Fatalf("expected converted minimum, got %v", err)
	}
	if _, err := Evaluate(seedCode(t, "WELCOME10"), "WELCOME10", decimal.RequireFromString("18.40"), "EUR", "EU", launchDay); err != nil {
		t.Fatalf("expected subtotal at the minimum to pass, got %v", err)
	}
}

func TestEvaluateCurrencyNotEligible(t *testing.T) {
	res, err := Evaluate(seedCode(t, "CYBER20"), "CYBER20", decimal.NewFromInt(500), "GBP", "UK", launchDay)
	if !errors.Is(err, ErrCurrencyNotEligible) {
		t.Fatalf("expected ErrCurrencyNotEligible, got %v", err)
	}
	if res.Reason != "Code not valid for this currency" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestEvaluateValidationOrder(t *testing.T) {
	expiredAndExhausted := *seedCode(t, "BOOKLOVER")
	expiredAndExhausted.UsesLeft = 0
	later := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		code   *Code
		cur    string
		region string
		now    time.Time
		want   error
		reason string
	}{
		{"not found", nil, "USD", "US", launchDay, ErrCodeNotFound, "Invalid discount code"},
		{"exhausted before expired", &expiredAndExhausted, "EUR", "ET", later, ErrCodeExhausted, "Code exhausted"},
		{"expired before currency", seedCode(t, "BOOKLOVER"), "ETB", "ET", later, ErrCodeExpired, "Code expired"},
		{"currency before region", seedCode(t, "ETB5OFF"), "USD", "US", launchDay, ErrCurrencyNotEligible, "Code not valid for this currency"},
		{"region before minimum", seedCode(t, "ETB5OFF"), "ETB", "US", launchDay, ErrRegionNotEligible, "Code not valid in your region"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Evaluate(tc.code, "X", decimal.Zero, tc.cur, tc.region, tc.now)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if res.Valid || res.Reason != tc.reason {
				t.Fatalf("unexpected result %+v", res)
			}
		})
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	code := seedCode(t, "WELCOME10")
	first, _ := Evaluate(code, "WELCOME10", decimal.NewFromInt(30), "USD", "US", launchDay)
	second, _ := Evaluate(code, "WELCOME10", decimal.NewFromInt(30), "USD", "US", launchDay)
	if first != second {
		t.Fatalf("expected identical results, got %+v and %+v", first, second)
	}
	if code.UsesLeft != 950 {
		t.Fatalf("validation must not consume uses, got %d", code.UsesLeft)
	}
}
