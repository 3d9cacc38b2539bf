package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
	"github.com/noah-isme/bookwise-api/internal/obs"
	"github.com/noah-isme/bookwise-api/internal/pricing"
)

// ErrInvalidInput is returned when a request payload is malformed.
var ErrInvalidInput = errors.New("invalid input")

// Querier captures the database methods required by the discount service.
type Querier interface {
	GetDiscountCode(ctx context.Context, code string) (dbgen.DiscountCode, error)
	ListDiscountCodes(ctx context.Context) ([]dbgen.DiscountCode, error)
	CreateDiscountCode(ctx context.Context, arg dbgen.CreateDiscountCodeParams) (dbgen.DiscountCode, error)
	DecrementDiscountUses(ctx context.Context, code string) (int32, error)
	InsertDiscountRedemption(ctx context.Context, arg dbgen.InsertDiscountRedemptionParams) error
}

// Service validates and redeems discount codes. Known only rejects codes
// without a store read when Gen confirms the filter is current.
type Service struct {
	Q      Querier
	Now    func() time.Time
	Known  *KnownCodes
	Gen    Generation
	Logger zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// WithQ returns a copy of the service bound to q, typically a transaction.
func (s *Service) WithQ(q Querier) *Service {
	cp := *s
	cp.Q = q
	return &cp
}

// LoadKnownCodes rebuilds the bloom filter from the store.
func (s *Service) LoadKnownCodes(ctx context.Context) error {
	if s == nil || s.Q == nil {
		return errors.New("discount service not configured")
	}
	if s.Known == nil {
		s.Known = &KnownCodes{}
	}
	return s.reloadKnown(ctx)
}

// RefreshKnownCodes rebuilds the filter every interval until ctx is done.
func (s *Service) RefreshKnownCodes(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.reloadKnown(ctx); err != nil {
				s.Logger.Warn().Err(err).Msg("refresh known discount codes")
			}
		}
	}
}

// reloadKnown reads the generation before listing so a code created during
// the listing leaves the filter one generation behind.
func (s *Service) reloadKnown(ctx context.Context) error {
	_, err, _ := s.Known.loads.Do("reload", func() (any, error) {
		var gen int64
		if s.Gen != nil {
			current, err := s.Gen.Current(ctx)
			if err != nil {
				return nil, fmt.Errorf("read code generation: %w", err)
			}
			gen = current
		}
		rows, err := s.Q.ListDiscountCodes(ctx)
		if err != nil {
			return nil, fmt.Errorf("list discount codes: %w", err)
		}
		codes := make([]string, 0, len(rows))
		for _, r := range rows {
			codes = append(codes, r.Code)
		}
		s.Known.reset(codes, gen)
		return nil, nil
	})
	return err
}

// definitelyUnknown reports whether code can be rejected without the store.
// A stale filter is rebuilt once before answering.
func (s *Service) definitelyUnknown(ctx context.Context, code string) bool {
	if s.Gen == nil || s.Known == nil || s.Known.MayContain(code) {
		return false
	}
	gen, err := s.Gen.Current(ctx)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("read discount code generation")
		return false
	}
	if gen == s.Known.Generation() {
		return true
	}
	if err := s.reloadKnown(ctx); err != nil {
		s.Logger.Warn().Err(err).Msg("reload known discount codes")
		return false
	}
	return !s.Known.MayContain(code)
}

// Lookup returns the active code or nil when none exists.
func (s *Service) Lookup(ctx context.Context, code string) (*Code, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("discount service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" || s.definitelyUnknown(ctx, normalized) {
		return nil, nil
	}
	row, err := s.Q.GetDiscountCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.Known.Add(row.Code)
	c := FromModel(row)
	return &c, nil
}

// Validate checks code against a cart subtotal expressed in currency. An
// ineligible code yields a populated Result and an *InvalidError; any other
// error is a storage failure.
func (s *Service) Validate(ctx context.Context, code string, subtotal decimal.Decimal, currency, region string) (Result, error) {
	c, err := s.Lookup(ctx, code)
	if err != nil {
		return Result{}, err
	}
	res, err := Evaluate(c, code, subtotal, currency, region, s.now())
	outcome := "valid"
	if err != nil {
		outcome = outcomeLabel(err)
	}
	obs.Inc(obs.DiscountValidationsTotal, outcome)
	return res, err
}

// Redeem consumes one use of code for orderID. It relies on a conditional
// decrement so concurrent redemptions never exceed the cap.
func (s *Service) Redeem(ctx context.Context, code string, orderID, userID pgtype.UUID) error {
	if s == nil || s.Q == nil {
		return errors.New("discount service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" {
		return fmt.Errorf("code is required: %w", ErrInvalidInput)
	}
	if _, err := s.Q.DecrementDiscountUses(ctx, normalized); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			obs.Inc(obs.DiscountRedemptionsTotal, "exhausted")
			return invalid(ErrCodeExhausted, "Code exhausted")
		}
		obs.Inc(obs.DiscountRedemptionsTotal, "error")
		return fmt.Errorf("decrement discount uses: %w", err)
	}
	if err := s.Q.InsertDiscountRedemption(ctx, dbgen.InsertDiscountRedemptionParams{
		Code:    normalized,
		OrderID: orderID,
		UserID:  userID,
	}); err != nil {
		obs.Inc(obs.DiscountRedemptionsTotal, "error")
		return fmt.Errorf("record redemption: %w", err)
	}
	obs.Inc(obs.DiscountRedemptionsTotal, "redeemed")
	return nil
}

// List returns every code, active or not.
func (s *Service) List(ctx context.Context) ([]Code, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("discount service not configured")
	}
	rows, err := s.Q.ListDiscountCodes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Code, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromModel(r))
	}
	return out, nil
}

// Create stores a new code.
func (s *Service) Create(ctx context.Context, c Code) (Code, error) {
	if s == nil || s.Q == nil {
		return Code{}, errors.New("discount service not configured")
	}
	if err := validateNew(c); err != nil {
		return Code{}, err
	}
	minCurrency := pricing.NormalizeCode(c.MinAmountCurrency)
	if minCurrency == "" {
		minCurrency = pricing.BaseCurrency
	}
	usesLeft := c.UsesLeft
	if usesLeft <= 0 || usesLeft > c.MaxUses {
		usesLeft = c.MaxUses
	}
	regions := c.Regions
	if len(regions) == 0 {
		regions = []string{WildcardRegion}
	}
	row, err := s.Q.CreateDiscountCode(ctx, dbgen.CreateDiscountCodeParams{
		Code:              NormalizeCode(c.Code),
		Percentage:        int32(c.Percentage),
		MinAmount:         c.MinAmount,
		MinAmountCurrency: minCurrency,
		MaxUses:           int32(c.MaxUses),
		UsesLeft:          int32(usesLeft),
		ExpiresAt:         pgtype.Timestamptz{Time: c.ExpiresAt, Valid: true},
		Currencies:        upperAll(c.Currencies),
		Regions:           upperRegions(regions),
		Description:       strings.TrimSpace(c.Description),
		Active:            true,
	})
	if err != nil {
		return Code{}, err
	}
	s.Known.Add(row.Code)
	if s.Gen != nil {
		if err := s.Gen.Bump(ctx); err != nil {
			s.Logger.Warn().Err(err).Str("code", row.Code).Msg("bump discount code generation")
		}
	}
	return FromModel(row), nil
}

func validateNew(c Code) error {
	switch {
	case NormalizeCode(c.Code) == "":
		return fmt.Errorf("code is required: %w", ErrInvalidInput)
	case c.Percentage < 0 || c.Percentage > 100:
		return fmt.Errorf("percentage must be between 0 and 100: %w", ErrInvalidInput)
	case c.MinAmount.IsNegative():
		return fmt.Errorf("minAmount must not be negative: %w", ErrInvalidInput)
	case c.MaxUses <= 0:
		return fmt.Errorf("maxUses must be positive: %w", ErrInvalidInput)
	case c.ExpiresAt.IsZero():
		return fmt.Errorf("expiresAt is required: %w", ErrInvalidInput)
	case len(c.Currencies) == 0:
		return fmt.Errorf("at least one currency is required: %w", ErrInvalidInput)
	}
	for _, cur := range c.Currencies {
		if _, ok := pricing.LookupCurrency(cur); !ok {
			return fmt.Errorf("unsupported currency %q: %w", cur, ErrInvalidInput)
		}
	}
	return nil
}

// FromModel converts a stored row into a Code.
func FromModel(row dbgen.DiscountCode) Code {
	c := Code{
		Code:              row.Code,
		Percentage:        int(row.Percentage),
		MinAmount:         row.MinAmount,
		MinAmountCurrency: row.MinAmountCurrency,
		MaxUses:           int(row.MaxUses),
		UsesLeft:          int(row.UsesLeft),
		Currencies:        row.Currencies,
		Regions:           row.Regions,
		Description:       row.Description,
	}
	if row.ExpiresAt.Valid {
		c.ExpiresAt = row.ExpiresAt.Time
	}
	return c
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, ErrCodeExhausted):
		return "exhausted"
	case errors.Is(err, ErrCodeExpired):
		return "expired"
	case errors.Is(err, ErrCurrencyNotEligible):
		return "currency"
	case errors.Is(err, ErrRegionNotEligible):
		return "region"
	case errors.Is(err, ErrMinimumNotMet):
		return "minimum"
	default:
		return "error"
	}
}

func upperAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := pricing.NormalizeCode(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func upperRegions(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), WildcardRegion) {
			out = append(out, WildcardRegion)
			continue
		}
		if n := pricing.NormalizeCode(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}
