package discount

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bookwise-api/internal/common"
	"github.com/noah-isme/bookwise-api/internal/pricing"
)

// Handler exposes discount validation and administration endpoints.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
	// CartSubtotal resolves the caller's cart subtotal in currency when the
	// request omits one.
	CartSubtotal func(r *http.Request, currency string) (decimal.Decimal, error)
}

type validateRequest struct {
	Code     string           `json:"code" validate:"required"`
	Subtotal *decimal.Decimal `json:"subtotal"`
	Currency string           `json:"currency"`
	Region   string           `json:"region"`
}

type createRequest struct {
	Code              string          `json:"code" validate:"required,max=64"`
	Percentage        int             `json:"percentage" validate:"gte=0,lte=100"`
	MinAmount         decimal.Decimal `json:"minAmount"`
	MinAmountCurrency string          `json:"minAmountCurrency"`
	MaxUses           int             `json:"maxUses" validate:"gte=1"`
	UsesLeft          int             `json:"usesLeft" validate:"gte=0"`
	ExpiresAt         time.Time       `json:"expiresAt" validate:"required"`
	Currencies        []string        `json:"currencies" validate:"required,min=1"`
	Regions           []string        `json:"regions"`
	Description       string          `json:"description"`
}

// Validate checks a code against a subtotal, currency and region. The caller's
// cart is used when no subtotal is supplied. Ineligible codes return 200 with
// valid=false and the reason; an unsupported currency is a 400.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = pricing.BaseCurrency
	}
	if _, ok := pricing.LookupCurrency(currency); !ok {
		common.WriteAppError(w, common.BadRequest(fmt.Sprintf("unsupported currency %q", currency), nil))
		return
	}
	region := req.Region
	if region == "" {
		region = pricing.DefaultRegion
	}
	var subtotal decimal.Decimal
	switch {
	case req.Subtotal != nil:
		subtotal = *req.Subtotal
	case h.CartSubtotal != nil:
		cartSubtotal, err := h.CartSubtotal(r, currency)
		if err != nil {
			h.Logger.Error().Err(err).Msg("resolve cart subtotal")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load cart", nil)
			return
		}
		subtotal = cartSubtotal
	}
	res, err := h.Svc.Validate(r.Context(), req.Code, subtotal, currency, region)
	if err != nil {
		var inv *InvalidError
		if !errors.As(err, &inv) {
			h.Logger.Error().Err(err).Str("code", NormalizeCode(req.Code)).Msg("validate discount")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to validate discount", nil)
			return
		}
	}
	common.Data(w, http.StatusOK, res)
}

// List returns every discount code.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	codes, err := h.Svc.List(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("list discount codes")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list discount codes", nil)
		return
	}
	common.Data(w, http.StatusOK, codes)
}

// Create inserts a new discount code.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	code, err := h.Svc.Create(r.Context(), Code{
		Code:              req.Code,
		Percentage:        req.Percentage,
		MinAmount:         req.MinAmount,
		MinAmountCurrency: req.MinAmountCurrency,
		MaxUses:           req.MaxUses,
		UsesLeft:          req.UsesLeft,
		ExpiresAt:         req.ExpiresAt,
		Currencies:        req.Currencies,
		Regions:           req.Regions,
		Description:       req.Description,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.Is(err, ErrInvalidInput):
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		case errors.As(err, &pgErr) && pgErr.Code == "23505":
			common.JSONError(w, http.StatusConflict, "CONFLICT", "discount code already exists", nil)
		default:
			h.Logger.Error().Err(err).Msg("create discount code")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create discount code", nil)
		}
		return
	}
	common.Data(w, http.StatusCreated, code)
}
