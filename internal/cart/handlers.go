package cart

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bookwise-api/internal/common"
	"github.com/noah-isme/bookwise-api/internal/discount"
	"github.com/noah-isme/bookwise-api/internal/pricing"
)

// GuestCookie carries the anonymous cart identifier.
const GuestCookie = "bw_cart"

// DiscountValidator checks a code against a subtotal expressed in currency.
type DiscountValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal, currency, region string) (discount.Result, error)
}

// Handler wires cart services to HTTP.
type Handler struct {
	Svc             *Service
	Discounts       DiscountValidator
	Logger          zerolog.Logger
	DefaultCurrency string
	DefaultRegion   string
	SecureCookies   bool
}

type addItemRequest struct {
	BookID   int64 `json:"bookId" validate:"gt=0"`
	Quantity int   `json:"quantity" validate:"gte=0,lte=999"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,lte=999"`
}

type selectAllRequest struct {
	Selected bool `json:"selected"`
}

// GuestMiddleware exposes the guest cart cookie on the request context.
func GuestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(GuestCookie); err == nil && c.Value != "" {
			if _, err := uuid.Parse(c.Value); err == nil {
				r = r.WithContext(common.WithAnonID(r.Context(), c.Value))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// OwnerFromRequest resolves the cart owner without issuing a guest cookie.
func OwnerFromRequest(r *http.Request) Owner {
	if uid, ok := common.UserID(r.Context()); ok {
		return Owner{UserID: uid}
	}
	anon, _ := common.AnonID(r.Context())
	return Owner{AnonID: anon}
}

// ensureOwner issues a guest cookie when the caller has no identity yet.
func (h *Handler) ensureOwner(w http.ResponseWriter, r *http.Request) Owner {
	owner := OwnerFromRequest(r)
	if owner.UserID != "" || owner.AnonID != "" {
		return owner
	}
	owner.AnonID = uuid.NewString()
	ttl := DefaultGuestTTL
	if h.Svc != nil {
		ttl = h.Svc.ttl()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     GuestCookie,
		Value:    owner.AnonID,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return owner
}

// Get returns the cart with a pricing preview.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromRequest(r)
	if owner.UserID == "" && owner.AnonID == "" {
		common.Data(w, http.StatusOK, h.payload(r, Cart{Items: []LineItem{}}))
		return
	}
	c, err := h.Svc.Load(r.Context(), owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, h.payload(r, c))
}

// AddItem adds a book or increments its quantity.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	owner := h.ensureOwner(w, r)
	c, created, err := h.Svc.AddItem(r.Context(), owner, req.BookID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	message := "Cart updated"
	if created {
		message = "Item added to cart"
	}
	h.respond(w, r, c, message)
}

// SetQuantity sets an absolute quantity for a book already in the cart.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	bookID, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	var req setQuantityRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	c, err := h.Svc.SetQuantity(r.Context(), OwnerFromRequest(r), bookID, *req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, c, "Quantity updated successfully")
}

// RemoveItem deletes a book from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	bookID, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.RemoveItem(r.Context(), OwnerFromRequest(r), bookID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, c, "Item removed from cart")
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	c, err := h.Svc.Clear(r.Context(), OwnerFromRequest(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, c, "Cart cleared")
}

// ToggleSelected flips a line's checkout selection.
func (h *Handler) ToggleSelected(w http.ResponseWriter, r *http.Request) {
	bookID, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.ToggleSelected(r.Context(), OwnerFromRequest(r), bookID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, c, "Selection updated")
}

// SelectAll selects or deselects every line.
func (h *Handler) SelectAll(w http.ResponseWriter, r *http.Request) {
	var req selectAllRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	c, err := h.Svc.SelectAll(r.Context(), OwnerFromRequest(r), req.Selected)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, c, "Selection updated")
}

// RemoveSelected deletes every selected line.
func (h *Handler) RemoveSelected(w http.ResponseWriter, r *http.Request) {
	c, removed, err := h.Svc.RemoveSelected(r.Context(), OwnerFromRequest(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, c, strconv.Itoa(removed)+" item(s) removed")
}

// Merge folds the guest cart cookie into the authenticated user's cart.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	anonID, ok := common.AnonID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "no guest cart to merge", nil)
		return
	}
	c, err := h.Svc.Merge(r.Context(), anonID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	ExpireGuestCookie(w, h.SecureCookies)
	h.respond(w, r, c, "Cart merged")
}

// CartSubtotal resolves the caller's cart subtotal for discount validation.
func (h *Handler) CartSubtotal(r *http.Request, currency string) (decimal.Decimal, error) {
	owner := OwnerFromRequest(r)
	if owner.UserID == "" && owner.AnonID == "" {
		return decimal.Zero, nil
	}
	return h.Svc.Subtotal(r.Context(), owner, currency)
}

// ExpireGuestCookie clears the guest cart cookie.
func ExpireGuestCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     GuestCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, c Cart, message string) {
	common.DataMessage(w, http.StatusOK, message, h.payload(r, c))
}

// payload prices c for the request. A ?code= is applied only when it
// validates against the cart subtotal; its result is echoed either way.
func (h *Handler) payload(r *http.Request, c Cart) map[string]any {
	if c.Items == nil {
		c.Items = []LineItem{}
	}
	in := h.quoteInput(r)
	in.Lines = c.Lines()
	out := map[string]any{
		"cart":          c,
		"totalItems":    len(c.Items),
		"selectedItems": len(c.Selected()),
	}
	if res := h.checkCode(r, in); res != nil {
		if res.Valid {
			in.DiscountPercent = res.Percentage
		}
		out["discount"] = res
	}
	out["pricing"] = h.Svc.Price(in)
	return out
}

func (h *Handler) checkCode(r *http.Request, in pricing.Input) *discount.Result {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		return nil
	}
	res := discount.Result{Code: discount.NormalizeCode(code), Reason: "Invalid discount code"}
	if h.Discounts == nil {
		return &res
	}
	currency := in.Currency
	if _, ok := pricing.LookupCurrency(currency); !ok {
		currency = pricing.BaseCurrency
	}
	subtotal := pricing.Convert(pricing.ComputeSubtotal(in.Lines), pricing.BaseCurrency, currency)
	checked, err := h.Discounts.Validate(r.Context(), code, subtotal, currency, in.Region)
	if err != nil {
		var inv *discount.InvalidError
		if !errors.As(err, &inv) {
			h.Logger.Warn().Err(err).Str("code", res.Code).Msg("check discount for cart preview")
			res.Reason = "Discount code could not be checked"
			return &res
		}
	}
	return &checked
}

func (h *Handler) quoteInput(r *http.Request) pricing.Input {
	q := r.URL.Query()
	currency := q.Get("currency")
	if currency == "" {
		currency = h.DefaultCurrency
	}
	if currency == "" {
		currency = "ETB"
	}
	region := q.Get("region")
	if region == "" {
		region = h.DefaultRegion
	}
	if region == "" {
		region = pricing.DefaultRegion
	}
	return pricing.Input{
		Currency: currency,
		Region:   region,
		Options: pricing.Options{
			GiftWrap:        common.ParseBool(q.Get("giftWrap")),
			ExpressShipping: common.ParseBool(q.Get("express")),
		},
	}
}

func bookIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "bookId"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid book id", nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	switch {
	case errors.Is(err, ErrBookUnavailable):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "Book out of stock or invalid ID", nil)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrNoOwner):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrItemNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "Item not found in cart", nil)
	default:
		h.Logger.Error().Err(err).Msg("cart operation failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "Server error while updating cart", nil)
	}
}
