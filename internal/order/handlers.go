package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bookwise-api/internal/common"
)

// Handler exposes checkout and order history endpoints.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

type checkoutRequest struct {
	Currency        string `json:"currency" validate:"omitempty,len=3"`
	Region          string `json:"region" validate:"omitempty,max=8"`
	DiscountCode    string `json:"discountCode" validate:"omitempty,max=64"`
	GiftWrap        bool   `json:"giftWrap"`
	ExpressShipping bool   `json:"expressShipping"`
	Notes           string `json:"notes" validate:"max=500"`
}

// Create handles POST /api/v1/orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	var req checkoutRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	res, err := h.Svc.Checkout(r.Context(), userID, Input{
		Currency:        req.Currency,
		Region:          req.Region,
		DiscountCode:    req.DiscountCode,
		GiftWrap:        req.GiftWrap,
		ExpressShipping: req.ExpressShipping,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeError(w, err, "checkout failed")
		return
	}
	common.Data(w, http.StatusCreated, res)
}

// List handles GET /api/v1/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	skip, limit := common.ParseSkipLimit(r, 20, 100)
	orders, err := h.Svc.List(r.Context(), userID, skip, limit)
	if err != nil {
		h.writeError(w, err, "failed to list orders")
		return
	}
	common.Data(w, http.StatusOK, orders)
}

// Get handles GET /api/v1/orders/{orderId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	o, err := h.Svc.Get(r.Context(), userID, chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, err, "failed to load order")
		return
	}
	common.Data(w, http.StatusOK, o)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, message string) {
	if common.WriteAppError(w, err) {
		return
	}
	h.Logger.Error().Err(err).Msg(message)
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", message, nil)
}
