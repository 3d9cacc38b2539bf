package reviews

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bookwise-api/internal/common"
)

type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

type createRequest struct {
	Rating  int    `json:"rating" validate:"gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// Create handles POST /api/v1/books/{id}/reviews.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	bookID, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	var req createRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	created, err := h.Svc.Create(r.Context(), userID, bookID, req.Rating, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, ErrBookNotFound):
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "book not found", nil)
		case errors.Is(err, ErrInvalidRating):
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		default:
			h.Logger.Error().Err(err).Int64("book_id", bookID).Msg("create review")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "Failed to add review", nil)
		}
		return
	}
	common.Data(w, http.StatusCreated, created)
}

// List handles GET /api/v1/books/{id}/reviews.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	bookID, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	skip, limit := common.ParseSkipLimit(r, 20, 100)
	items, err := h.Svc.List(r.Context(), bookID, skip, limit)
	if err != nil {
		h.Logger.Error().Err(err).Int64("book_id", bookID).Msg("list reviews")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "Failed to fetch reviews", nil)
		return
	}
	common.Data(w, http.StatusOK, items)
}

func bookIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid book id", nil)
		return 0, false
	}
	return id, true
}
