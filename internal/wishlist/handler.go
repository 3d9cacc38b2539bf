package wishlist

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

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	items, err := h.Svc.List(r.Context(), userID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("list wishlist")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "Failed to fetch wishlist", nil)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	var req struct {
		BookID int64 `json:"bookId" validate:"gt=0"`
	}
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	items, err := h.Svc.Add(r.Context(), userID, req.BookID)
	if err != nil {
		if errors.Is(err, ErrBookNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "book not found", nil)
			return
		}
		h.Logger.Error().Err(err).Msg("add wishlist item")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "Failed to add to wishlist", nil)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookId"), 10, 64)
	if err != nil || bookID <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid book id", nil)
		return
	}
	removed, err := h.Svc.Remove(r.Context(), userID, bookID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("remove wishlist item")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "Failed to remove from wishlist", nil)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"success": true, "removed": removed})
}
