package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/bookwise-api/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Books handles GET /api/v1/books with filters, sorting, and pagination.
func (h *Handler) Books(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.service.ListBooks(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result,
		"pagination": common.Pagination{Skip: params.Skip, Limit: params.Limit, Total: result.Total},
	})
}

// Book handles GET /api/v1/books/{id}.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid book id", nil)
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, book)
}

// Categories handles GET /api/v1/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	rows, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "Failed to fetch books", nil)
}
