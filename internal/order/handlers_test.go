package order

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookwise-api/internal/common"
)

func newRouter(h *Handler, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if userID != "" {
				req = req.WithContext(common.WithUserID(req.Context(), userID))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/api/v1/orders", h.Create)
	r.Get("/api/v1/orders", h.List)
	r.Get("/api/v1/orders/{orderId}", h.Get)
	return r
}

func TestCreateHandlerRequiresAuth(t *testing.T) {
	f := newFixture(t)
	srv := newRouter(&Handler{Svc: f.svc, Logger: zerolog.Nop()}, "")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrderHandlersRoundTrip(t *testing.T) {
	f := newFixture(t)
	srv := newRouter(&Handler{Svc: f.svc, Logger: zerolog.Nop()}, f.userID)

	body := `{"currency":"USD","region":"US","discountCode":"SAVE10","giftWrap":true}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data struct {
			Order struct {
				ID       string `json:"id"`
				Status   string `json:"status"`
				GiftWrap bool   `json:"giftWrap"`
			} `json:"order"`
			Payment struct {
				ID string `json:"id"`
			} `json:"payment"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.Order.ID)
	require.Equal(t, StatusAwaitingPayment, created.Data.Order.Status)
	require.True(t, created.Data.Order.GiftWrap)
	require.NotEmpty(t, created.Data.Payment.ID)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), created.Data.Order.ID)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+created.Data.Order.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"title":"Fikir Eske Mekabir"`)

	// the code is spent now
	f.store.lines[f.store.cartID(f.userID)][2] = storeLine{quantity: 1, selected: true}
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Code exhausted")
}

func TestCreateHandlerEmptySelection(t *testing.T) {
	f := newFixture(t)
	for id := range f.store.lines {
		f.store.lines[id] = map[int64]storeLine{}
	}
	srv := newRouter(&Handler{Svc: f.svc, Logger: zerolog.Nop()}, f.userID)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"currency":"USD"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "no items selected for checkout")
}

func TestGetHandlerUnknownOrder(t *testing.T) {
	f := newFixture(t)
	srv := newRouter(&Handler{Svc: f.svc, Logger: zerolog.Nop()}, f.userID)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/8d2f3f0e-7b8a-4c1e-9a55-1f0e2d3c4b5a", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
