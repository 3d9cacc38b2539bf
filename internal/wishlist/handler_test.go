package wishlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookwise-api/internal/common"
	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
)

type memoryWishlist struct {
	entries map[int64]time.Time
}

func (m *memoryWishlist) GetBook(_ context.Context, id int64) (dbgen.Book, error) {
	if id > 10 {
		return dbgen.Book{}, pgx.ErrNoRows
	}
	return dbgen.Book{ID: id}, nil
}

func (m *memoryWishlist) ListWishlist(context.Context, pgtype.UUID) ([]dbgen.ListWishlistRow, error) {
	rows := []dbgen.ListWishlistRow{}
	for id, at := range m.entries {
		rows = append(rows, dbgen.ListWishlistRow{BookID: id, CreatedAt: pgtype.Timestamptz{Time: at, Valid: true}, Title: "Book", Price: decimal.NewFromInt(10)})
	}
	return rows, nil
}

func (m *memoryWishlist) AddWishlistItem(_ context.Context, arg dbgen.AddWishlistItemParams) error {
	if _, ok := m.entries[arg.BookID]; !ok {
		m.entries[arg.BookID] = time.Now()
	}
	return nil
}

func (m *memoryWishlist) RemoveWishlistItem(_ context.Context, arg dbgen.RemoveWishlistItemParams) (int64, error) {
	if _, ok := m.entries[arg.BookID]; !ok {
		return 0, nil
	}
	delete(m.entries, arg.BookID)
	return 1, nil
}

func TestWishlistHandlers(t *testing.T) {
	store := &memoryWishlist{entries: map[int64]time.Time{}}
	h := &Handler{Svc: &Service{Q: store}, Logger: zerolog.Nop()}
	r := chi.NewRouter()
	r.Get("/wishlist", h.List)
	r.Post("/wishlist", h.Add)
	r.Delete("/wishlist/{bookId}", h.Remove)
	user := uuid.NewString()

	send := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req = req.WithContext(common.WithUserID(req.Context(), user))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, send(http.MethodPost, "/wishlist", `{"bookId":3}`).Code)
	require.Equal(t, http.StatusOK, send(http.MethodPost, "/wishlist", `{"bookId":3}`).Code)
	require.Len(t, store.entries, 1)

	require.Equal(t, http.StatusNotFound, send(http.MethodPost, "/wishlist", `{"bookId":99}`).Code)
	require.Equal(t, http.StatusBadRequest, send(http.MethodPost, "/wishlist", `{"bookId":0}`).Code)

	rec := send(http.MethodDelete, "/wishlist/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"removed":true`)
	require.Empty(t, store.entries)

	req := httptest.NewRequest(http.MethodGet, "/wishlist", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
