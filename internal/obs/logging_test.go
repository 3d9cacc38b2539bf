package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookwise-api/internal/common"
)

func TestRequestLoggerWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "debug")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger{Logger: logger}.Middleware)
	r.Get("/api/v1/cart/{bookId}", func(w http.ResponseWriter, req *http.Request) {
		Logger(req.Context()).Debug().Msg("inside handler")
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/7", nil)
	req = req.WithContext(common.WithUserID(req.Context(), "user-1"))
	req.RemoteAddr = "203.0.113.9:5555"
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, access map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &access))

	require.Equal(t, "inside handler", inner["message"])
	require.Equal(t, access["request_id"], inner["request_id"])

	require.Equal(t, "warn", access["level"])
	require.Equal(t, "/api/v1/cart/{bookId}", access["route"])
	require.Equal(t, float64(http.StatusNotFound), access["status"])
	require.Equal(t, "203.0.113.9", access["client_ip"])
	require.Equal(t, "user-1", access["user_id"])
	require.Equal(t, "bookwise-api", access["service"])
}

func TestSQLOperationSkipsSqlcHeader(t *testing.T) {
	require.Equal(t, "UPDATE", sqlOperation("-- name: DecrementDiscountUses :one\nupdate discount_codes set uses_left = uses_left - 1"))
	require.Equal(t, "QUERY", sqlOperation("   "))
}
