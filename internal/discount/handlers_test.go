package discount

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestValidateHandlerReportsReason(t *testing.T) {
	h := &Handler{Svc: &Service{Q: newMemoryQueries(SeedCodes()...), Now: fixedNow}, Logger: zerolog.Nop()}

	body := `{"code":"CYBER20","subtotal":"150","currency":"GBP","region":"UK"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/discounts/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Validate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Data.Valid)
	require.Equal(t, "Code not valid for this currency", resp.Data.Reason)
}

func TestValidateHandlerRequiresCode(t *testing.T) {
	h := &Handler{Svc: &Service{Q: newMemoryQueries(), Now: fixedNow}, Logger: zerolog.Nop()}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/discounts/validate", strings.NewReader(`{"subtotal":"10"}`))
	rec := httptest.NewRecorder()
	h.Validate(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateHandlerRejectsUnknownCurrency(t *testing.T) {
	q := newMemoryQueries(SeedCodes()...)
	h := &Handler{Svc: &Service{Q: q, Now: fixedNow}, Logger: zerolog.Nop()}
	body := `{"code":"WELCOME10","subtotal":"100","currency":"XYZ","region":"US"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/discounts/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Validate(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unsupported currency")
	require.Zero(t, q.lookups)
}

func TestCreateHandler(t *testing.T) {
	h := &Handler{Svc: &Service{Q: newMemoryQueries(), Now: fixedNow}, Logger: zerolog.Nop()}
	body := `{"code":"new15","percentage":15,"minAmount":"30","maxUses":50,"expiresAt":"2026-01-01T00:00:00Z","currencies":["USD"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/discounts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"NEW15"`)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/discounts", strings.NewReader(`{"code":"bad","percentage":15,"maxUses":0,"expiresAt":"2026-01-01T00:00:00Z","currencies":["USD"]}`))
	rec = httptest.NewRecorder()
	h.Create(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateHandlerFallsBackToCartSubtotal(t *testing.T) {
	var gotCurrency string
	h := &Handler{
		Svc:    &Service{Q: newMemoryQueries(SeedCodes()...), Now: fixedNow},
		Logger: zerolog.Nop(),
		CartSubtotal: func(_ *http.Request, currency string) (decimal.Decimal, error) {
			gotCurrency = currency
			return decimal.NewFromInt(900), nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/discounts/validate", strings.NewReader(`{"code":"etb5off","currency":"ETB","region":"ET"}`))
	rec := httptest.NewRecorder()
	h.Validate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ETB", gotCurrency)
	require.Contains(t, rec.Body.String(), "Minimum 1000.00 ETB required")
}
