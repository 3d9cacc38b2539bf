package pricing

import (
	"net/http"

	"github.com/noah-isme/bookwise-api/internal/common"
)

// CurrenciesHandler serves GET /api/v1/pricing/currencies.
func CurrenciesHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	common.Data(w, http.StatusOK, map[string]any{
		"base":       BaseCurrency,
		"currencies": Currencies(),
	})
}
