package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bookwise-api/internal/cart"
	"github.com/noah-isme/bookwise-api/internal/common"
)

// Handler exposes HTTP handlers for authentication and account endpoints.
type Handler struct {
	Service           *Service
	Carts             *cart.Service
	Logger            zerolog.Logger
	AccessCookieName  string
	RefreshCookieName string
	CSRFCookieName    string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	user, err := h.Service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, map[string]any{"user": user})
}

// Login handles POST /api/v1/auth/login. A guest cart carried by the request
// is merged into the user's cart.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	result, err := h.Service.Login(r.Context(), req.Email, req.Password, r.UserAgent(), common.ClientIP(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.mergeGuestCart(w, r, result.User.ID)
	h.setAuthCookies(w, result.Tokens)
	common.Data(w, http.StatusOK, result)
}

// Refresh handles POST /api/v1/auth/refresh using the refresh cookie.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.Service.Refresh(r.Context(), h.refreshTokenFromRequest(r), r.UserAgent(), common.ClientIP(r))
	if err != nil {
		h.clearAuthCookies(w)
		h.writeError(w, err)
		return
	}
	h.setAuthCookies(w, tokens)
	common.Data(w, http.StatusOK, tokens)
}

// Logout handles POST /api/v1/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.refreshTokenFromRequest(r); token != "" {
		if err := h.Service.Logout(r.Context(), token); err != nil {
			h.Logger.Warn().Err(err).Msg("revoke session")
		}
	}
	h.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	user, err := h.Service.Me(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) mergeGuestCart(w http.ResponseWriter, r *http.Request, userID string) {
	anonID, ok := common.AnonID(r.Context())
	if !ok || h.Carts == nil {
		return
	}
	if _, err := h.Carts.Merge(r.Context(), anonID, userID); err != nil {
		h.Logger.Warn().Err(err).Str("anon_id", anonID).Msg("merge guest cart on login")
		return
	}
	cart.ExpireGuestCookie(w, h.CookieSecure)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	h.Logger.Error().Err(err).Msg("auth request failed")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, tokens Tokens) {
	h.setCookie(w, h.AccessCookieName, tokens.AccessToken, tokens.AccessExpiry, true)
	h.setCookie(w, h.RefreshCookieName, tokens.RefreshToken, tokens.RefreshExpiry, true)
	if h.CSRFCookieName != "" {
		csrf, err := generateToken(24)
		if err == nil {
			h.setCookie(w, h.CSRFCookieName, csrf, tokens.RefreshExpiry, false)
		}
	}
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{h.AccessCookieName, h.RefreshCookieName, h.CSRFCookieName} {
		if name == "" {
			continue
		}
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Domain:   h.CookieDomain,
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name != h.CSRFCookieName,
			Secure:   h.CookieSecure,
			SameSite: h.CookieSameSite,
		})
	}
}

// setCookie writes name when configured. The CSRF cookie stays readable by
// scripts so the client can echo it in a header.
func (h *Handler) setCookie(w http.ResponseWriter, name, value string, expires time.Time, httpOnly bool) {
	if name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   h.CookieDomain,
		Path:     "/",
		Expires:  expires,
		HttpOnly: httpOnly,
		Secure:   h.CookieSecure,
		SameSite: h.CookieSameSite,
	})
}

func (h *Handler) refreshTokenFromRequest(r *http.Request) string {
	if h.RefreshCookieName == "" {
		return ""
	}
	if cookie, err := r.Cookie(h.RefreshCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
