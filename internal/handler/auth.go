package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/neetrank/internal/i18n"
)

// requireAdmin checks the bearer token against the configured bcrypt hash.
// With no hash configured the admin routes are disabled.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.AdminToken == "" {
			http.NotFound(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "Unauthorized"))
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(h.config.AdminToken), []byte(token)); err != nil {
			slog.Warn("admin token rejected", "remote", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "Unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HashAdminToken returns the bcrypt hash stored in ServiceConfig.AdminToken.
func HashAdminToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
