package ledger_http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"ledger/internal/domain"
)

const bearerPrefix = "Bearer "

// requireAdmin guards operator-only routes with a bearer token. An empty
// token disables them.
func (h *LedgerHandler) requireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				h.writeJSON(w, http.StatusForbidden, ErrorResponse{
					Code:    domain.KindInvalidOperation,
					Message: "Account provisioning over HTTP is disabled.",
				})
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				h.logger.Warn("Rejected admin request",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				h.writeJSON(w, http.StatusUnauthorized, ErrorResponse{
					Code:    domain.KindCredentialMismatch,
					Message: domain.UserMessage(domain.ErrCredentialMismatch),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
