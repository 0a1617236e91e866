package ledger_http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter serves the account routes. adminToken guards account
// provisioning; leave it empty to keep provisioning CLI-only.
func NewRouter(s LedgerService, l *zap.Logger, allowedOrigins []string, adminToken string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", credentialHeader},
		MaxAge:         300,
	}))

	RegisterRoutes(r, s, l, adminToken)
	return r
}

func RegisterRoutes(r chi.Router, s LedgerService, l *zap.Logger, adminToken string) {
	handler := NewLedgerHandler(s, l.With(zap.String("component", "LedgerHTTPHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ledger service is healthy!"))
	})

	r.Route("/accounts", func(r chi.Router) {
		r.With(handler.requireAdmin(adminToken)).Post("/", handler.OpenAccountHandler)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/balance", handler.GetBalanceHandler)
			r.Post("/deposit", handler.DepositHandler)
			r.Post("/withdraw", handler.WithdrawHandler)
			r.Post("/transfer", handler.TransferHandler)
			r.Post("/credential", handler.ChangeCredentialHandler)
		})
	})
}
