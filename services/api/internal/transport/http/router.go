package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RouterConfig carries the services behind each route group. Prices may be
// nil, in which case the price feed route is not mounted.
type RouterConfig struct {
	Logger         *zap.Logger
	CORSOrigins    []string
	ConfirmLimiter *rate.Limiter
	Health         map[string]HealthCheck

	Checkout OrderCreator
	Payments PaymentProcessor
	Guests   GuestReconciler
	Ledger   Ledger
	Audit    LedgerAuditor
	Holdings HoldingAggregator
	Prices   PriceSetter
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.CORSOrigins))

	r.NotFound(NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(MethodNotAllowedHandler().ServeHTTP)

	r.Get("/health", HandleHealth(cfg.Health))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", HandleCreateOrder(cfg.Checkout))
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", HandleGetOrder(cfg.Payments))
			r.With(RateLimit(cfg.ConfirmLimiter)).Post("/confirm", HandleConfirmPayment(cfg.Payments))
			r.Get("/payment-window", HandlePaymentWindow(cfg.Payments))
			r.Post("/status", HandleOrderStatus(cfg.Payments))
		})
	})

	r.Post("/guests/reconcile", HandleReconcileGuest(cfg.Guests))

	r.Route("/wallets/{ownerID}", func(r chi.Router) {
		r.Use(RequireOwner)
		r.Post("/transactions", HandleRecordTransaction(cfg.Ledger))
		r.Get("/transactions", HandleListTransactions(cfg.Ledger))
		r.Get("/balance", HandleBalance(cfg.Ledger))
	})

	r.Post("/holdings/trades", HandleApplyTrade(cfg.Holdings))
	r.With(RequireOwner).Get("/holdings/{ownerID}/{instrumentID}/valuation", HandleValuation(cfg.Holdings))

	r.Route("/admin", func(r chi.Router) {
		r.Get("/wallets/{ownerID}/audit", HandleAudit(cfg.Audit))
		r.Post("/transactions/{txID}/status", HandleTransactionStatus(cfg.Ledger))
		if cfg.Prices != nil {
			r.Put("/prices/{instrumentID}", HandleSetPrice(cfg.Prices))
		}
	})

	return r
}

// RequireOwner rejects requests whose X-Owner-ID differs from the {ownerID}
// path segment.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.Header.Get(ownerHeader)
		if caller == "" {
			writeError(w, http.StatusUnauthorized, codeOwnerRequired, "owner id is required")
			return
		}
		if caller != chi.URLParam(r, "ownerID") {
			writeError(w, http.StatusForbidden, codeForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
