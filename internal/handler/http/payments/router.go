package payments_http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"billing/internal/app/access"
	"billing/internal/app/payments"
)

type Options struct {
	WebhookSecret  string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(opts Options, s payments.PaymentService, gate access.Gate, l *zap.Logger) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:5173"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", access.PayerHeader, SignatureHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	RegisterRoutes(r, opts.WebhookSecret, s, gate, l)
	return r
}

func RegisterRoutes(r chi.Router, webhookSecret string, s payments.PaymentService, gate access.Gate, l *zap.Logger) {
	handler := NewPaymentHandler(s, l.With(zap.String("component", "PaymentHTTPHandler")))
	webhook := NewWebhookHandler(s, webhookSecret, l.With(zap.String("component", "WebhookHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, l, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Method(http.MethodPost, "/webhooks/mobile-money", webhook)

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", handler.CreatePaymentHandler)
		r.Post("/verify/{transactionId}", handler.VerifyPaymentHandler)
		r.Get("/transaction/{transactionId}", handler.GetPaymentByTransactionHandler)
		r.Get("/{id}", handler.GetPaymentHandler)
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", handler.CreateAccountHandler)
		r.Get("/{payerId}", handler.GetAccountHandler)
		r.Get("/{payerId}/payments", handler.ListAccountPaymentsHandler)
		r.Post("/{payerId}/beneficiaries", handler.LinkBeneficiaryHandler)
		r.Post("/{payerId}/reconcile", handler.ReconcileAccountHandler)
	})

	r.Route("/access", func(r chi.Router) {
		r.With(access.RequirePaid(gate, "studentId", handler.writeError)).
			Get("/bulletins/{studentId}", handler.BulletinAccessHandler)
	})
}
