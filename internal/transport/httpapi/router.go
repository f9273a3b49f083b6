package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

// NewRouter собирает REST API. idem может быть nil, тогда Idempotency-Key игнорируется.
func NewRouter(h *Handler, idem *Idempotency, logger *log.Entry) http.Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http-api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Put("/products/{productRef}", h.PutProduct)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/cart", h.GetCart)
			r.Put("/cart/{productRef}", h.PutCartLine)
			r.Get("/orders", h.ListUserOrders)
			r.With(idem.Middleware).Post("/orders", h.CreateOrder)
		})

		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Get("/history", h.GetOrderHistory)
			r.Get("/payments", h.ListOrderPayments)

			r.Group(func(r chi.Router) {
				r.Use(idem.Middleware)
				r.Post("/cancel", h.CancelOrder)
				r.Post("/ship", h.ShipOrder)
				r.Post("/refund", h.RefundOrder)
				r.Post("/payments", h.ProcessPayment)
			})
		})

		r.Get("/payments/{transactionID}/validate", h.ValidatePayment)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, domain.FailureNotFound, "route not found")
	})
	return r
}

// requestLogger пишет одну строку logrus на запрос.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			entry := logger.WithFields(log.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("http request")
				return
			}
			entry.Debug("http request")
		})
	}
}
