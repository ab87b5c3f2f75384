package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	httpmetrics "github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	custommiddleware "github.com/mmeshcher/topup-system/internal/middleware"
)

// Рекордер регистрирует коллекторы в глобальном реестре, поэтому создаётся один раз.
var httpMetrics = httpmetrics.New(httpmetrics.Config{
	Recorder: metricsprom.NewRecorder(metricsprom.Config{}),
})

// SetupRouter настраивает HTTP-маршруты и middleware сервиса пополнений.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Use(func(next http.Handler) http.Handler {
		return std.Handler("", httpMetrics, next)
	})

	r.Route("/api/user", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/deposits", h.CreateDeposit)
		r.Get("/deposits", h.GetDeposits)

		r.Get("/balance", h.GetBalance)

		r.Post("/purchases", h.CreatePurchase)
		r.Get("/purchases", h.GetPurchases)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.adminMiddleware.Middleware)

		r.Post("/users", h.ProvisionUser)
		r.Get("/users/{username}", h.AdminGetUser)

		r.Get("/deposits", h.AdminListDeposits)
		r.Get("/deposits/{id}", h.AdminGetDeposit)
		r.Post("/deposits/{id}/decision", h.DecideDeposit)

		r.Get("/purchases", h.AdminListPurchases)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
