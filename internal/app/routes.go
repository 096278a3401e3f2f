package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tunnelkit/support/internal/handler"
	"github.com/tunnelkit/support/internal/middleware"
)

func (app *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(app.config.Cors.TrustedOrigins))

	// Health check
	r.Get("/api/health", handler.Health(app.accounts, app.sessions, app.mailer))
	r.Handle("/metrics", promhttp.HandlerFor(app.metrics, promhttp.HandlerOpts{}))

	limit := app.config.RateLimitPerMinute
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.PerMinute(limit), limit))

		supportHandler := handler.NewSupportHandler(app.logger, app.sessions, app.bundles)
		r.Route("/api/support/sessions", func(r chi.Router) {
			r.Post("/", supportHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", supportHandler.Get)
				r.Delete("/", supportHandler.Delete)
				r.Put("/draft", supportHandler.UpdateDraft)
				r.Post("/submit", supportHandler.Submit)
				r.Post("/retry", supportHandler.Retry)
				r.Post("/edit", supportHandler.Edit)
				r.Get("/log", supportHandler.ViewLog)
				r.Get("/log/bundle", supportHandler.DownloadLog)
			})
		})

		accountHandler := handler.NewAccountHandler(app.logger, app.accounts)
		r.Get("/api/account", accountHandler.Get)
		r.Put("/api/account", accountHandler.Update)
		r.Delete("/api/account", accountHandler.Delete)
	})

	return r
}
