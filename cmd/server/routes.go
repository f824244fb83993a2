package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/marketing-dashboard/internal/auth"
	"github.com/unclebandit/marketing-dashboard/internal/controller"
	"github.com/unclebandit/marketing-dashboard/internal/handler"
	appMiddleware "github.com/unclebandit/marketing-dashboard/internal/middleware"
	"github.com/unclebandit/marketing-dashboard/internal/model"
)

type app struct {
	verifier auth.Verifier
	access   appMiddleware.Access

	public    *handler.PublicHandler
	contacts  *controller.ContactController
	templates *controller.TemplateController
	campaigns *controller.CampaignController
	emails    *controller.EmailController
	dashboard *controller.DashboardController
	admin     *controller.AdminController

	allowedOrigins []string
	logger         *slog.Logger
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appMiddleware.RequestLogger(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(appMiddleware.Metrics)

	r.Get("/healthz", a.public.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/unsubscribe/{token}", a.public.UnsubscribePage)
	r.Post("/unsubscribe/{token}", a.public.Unsubscribe)
	r.Post("/webhooks/email", a.public.EmailWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(appMiddleware.Authenticate(a.verifier, a.access))

		r.Get("/me/permissions", a.admin.MyPermissions)

		r.Route("/contacts", func(r chi.Router) {
			r.Use(appMiddleware.RequirePage(a.access, model.PageContacts))
			r.Get("/", a.contacts.List)
			r.Post("/", a.contacts.Create)
			r.Post("/import", a.contacts.Import)
			r.Get("/export", a.contacts.Export)
			r.Post("/check-duplicates", a.contacts.CheckDuplicates)
			r.Get("/tags", a.contacts.Tags)
			r.Post("/tags/add", a.contacts.AddTags)
			r.Post("/tags/remove", a.contacts.RemoveTags)
			r.Post("/status", a.contacts.SetStatus)
			r.Get("/{id}", a.contacts.Get)
			r.Patch("/{id}", a.contacts.Update)
			r.Delete("/{id}", a.contacts.Delete)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Use(appMiddleware.RequirePage(a.access, model.PageTemplates))
			r.Get("/", a.templates.List)
			r.Post("/", a.templates.Create)
			r.Post("/generate-code", a.templates.GenerateCode)
			r.Get("/{code}", a.templates.Get)
			r.Put("/{code}", a.templates.Update)
			r.Delete("/{code}", a.templates.Delete)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Use(appMiddleware.RequirePage(a.access, model.PageCampaigns))
			r.Get("/", a.campaigns.ListCampaigns)
			r.Post("/", a.campaigns.CreateCampaign)
			r.Post("/audience/preview", a.campaigns.PreviewAudience)
			r.Get("/{id}", a.campaigns.GetCampaignDetails)
			r.Patch("/{id}", a.campaigns.UpdateCampaign)
			r.Delete("/{id}", a.campaigns.DeleteCampaign)
			r.Get("/{id}/logs", a.campaigns.Logs)
			r.Post("/{id}/start", a.campaigns.StartCampaign)
			r.Post("/{id}/pause", a.campaigns.PauseCampaign())
			r.Post("/{id}/resume", a.campaigns.ResumeCampaign())
			r.Post("/{id}/complete", a.campaigns.CompleteCampaign())
			r.Post("/{id}/archive", a.campaigns.ArchiveCampaign())
			r.Post("/{id}/duplicate", a.campaigns.DuplicateCampaign)
			r.Post("/{id}/send", a.campaigns.SendCampaign)
		})

		r.With(appMiddleware.RequirePage(a.access, model.PageEmailSender)).Post("/emails/send", a.emails.Send)

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(appMiddleware.RequirePage(a.access, model.PageDashboard))
			r.Get("/summary", a.dashboard.Summary)
			r.Get("/growth", a.dashboard.Growth)
			r.Get("/top-campaigns", a.dashboard.TopCampaigns)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(appMiddleware.RequireSuperAdmin(a.access))
			r.Get("/users", a.admin.ListUsers)
			r.Put("/users/{id}/role", a.admin.AssignRole)
			r.Put("/users/{id}/active", a.admin.SetActive)
			r.Get("/permissions", a.admin.ListPermissions)
			r.Put("/permissions/{role}", a.admin.SetPermissions)
		})
	})

	return r
}
