package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/mailcraft/internal/app"
	"github.com/ignite/mailcraft/internal/auth"
	"github.com/ignite/mailcraft/internal/config"
	"github.com/ignite/mailcraft/internal/pkg/httputil"
)

// Deps is what the router needs. Tracking, Health and Google are optional.
type Deps struct {
	Config   *config.Config
	Services *app.Services
	Tracking http.Handler
	Health   *HealthChecker
	Google   *auth.Google
}

// Handlers serves the JSON API on top of the service graph.
type Handlers struct {
	svc *app.Services
}

func NewHandlers(svc *app.Services) *Handlers {
	return &Handlers{svc: svc}
}

// NewRouter builds the full HTTP surface: health, auth, the brand-scoped
// API, public subscription and tracking.
func NewRouter(d Deps) *chi.Mux {
	h := NewHandlers(d.Services)
	r := chi.NewRouter()

	// set before any Route/Mount so sub-routers inherit them
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.NotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.MethodNotAllowed(w)
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if d.Health != nil {
		r.Get("/health", d.Health.HandleHealth)
		r.Get("/health/live", d.Health.HandleLiveness)
		r.Get("/health/ready", d.Health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			httputil.OK(w, map[string]string{"status": "healthy"})
		})
	}

	if d.Google != nil {
		r.Get("/auth/google/login", d.Google.HandleLogin)
		r.Get("/auth/google/callback", d.Google.HandleCallback)
	}

	r.Route("/public", func(r chi.Router) {
		r.Post("/lists/{listID}/subscribe", h.Subscribe)
	})
	if d.Tracking != nil {
		r.Mount("/t", d.Tracking)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Get("/operators", h.Operators)

		r.Group(func(r chi.Router) {
			r.Use(d.Services.Tokens.Middleware)
			r.Get("/auth/me", h.Me)

			r.Get("/brands", h.ListBrands)
			r.Post("/brands", h.CreateBrand)

			r.Route("/brands/{brandID}", func(r chi.Router) {
				r.Use(h.brandCtx)
				r.Get("/", h.GetBrand)
				r.Delete("/", h.DeleteBrand)

				r.Route("/lists", func(r chi.Router) {
					r.Get("/", h.ListLists)
					r.Post("/", h.CreateList)
					r.Get("/{listID}", h.GetList)
					r.Delete("/{listID}", h.DeleteList)
					r.Get("/{listID}/export.csv", h.ExportList)
				})

				r.Route("/contacts", func(r chi.Router) {
					r.Get("/", h.ListContacts)
					r.Post("/", h.CreateContact)
					r.Get("/{contactID}", h.GetContact)
					r.Patch("/{contactID}", h.UpdateContact)
					r.Delete("/{contactID}", h.DeleteContact)
					r.Post("/{contactID}/tags", h.AddTags)
					r.Delete("/{contactID}/tags", h.RemoveTags)
					r.Put("/{contactID}/status", h.SetContactStatus)
				})

				r.Route("/segments", func(r chi.Router) {
					r.Get("/", h.ListSegments)
					r.Post("/", h.CreateSegment)
					r.Post("/preview", h.PreviewSegment)
					r.Post("/refresh", h.RefreshSegments)
					r.Get("/{segmentID}", h.GetSegment)
					r.Put("/{segmentID}", h.UpdateSegment)
					r.Delete("/{segmentID}", h.DeleteSegment)
					r.Post("/{segmentID}/refresh", h.RefreshSegment)
					r.Get("/{segmentID}/contacts", h.SegmentContacts)
					r.Post("/{segmentID}/members", h.AddSegmentMembers)
					r.Delete("/{segmentID}/members", h.RemoveSegmentMembers)
					r.Get("/{segmentID}/export.csv", h.ExportSegment)
				})

				r.Route("/sequences", func(r chi.Router) {
					r.Get("/", h.ListSequences)
					r.Post("/", h.CreateSequence)
					r.Get("/enrollments/{enrollmentID}", h.GetEnrollment)
					r.Delete("/enrollments/{enrollmentID}", h.CancelEnrollment)
					r.Get("/{sequenceID}", h.GetSequence)
					r.Put("/{sequenceID}", h.UpdateSequence)
					r.Get("/{sequenceID}/enrollments", h.ListEnrollments)
					r.Post("/{sequenceID}/enrollments", h.Enroll)
					r.Get("/{sequenceID}/stats", h.SequenceStats)
				})

				r.Route("/templates", func(r chi.Router) {
					r.Get("/", h.ListTemplates)
					r.Post("/", h.CreateTemplate)
					r.Get("/{templateID}", h.GetTemplate)
					r.Put("/{templateID}", h.UpdateTemplate)
					r.Delete("/{templateID}", h.DeleteTemplate)
					r.Post("/{templateID}/render", h.RenderTemplate)
					r.Post("/{templateID}/send", h.SendTemplate)
				})

				r.Route("/campaigns", func(r chi.Router) {
					r.Get("/", h.ListCampaigns)
					r.Post("/", h.CreateCampaign)
					r.Get("/{campaignID}", h.GetCampaign)
					r.Put("/{campaignID}", h.UpdateCampaign)
					r.Delete("/{campaignID}", h.DeleteCampaign)
					r.Post("/{campaignID}/send", h.SendCampaign)
				})
			})
		})
	})

	return r
}
