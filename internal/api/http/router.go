package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/mindengage-jupyter/internal/activity"
	"github.com/mind-engage/mindengage-jupyter/internal/availability"
	auth "github.com/mind-engage/mindengage-jupyter/internal/auth/middleware"
	"github.com/mind-engage/mindengage-jupyter/internal/logger"
	"github.com/mind-engage/mindengage-jupyter/internal/rbac"
	"github.com/mind-engage/mindengage-jupyter/internal/submission"
)

type Deps struct {
	Store      activity.Store
	Files      Files
	Activities *activity.Service
	Reconciler *submission.Reconciler
	Checker    *availability.Checker
	HubURL     string

	Auth          *auth.AuthService
	HubTokens     *auth.HubTokens
	AdminUser     string
	AdminPassHash string

	CORSOrigins []string
	Timeout     time.Duration
	Log         *logger.Logger
}

// NewRouter mounts every route of the service.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Post("/auth/login", auth.LoginHandler(d.Auth, d.AdminUser, d.AdminPassHash))

	// Notebook client hooks, authenticated by the hub login token.
	r.Route("/webservice", func(wr chi.Router) {
		wr.Post("/submit_notebook", SubmitNotebookHandler(d.Reconciler, d.HubTokens, d.Log))
		wr.Post("/reset_notebook", ResetNotebookHandler(d.Activities, d.HubTokens, d.Log))
	})

	// Session JWT → role in context → RBAC
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		pr.With(rbac.Require(rbac.PermNotebookView)).
			Get("/view", ViewHandler(d.Activities, d.Log))

		pr.With(rbac.Require(rbac.PermActivityManage)).
			Post("/activities", CreateActivityHandler(d.Store))
		pr.With(rbac.RequireAny(rbac.PermActivityView, rbac.PermActivityManage)).
			Get("/activities/{id}", GetActivityHandler(d.Store, d.Files))
		pr.With(rbac.Require(rbac.PermActivityManage)).
			Post("/activities/{id}/package", UploadPackageHandler(d.Store, d.Files, d.Log))
		pr.With(rbac.Require(rbac.PermActivityManage)).
			Get("/activities/{id}/package", DownloadPackageHandler(d.Store, d.Files))
		pr.With(rbac.Require(rbac.PermActivityManage)).
			Put("/activities/{id}/questions", SetQuestionsHandler(d.Store))

		pr.With(rbac.Require(rbac.PermHubStatus)).
			Get("/hub/status", HubStatusHandler(d.Checker, d.HubURL))
	})
	return r
}
