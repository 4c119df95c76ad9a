package main

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	"github.com/mind-engage/mindengage-quiz/internal/auth"
	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/logger"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

type deps struct {
	log         *logger.Logger
	backend     backend.Client
	auth        *auth.AuthService
	registry    *quiz.Registry
	blobs       storage.BlobStore
	corsOrigins []string
	readiness   map[string]api.Pinger
}

func newRouter(d deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, api.RequestLogger(d.log), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", api.HealthzHandler())
	r.Get("/readyz", api.ReadyzHandler(d.readiness))

	r.Post("/auth/login", api.LoginHandler(d.backend, d.auth))
	r.Post("/auth/register", api.RegisterHandler(d.backend))

	// image urls are embedded in <img> tags, so assets are public; keys are random
	r.Route("/assets", func(ar chi.Router) {
		api.MountAssets(ar, d.blobs)
	})

	// Protected API (JWT → principal + role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.Middleware(d.auth))

		pr.Post("/auth/logout", api.LogoutHandler(d.auth))
		pr.Get("/auth/me", api.MeHandler())

		// catalog
		pr.With(rbac.Require("catalog:view")).Get("/subjects", api.ListSubjectsHandler(d.backend))
		pr.With(rbac.Require("catalog:manage")).Post("/subjects", api.CreateSubjectHandler(d.backend))
		pr.With(rbac.Require("catalog:view")).Get("/categories", api.ListCategoriesHandler(d.backend))
		pr.With(rbac.Require("catalog:manage")).Post("/categories", api.CreateCategoryHandler(d.backend))
		pr.With(rbac.Require("catalog:view")).Get("/keywords", api.ListKeywordsHandler(d.backend))
		pr.With(rbac.Require("catalog:manage")).Post("/keywords", api.CreateKeywordHandler(d.backend))

		// questions
		pr.With(rbac.Require("question:search")).Get("/questions", api.SearchQuestionsHandler(d.backend))
		pr.With(rbac.Require("question:manage")).Post("/questions", api.CreateQuestionHandler(d.backend))
		pr.With(rbac.Require("question:manage")).
			Post("/questions/{questionID}/images", api.UploadQuestionImageHandler(d.backend, d.blobs))

		// quiz sessions
		pr.Route("/quiz/sessions", func(qr chi.Router) {
			qr.Use(rbac.Require("quiz:play"))
			qr.Post("/", api.StartQuizHandler(d.backend, d.registry))
			qr.Get("/{sessionID}", api.GetQuizHandler(d.registry))
			qr.Delete("/{sessionID}", api.AbandonQuizHandler(d.registry))
			qr.Post("/{sessionID}/navigate", api.NavigateQuizHandler(d.registry))
			qr.Post("/{sessionID}/answer", api.AnswerQuizHandler(d.registry))
			qr.Post("/{sessionID}/clear", api.ClearQuizAnswerHandler(d.registry))
			qr.Post("/{sessionID}/bookmark", api.BookmarkQuizHandler(d.registry))
			qr.Post("/{sessionID}/submit", api.SubmitQuizAnswerHandler(d.registry))
			qr.With(rbac.Require("report:create")).
				Post("/{sessionID}/report", api.ReportQuizQuestionHandler(d.backend, d.registry))
			qr.Post("/{sessionID}/finish", api.FinishQuizHandler(d.backend, d.registry))
		})

		pr.With(rbac.Require("score:view-own")).Get("/scores", api.ListMyScoresHandler(d.backend))

		// reports
		pr.With(rbac.Require("report:review")).Get("/reports", api.ListReportsHandler(d.backend))
		pr.With(rbac.Require("report:review")).Post("/reports/{reportID}/resolve", api.ResolveReportHandler(d.backend))

		// admin approval (super-admin)
		pr.With(rbac.Require("admin:approve")).Get("/admin/pending", api.ListPendingAdminsHandler(d.backend))
		pr.With(rbac.Require("admin:approve")).Post("/admin/{userID}/approve", api.DecideAdminHandler(d.backend, true))
		pr.With(rbac.Require("admin:approve")).Post("/admin/{userID}/reject", api.DecideAdminHandler(d.backend, false))
	})

	return r
}
