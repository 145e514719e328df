package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"qa-portal/internal/config"
	"qa-portal/internal/handlers"
	"qa-portal/internal/middleware"
	"qa-portal/internal/models"
	"qa-portal/internal/repository"
	"qa-portal/internal/service"
)

// Deps is the storage the API runs on; main picks Postgres or memory.
type Deps struct {
	NCPs          repository.NCPRepository
	Users         repository.UserRepository
	Notifications repository.NotificationRepository
	Audit         repository.AuditRepository
}

func New(log zerolog.Logger, deps Deps, cfg config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Origin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Total-Count", "X-Request-ID"},
		AllowCredentials: true,
	}))
	r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	r.Use(middleware.WithAuth(log, cfg.Secret()))

	// Health
	r.Get("/healthz", handlers.Health())

	// Services + handlers
	dispatcher := service.NewDispatcher(deps.Users, deps.Notifications, log)
	recorder := service.NewAuditRecorder(deps.Audit, log)
	ncpSvc := service.NewNCPService(deps.NCPs, deps.Users, dispatcher, recorder, log)
	authSvc := service.NewAuthService(deps.Users, cfg.Secret())

	nh := handlers.NewNCPHTTP(ncpSvc, log)
	ah := handlers.NewAuthHTTP(authSvc, deps.Users, cfg.Env != "dev")
	uh := handlers.NewUserHTTP(deps.Users, authSvc)
	noh := handlers.NewNotificationHTTP(deps.Notifications, log)
	rh := handlers.NewReportsHTTP(ncpSvc)
	auh := handlers.NewAuditHTTP(ncpSvc)

	admins := []models.Role{models.RoleSuperAdmin, models.RoleAdmin}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", ah.Login())
		r.Post("/logout", ah.Logout())
		r.With(middleware.RequireAuth).Get("/me", ah.Me())
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Route("/api/ncps", func(r chi.Router) {
			r.Get("/", nh.List())
			r.Post("/", nh.Submit())
			r.Get("/pending", nh.Pending())
			r.Get("/code/{code}", nh.GetByCode())
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", nh.Get())
				r.Get("/audit", nh.History())

				r.Post("/qa-approve", nh.Transition(ncpSvc.QAApprove))
				r.Post("/qa-reject", nh.Transition(ncpSvc.QAReject))
				r.Post("/tl-process", nh.Transition(ncpSvc.TLProcess))
				r.Post("/process-approve", nh.Transition(ncpSvc.ProcessApprove))
				r.Post("/process-reject", nh.Transition(ncpSvc.ProcessReject))
				r.Post("/manager-approve", nh.Transition(ncpSvc.ManagerApprove))
				r.Post("/manager-reject", nh.Transition(ncpSvc.ManagerReject))

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRoles(models.RoleSuperAdmin))
					r.Post("/revert", nh.Revert())
					r.Post("/reassign", nh.Reassign())
					r.Patch("/", nh.Edit())
					r.Delete("/", nh.Delete())
				})
			})
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", noh.List())
			r.Get("/unread-count", noh.UnreadCount())
			r.Post("/read-all", noh.MarkAllRead())
			r.Post("/{id}/read", noh.MarkRead())
		})

		r.Get("/api/reports/summary", rh.Summary())
		r.With(middleware.RequireRoles(admins...)).Get("/api/audit", auh.Recent())

		r.Route("/api/users", func(r chi.Router) {
			r.With(middleware.RequireRoles(admins...)).Get("/", uh.List())
			r.With(middleware.RequireRoles(admins...)).Post("/", uh.Create())
			r.Route("/{id}", func(r chi.Router) {
				r.With(middleware.RequireSelfOrRoles(admins...)).Get("/", uh.Get())
				r.With(middleware.RequireSelfOrRoles(admins...)).Patch("/basic", uh.UpdateBasic())
				r.With(middleware.RequireSelfOrRoles(admins...)).Patch("/password", uh.UpdatePassword())
				r.With(middleware.RequireRoles(admins...)).Patch("/role", uh.UpdateRole())
				r.With(middleware.RequireRoles(admins...)).Patch("/active", uh.SetActive())
			})
		})
	})

	return r
}
