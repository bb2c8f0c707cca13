package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paramvora-capmatch/capmatch-backend/api/controllers"
	"github.com/paramvora-capmatch/capmatch-backend/api/middleware"
	"github.com/paramvora-capmatch/capmatch-backend/internal/auth"
	"github.com/paramvora-capmatch/capmatch-backend/internal/entities"
	"github.com/paramvora-capmatch/capmatch-backend/internal/grants"
	"github.com/paramvora-capmatch/capmatch-backend/internal/invites"
	"github.com/paramvora-capmatch/capmatch-backend/internal/memberships"
	"github.com/paramvora-capmatch/capmatch-backend/internal/notifications"
	"github.com/paramvora-capmatch/capmatch-backend/internal/projects"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/auth/session"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/config"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/db"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/logger"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessionManager sessionManager,
	authService auth.Service,
	registerService auth.RegisterService,
	switchService auth.SwitchEntityService,
	entityService entities.Service,
	membershipService memberships.Service,
	membershipChecker middleware.MembershipChecker,
	inviteService invites.Service,
	projectService projects.Service,
	grantService grants.Service,
	accessResolver *grants.Resolver,
	notificationService notifications.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	// Managers and owners share roster administration; promotion and
	// demotion are further restricted to owners inside the services.
	requireAdminRole := middleware.RequireEntityRoles(membershipChecker, logg, enums.MemberRoleOwner, enums.MemberRoleManager)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.Post("/validate", controllers.PublicValidate(logg))
		// Invite preview and acceptance happen before the invitee has a
		// session, so both live outside the authenticated tree.
		r.Get("/invites/validate", controllers.InviteValidate(inviteService, logg))
		r.Post("/invites/accept", controllers.InviteAccept(inviteService, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, redisClient, logg)).Post("/register", controllers.AuthRegister(registerService, authService, logg))
		r.Post("/logout", controllers.AuthLogout(sessionManager, cfg.JWT, logg))
		r.Post("/refresh", controllers.AuthRefresh(sessionManager, cfg.JWT, logg))
		r.Post("/switch-entity", controllers.AuthSwitchEntity(switchService, cfg.JWT, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		// Routes that only need an authenticated user.
		r.Post("/v1/entities", controllers.EntityCreate(entityService, logg))
		// Signed-in users accept invites here so the membership lands on
		// their existing account instead of provisioning a new one.
		r.Post("/v1/invites/accept", controllers.InviteAccept(inviteService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.EntityContext(logg))
			r.Get("/ping", controllers.PrivatePing())

			r.Route("/v1/entities/me", func(r chi.Router) {
				r.Get("/", controllers.EntityProfile(entityService, logg))
				r.Put("/", controllers.EntityUpdate(entityService, logg))
				r.Get("/roster", controllers.EntityRoster(entityService, logg))
			})

			r.Route("/v1/members", func(r chi.Router) {
				r.Get("/", controllers.MemberList(membershipService, logg))
				r.Group(func(r chi.Router) {
					r.Use(requireAdminRole)
					r.Delete("/{membershipId}", controllers.MemberRemove(membershipService, logg))
					r.Post("/{membershipId}/promote", controllers.MemberPromote(membershipService, logg))
					r.Post("/{membershipId}/demote", controllers.MemberDemote(membershipService, logg))
					r.Post("/{membershipId}/change-role", controllers.MemberChangeRole(membershipService, logg))
				})
			})

			r.Route("/v1/invites", func(r chi.Router) {
				r.Use(requireAdminRole)
				r.Get("/", controllers.InviteList(membershipService, logg))
				r.Post("/", controllers.InviteCreate(inviteService, logg))
				r.Delete("/{membershipId}", controllers.InviteCancel(inviteService, logg))
			})

			r.Route("/v1/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(notificationService, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationService, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationService, logg))
			})

			r.Route("/v1/projects", func(r chi.Router) {
				r.Get("/", controllers.ProjectList(projectService, logg))
				r.With(requireAdminRole).Post("/", controllers.ProjectCreate(projectService, logg))

				r.Route("/{projectId}", func(r chi.Router) {
					r.Get("/", controllers.ProjectDetail(projectService, logg))
					r.With(requireAdminRole).Patch("/", controllers.ProjectUpdate(projectService, logg))
					r.With(requireAdminRole).Post("/archive", controllers.ProjectArchive(projectService, logg))

					r.Post("/access-check", controllers.CheckAccess(accessResolver, logg))

					r.Route("/users/{userId}/grants", func(r chi.Router) {
						r.Get("/", controllers.GrantList(grantService, logg))
						r.With(requireAdminRole).Post("/", controllers.BulkGrant(grantService, logg))
						r.With(requireAdminRole).Delete("/", controllers.BulkRevoke(grantService, logg))
					})
				})
			})
		})
	})

	return r
}
