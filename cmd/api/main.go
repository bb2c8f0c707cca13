package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paramvora-capmatch/capmatch-backend/api/routes"
	"github.com/paramvora-capmatch/capmatch-backend/internal/auth"
	"github.com/paramvora-capmatch/capmatch-backend/internal/entities"
	"github.com/paramvora-capmatch/capmatch-backend/internal/grants"
	"github.com/paramvora-capmatch/capmatch-backend/internal/invites"
	"github.com/paramvora-capmatch/capmatch-backend/internal/memberships"
	"github.com/paramvora-capmatch/capmatch-backend/internal/notifications"
	"github.com/paramvora-capmatch/capmatch-backend/internal/projects"
	"github.com/paramvora-capmatch/capmatch-backend/internal/users"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/auth/session"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/config"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/db"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/logger"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/metrics"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/migrate"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(dbClient.DB())
	entityRepo := entities.NewRepository(dbClient.DB())
	membershipRepo := memberships.NewRepo(dbClient.DB())
	grantRepo := grants.NewRepo(dbClient.DB())
	projectRepo := projects.NewRepo(dbClient.DB())

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	accessMetrics := metrics.NewAccessMetrics(prometheus.DefaultRegisterer)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:        userRepo,
		MembershipsRepo: membershipRepo,
		SessionManager:  sessionManager,
		JWTConfig:       cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner:       dbClient,
		Outbox:         outboxService,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create register service", err)
		os.Exit(1)
	}

	switchService, err := auth.NewSwitchEntityService(auth.SwitchEntityServiceParams{
		MembershipsRepo: membershipRepo,
		EntityRepo:      entityRepo,
		SessionManager:  sessionManager,
		JWTConfig:       cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create switch service", err)
		os.Exit(1)
	}

	entityService, err := entities.NewService(entityRepo, membershipRepo, userRepo, dbClient, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create entity service", err)
		os.Exit(1)
	}

	accessResolver, err := grants.NewResolver(grantRepo, accessMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create access resolver", err)
		os.Exit(1)
	}

	membershipService, err := memberships.NewService(membershipRepo, grantRepo, dbClient, outboxService, accessResolver, cfg.Invite)
	if err != nil {
		logg.Error(context.Background(), "failed to create membership service", err)
		os.Exit(1)
	}

	inviteService, err := invites.NewService(
		membershipRepo,
		userRepo,
		entityRepo,
		grantRepo,
		dbClient,
		outboxService,
		accessMetrics,
		cfg.Invite,
		cfg.Password,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create invite service", err)
		os.Exit(1)
	}

	projectService, err := projects.NewService(projectRepo, membershipRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create project service", err)
		os.Exit(1)
	}

	grantService, err := grants.NewService(grantRepo, membershipRepo, dbClient, outboxService, accessResolver)
	if err != nil {
		logg.Error(context.Background(), "failed to create grant service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			authService,
			registerService,
			switchService,
			entityService,
			membershipService,
			membershipRepo,
			inviteService,
			projectService,
			grantService,
			accessResolver,
			notificationService,
			promhttp.Handler(),
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
