package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/api/handlers"
	"github.com/gatherspace/server/internal/api/middleware"
	"github.com/gatherspace/server/internal/audit"
	"github.com/gatherspace/server/internal/auth"
	"github.com/gatherspace/server/internal/cache"
	"github.com/gatherspace/server/internal/config"
	"github.com/gatherspace/server/internal/domain/analytics"
	"github.com/gatherspace/server/internal/domain/events"
	"github.com/gatherspace/server/internal/domain/messages"
	"github.com/gatherspace/server/internal/domain/programs"
	"github.com/gatherspace/server/internal/domain/registrations"
	"github.com/gatherspace/server/internal/domain/users"
	"github.com/gatherspace/server/internal/email"
	"github.com/gatherspace/server/internal/jobs"
	"github.com/gatherspace/server/internal/metrics"
	"github.com/gatherspace/server/internal/notify"
	"github.com/gatherspace/server/internal/storage/postgres"
)

// Router bundles the HTTP handler with the long-lived components the
// server command needs after construction: the job client it has to
// start and stop, and the user service for admin bootstrap.
type Router struct {
	Handler     http.Handler
	RiverClient *river.Client[pgx.Tx]
	Users       *users.Service
}

// NewRouter wires repositories, services, background workers, and
// handlers into the full API surface. The pool must already be
// connected and migrated.
func NewRouter(cfg config.Config, logger zerolog.Logger, pool *pgxpool.Pool, version, gitCommit, buildDate string) (*Router, error) {
	eventsRepo := postgres.NewEventsRepository(pool)
	registrationsRepo := postgres.NewRegistrationsRepository(pool)
	messagesRepo := postgres.NewMessagesRepository(pool)
	usersRepo := postgres.NewUsersRepository(pool)
	programsRepo := postgres.NewProgramsRepository(pool)
	analyticsRepo := postgres.NewAnalyticsRepository(pool)

	store := cache.New(cfg.Cache, logger)

	emailService, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return nil, err
	}

	eventService := events.NewService(eventsRepo, store, logger)
	registrationService := registrations.NewService(registrationsRepo, eventsRepo, store, logger)
	messageService := messages.NewService(messagesRepo, store, logger)
	userService := users.NewService(usersRepo, audit.NewLoggerWithZerolog(logger), logger)
	programService := programs.NewService(programsRepo, store, logger)
	analyticsService := analytics.NewService(analyticsRepo, store, logger)

	notifier := notify.NewOrchestrator(messageService, usersRepo, emailService, notify.NewLogBroadcaster(logger), logger)

	workers := jobs.NewWorkers(notifier, eventService, registrationService, messageService, cfg.Jobs, logger)
	jobLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	riverClient, err := jobs.NewClient(pool, workers, jobLogger, nil, jobs.NewPeriodicJobs(cfg.Jobs))
	if err != nil {
		return nil, err
	}

	enqueue := func(ctx context.Context, input notify.Input) error {
		opts := jobs.InsertOptsForKind(jobs.JobKindNotifyFanout)
		_, err := riverClient.Insert(ctx, jobs.NotifyFanoutArgs{Input: input}, &opts)
		return err
	}

	eventsHandler := handlers.NewEventsHandler(eventService, registrationService, notifier, enqueue)
	guestsHandler := handlers.NewGuestsHandler(registrationService, eventService, userService, notifier, emailService)
	messagesHandler := handlers.NewMessagesHandler(messageService, enqueue)
	notificationsHandler := handlers.NewNotificationsHandler(messageService)
	profileHandler := handlers.NewProfileHandler(userService, registrationService)
	programsHandler := handlers.NewProgramsHandler(programService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)
	health := handlers.NewHealthChecker(pool, riverClient, version, gitCommit)

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.Issuer)
	authenticate := middleware.Authenticate(jwtManager)

	// RateLimit is called once so every route shares one limiter store.
	// Tier tags must sit outside the limiter in each chain: the limiter
	// reads the tier from the request context.
	limit := middleware.RateLimit(cfg.RateLimit)
	publicBody := middleware.PublicRequestSize()
	adminBody := middleware.AdminRequestSize()
	memberTier := middleware.WithRateLimitTierHandler(middleware.TierMember)
	adminTier := middleware.WithRateLimitTierHandler(middleware.TierAdmin)

	public := func(h http.HandlerFunc) http.Handler {
		return limit(publicBody(h))
	}
	member := func(h http.HandlerFunc) http.Handler {
		return authenticate(memberTier(limit(publicBody(h))))
	}
	organizer := func(h http.HandlerFunc) http.Handler {
		return authenticate(middleware.RequireRole(auth.RoleOrganizer, auth.RoleAdmin)(memberTier(limit(publicBody(h)))))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return authenticate(middleware.RequireAdmin()(adminTier(limit(adminBody(h)))))
	}

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", public(health.Healthz))
	mux.Handle("GET /readyz", public(health.Readyz))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("GET /version", public(VersionHandler(version, gitCommit, buildDate).ServeHTTP))

	mux.Handle("GET /api/v1/events", public(eventsHandler.List))
	mux.Handle("POST /api/v1/events", organizer(eventsHandler.Create))
	mux.Handle("GET /api/v1/events/{id}", public(eventsHandler.Get))
	mux.Handle("PATCH /api/v1/events/{id}", organizer(eventsHandler.Update))
	mux.Handle("DELETE /api/v1/events/{id}", organizer(eventsHandler.Delete))
	mux.Handle("POST /api/v1/events/{id}/registrations", member(eventsHandler.Register))
	mux.Handle("DELETE /api/v1/events/{id}/registrations", member(eventsHandler.CancelRegistration))
	mux.Handle("GET /api/v1/events/{id}/registrations", member(eventsHandler.ListRegistrations))
	mux.Handle("POST /api/v1/events/{id}/guest-signup", public(guestsHandler.Signup))
	mux.Handle("POST /api/v1/guests/migrate", member(guestsHandler.Migrate))

	mux.Handle("GET /api/v1/messages", member(messagesHandler.Inbox))
	mux.Handle("POST /api/v1/messages", admin(messagesHandler.Broadcast))
	mux.Handle("POST /api/v1/messages/{id}/read", member(messagesHandler.MarkRead))
	mux.Handle("DELETE /api/v1/messages/{id}", member(messagesHandler.Delete))
	mux.Handle("POST /api/v1/messages/{id}/retract", admin(messagesHandler.Retract))

	mux.Handle("GET /api/v1/notifications", member(notificationsHandler.List))
	mux.Handle("POST /api/v1/notifications/{id}/read", member(notificationsHandler.MarkRead))
	mux.Handle("POST /api/v1/notifications/read-all", member(notificationsHandler.MarkAllRead))
	mux.Handle("DELETE /api/v1/notifications/{id}", member(notificationsHandler.Dismiss))

	mux.Handle("GET /api/v1/profile", member(profileHandler.Get))
	mux.Handle("PATCH /api/v1/profile", member(profileHandler.Update))
	mux.Handle("POST /api/v1/profile/password", member(profileHandler.ChangePassword))
	mux.Handle("GET /api/v1/profile/registrations", member(profileHandler.Registrations))

	// Program updates stay member-gated here; the service rejects
	// writers who are neither the owner nor an admin.
	mux.Handle("GET /api/v1/programs", member(programsHandler.List))
	mux.Handle("POST /api/v1/programs", admin(programsHandler.Create))
	mux.Handle("GET /api/v1/programs/{id}", member(programsHandler.Get))
	mux.Handle("PATCH /api/v1/programs/{id}", member(programsHandler.Update))

	mux.Handle("GET /api/v1/analytics/overview", admin(analyticsHandler.Overview))
	mux.Handle("GET /api/v1/analytics/registrations", admin(analyticsHandler.Registrations))
	mux.Handle("GET /api/v1/analytics/programs", admin(analyticsHandler.Programs))
	mux.Handle("GET /api/v1/analytics/export", admin(analyticsHandler.Export))

	// CORS sits innermost of the base chain so preflights are answered
	// before the mux matches method patterns.
	var handler http.Handler = mux
	handler = middleware.CORS(cfg.CORS, logger)(handler)
	handler = middleware.SecurityHeaders(cfg.Environment == "production")(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)

	return &Router{
		Handler:     handler,
		RiverClient: riverClient,
		Users:       userService,
	}, nil
}
