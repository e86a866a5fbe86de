// Package main provides the approvals API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/cmsflow/approvals/pkg/cmd"
	"github.com/cmsflow/approvals/pkg/content"
	"github.com/cmsflow/approvals/pkg/eventbus"
	"github.com/cmsflow/approvals/pkg/metrics"
	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/cmsflow/approvals/pkg/services"
	"github.com/cmsflow/approvals/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	users       services.UserDirectory
	eventBus    eventbus.EventBus
	metrics     *metrics.Recorder
	tracer      trace.Tracer
	validate    *validator.Validate
}

// NewAPI wires the HTTP API. eventBus and tracer may be nil.
func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	users services.UserDirectory,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		users:       users,
		eventBus:    eventBus,
		metrics:     metrics.NewRecorder(),
		tracer:      tracer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) engine() *services.Engine {
	callbacks := services.NewCallbacks(a.logger)

	if db, ok := cmd.SQLDB(a.persistence); ok {
		content.NewHandler(db, a.logger).Register(callbacks)
	}

	opts := []services.EngineOption{
		services.WithLogger(a.logger),
		services.WithMetrics(a.metrics),
	}

	if a.eventBus != nil {
		opts = append(opts, services.WithEventPublisher(a.eventBus))
	}

	if a.tracer != nil {
		opts = append(opts, services.WithTracer(a.tracer))
	}

	return services.NewEngine(a.persistence, services.NewDispatcher(a.users, a.logger), callbacks, opts...)
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence)
	handlers := web.NewAPIHandlers(workflowService, a.engine(), a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))
	app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Approvals API")
	})

	handlers.Routes(app)

	return app
}

// Start serves the API until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		err := app.Shutdown()
		if err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
