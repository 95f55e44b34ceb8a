// Package main provides the expflow API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/expflow/expflow/pkg/catalog"
	"github.com/expflow/expflow/pkg/engine"
	"github.com/expflow/expflow/pkg/persistence"
	"github.com/expflow/expflow/pkg/services"
	"github.com/expflow/expflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	validate    *validator.Validate
	tracer      trace.Tracer
	templates   []string
}

func NewAPI(logger *slog.Logger, persistence persistence.Persistence) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// App wires services, engine and handlers into a Fiber application. The
// engine components keep running until ctx is cancelled.
func (a *API) App(ctx context.Context) *fiber.App {
	nodeCatalog := catalog.New()

	opts := []engine.Option{}
	if a.tracer != nil {
		opts = append(opts, engine.WithTracer(a.tracer))
	}

	executor := engine.NewExecutor(a.logger, a.persistence.RunRepository(), opts...)

	workflowService := services.NewWorkflow(a.persistence, nodeCatalog,
		catalog.StaticTemplates(a.templates))
	runService := services.NewRun(a.persistence, executor)
	triggerService := services.NewTrigger(a.persistence)
	jobService := services.NewJob(a.persistence, executor)

	dispatcher := engine.NewDispatcher(a.logger, triggerService, runService)
	executor.SetEventSink(dispatcher)
	dispatcher.Start(ctx)

	scheduler := engine.NewScheduler(a.logger, triggerService, runService)
	scheduler.Start(ctx)

	handlers := web.NewAPIHandlers(
		workflowService, runService, triggerService, jobService,
		nodeCatalog, a.validate, executor)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("expflow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	app := a.App(ctx)

	return app.Listen(":" + strconv.Itoa(port))
}
