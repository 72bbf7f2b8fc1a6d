// Package main provides the Leadflow API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/services"
	"github.com/dukex/leadflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	coordinator web.ExecutionCoordinator
	scheduler   web.Ticker
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	publisher eventbus.EventPublisher,
	coordinator web.ExecutionCoordinator,
	scheduler web.Ticker,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		publisher:   publisher,
		coordinator: coordinator,
		scheduler:   scheduler,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// App builds the fiber application with every route mounted.
func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.logger)
	publishingService := services.NewPublishing(a.persistence, a.logger, services.WithPublisher(a.publisher))
	nodeService := services.NewNode(a.persistence, a.logger)

	handlers := web.NewAPIHandlers(workflowService, publishingService, nodeService, a.coordinator, a.scheduler, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Leadflow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
