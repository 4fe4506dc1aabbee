// Package main provides the Dripflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/dripflow/dripflow/pkg/runner"
	"github.com/dripflow/dripflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	scheduler    *runner.Scheduler
	triggerToken string
	validate     *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	scheduler *runner.Scheduler,
	triggerToken string,
) *API {
	return &API{
		logger:       logger,
		persistence:  persistence,
		scheduler:    scheduler,
		triggerToken: triggerToken,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.persistence, a.scheduler, a.validate, a.triggerToken)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Dripflow API")
	})

	app.Post("/automation/process", handlers.ProcessAutomation)

	t := app.Group("/t")
	t.Get("/o/:sendId", handlers.TrackOpen)
	t.Get("/c/:sendId", handlers.TrackClick)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/enroll", handlers.EnrollContact)

	app.Get("/runs/:id", handlers.GetRun)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
