// Package main provides the Approvia API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/ledgerops/approvia/pkg/eventbus"
	"github.com/ledgerops/approvia/pkg/journal"
	"github.com/ledgerops/approvia/pkg/persistence"
	"github.com/ledgerops/approvia/pkg/web"
	"github.com/ledgerops/approvia/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	authorizer  workflow.Authorizer
	converter   workflow.CurrencyConverter
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	authorizer workflow.Authorizer,
	converter workflow.CurrencyConverter,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		authorizer:  authorizer,
		converter:   converter,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	service := workflow.NewService(a.persistence, a.eventBus, a.converter, a.logger)
	recorder := workflow.NewRecorder(a.persistence, a.eventBus, a.authorizer, a.logger)
	runner := journal.NewRunner(a.persistence, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(service, recorder, runner, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Approvia API")
	})

	w := app.Group("/workflows")
	w.Post("/submissions", handlers.SubmitDocument)
	w.Get("/instances/:id", handlers.GetInstance)
	w.Post("/instances/:id/actions", handlers.RecordAction)
	w.Post("/instances/:id/cancel", handlers.CancelInstance)

	j := app.Group("/journal-definitions")
	j.Post("/", handlers.CreateJournalDefinition)
	j.Get("/", handlers.ListJournalDefinitions)
	j.Get("/:id/logs", handlers.GetJournalDefinitionLogs)
	j.Post("/:id/run", handlers.RunJournalDefinition)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
