package web

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/weftworks/weft/pkg/eventbus"
	"github.com/weftworks/weft/pkg/persistence"
	"github.com/weftworks/weft/pkg/registry"
	"github.com/weftworks/weft/pkg/services"
)

// NewApp wires the fiber application: services, handlers and routes.
func NewApp(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
) *fiber.App {
	validate := validator.New(validator.WithRequiredStructEnabled())

	workflowService := services.NewWorkflow(logger, store, reg, publisher)
	executionService := services.NewExecution(logger, store, publisher)

	handlers := NewAPIHandlers(workflowService, executionService, validate, reg, store)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{DisableColors: true}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Weft API")
	})

	app.Get("/health", handlers.HealthCheck)
	app.Get("/node-types", handlers.NodeTypes)

	workflows := app.Group("/workflows")
	workflows.Get("/", handlers.GetWorkflows)
	workflows.Post("/", handlers.CreateWorkflow)
	workflows.Get("/:id", handlers.GetWorkflow)
	workflows.Patch("/:id", handlers.UpdateWorkflow)
	workflows.Put("/:id/graph", handlers.PutWorkflowGraph)
	workflows.Delete("/:id", handlers.DeleteWorkflow)
	workflows.Post("/:id/publish", handlers.PublishWorkflow)
	workflows.Post("/:id/executions", handlers.StartExecution)
	workflows.Get("/:id/executions", handlers.ListExecutions)

	executions := app.Group("/executions")
	executions.Get("/:id", handlers.GetExecution)
	executions.Post("/:id/resume", handlers.ResumeExecution)

	app.Post("/webhooks/:workflowId", handlers.Webhook)

	return app
}
