package server

import (
	"planner/internal/core/job"
	"planner/internal/health"

	"github.com/gofiber/fiber/v2"
)

type Dependencies struct {
	Jobs   *job.Manager
	Checks map[string]health.Check
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	healthHandler := health.NewHealthHandler(d.Checks)
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)

	api := app.Group("/v1")

	jobHandler := job.NewHandler(d.Jobs)
	api.Post("/jobs", jobHandler.HandleCreate)
	api.Get("/jobs", jobHandler.HandleList)
	api.Get("/jobs/:jobId", jobHandler.HandleGet)
	api.Post("/jobs/:jobId/tasks/:taskName", jobHandler.HandleReportTask)

	return healthHandler
}
