package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/expflow/expflow/pkg/persistence"
	"github.com/expflow/expflow/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps the service error taxonomy onto RFC-7807
// responses: parse errors and validation errors are 400s, missing entities
// 404s, everything else an opaque 500.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsParseError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("parse_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case errors.Is(err, services.ErrInvalidRunData):
		// A run whose workflow document is gone or empty: surfaced as an
		// explicit invalid-data state, never as partial data.
		return notFound(c, "invalid_run_data", err.Error())

	case persistence.IsNodeNotFound(err):
		return notFound(c, "node_not_found", "node not found")

	case persistence.IsEdgeNotFound(err):
		return notFound(c, "edge_not_found", "edge not found")

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	case persistence.IsRunNotFound(err):
		return notFound(c, "run_not_found", "run not found")

	case persistence.IsJobNotFound(err):
		return notFound(c, "job_not_found", "job not found")

	case persistence.IsTriggerNotFound(err):
		return notFound(c, "trigger_not_found", "trigger not found")

	default:
		return internalError(c, err)
	}
}
