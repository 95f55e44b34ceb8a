// Package web provides HTTP handlers and REST API endpoints for workflow,
// run, job and trigger management.
package web

import (
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/expflow/expflow/pkg/catalog"
	"github.com/expflow/expflow/pkg/engine"
	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/services"
)

// LogStreamer exposes the engine's retained job log buffers.
type LogStreamer interface {
	Logs(jobID string) (*engine.LogBuffer, bool)
}

type APIHandlers struct {
	workflowService *services.Workflow
	runService      *services.Run
	triggerService  *services.Trigger
	jobService      *services.Job
	catalog         *catalog.Catalog
	validator       *validator.Validate
	logs            LogStreamer
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	runService *services.Run,
	triggerService *services.Trigger,
	jobService *services.Job,
	nodeCatalog *catalog.Catalog,
	validator *validator.Validate,
	logs LogStreamer,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		runService:      runService,
		triggerService:  triggerService,
		jobService:      jobService,
		catalog:         nodeCatalog,
		validator:       validator,
		logs:            logs,
	}
}

// Register mounts all API routes on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/status", h.HealthCheck)
	app.Get("/catalog/nodes", h.GetNodeCatalog)

	app.Get("/workflows", h.GetWorkflows)
	app.Post("/workflows", h.CreateWorkflow)
	app.Post("/workflows/import", h.ImportWorkflow)
	app.Get("/workflows/:id", h.GetWorkflow)
	app.Patch("/workflows/:id", h.RenameWorkflow)
	app.Delete("/workflows/:id", h.DeleteWorkflow)
	app.Get("/workflows/:id/export", h.ExportWorkflow)
	app.Post("/workflows/:id/start", h.StartWorkflow)
	app.Post("/workflows/:id/nodes", h.AddNode)
	app.Put("/workflows/:id/nodes/:nodeId", h.UpdateNode)
	app.Delete("/workflows/:id/nodes/:nodeId", h.RemoveNode)
	app.Post("/workflows/:id/edges", h.AddEdge)
	app.Delete("/workflows/:id/edges", h.RemoveEdge)

	app.Get("/runs", h.GetRuns)
	app.Get("/runs/:id", h.GetRun)
	app.Post("/runs/:id/cancel", h.CancelRun)

	app.Get("/jobs/:id", h.GetJob)
	app.Get("/jobs/:id/output", h.StreamJobOutput)

	app.Get("/triggers", h.GetTriggers)
	app.Post("/triggers", h.CreateTrigger)
	app.Get("/triggers/:id", h.GetTrigger)
	app.Patch("/triggers/:id", h.UpdateTrigger)
	app.Delete("/triggers/:id", h.DeleteTrigger)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetNodeCatalog(c fiber.Ctx) error {
	kinds := h.catalog.Kinds()
	out := make([]NodeKindResponse, 0, len(kinds))

	for _, kind := range kinds {
		out = append(out, NodeKindResponse{
			Type:        string(kind.Type),
			DisplayName: kind.DisplayName,
			Schema:      kind.Schema,
		})
	}

	return c.JSON(out)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context(), c.Query("experiment_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.CreateEmpty(c.Context(), req.Name, req.ExperimentID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) RenameWorkflow(c fiber.Ctx) error {
	var req RenameWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.Rename(c.Context(), c.Params("id"), req.Name)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddNode(c fiber.Ctx) error {
	var req AddNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	params, err := models.DecodeParametersMap(models.NodeType(req.Type), req.Parameters)
	if err != nil {
		return badRequest(c, err.Error())
	}

	node := &models.Node{
		Name:       req.Name,
		Type:       models.NodeType(req.Type),
		Parameters: params,
	}

	created, err := h.workflowService.AddNode(c.Context(), c.Params("id"), node)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateNode(c fiber.Ctx) error {
	var req AddNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	params, err := models.DecodeParametersMap(models.NodeType(req.Type), req.Parameters)
	if err != nil {
		return badRequest(c, err.Error())
	}

	node := &models.Node{
		ID:         c.Params("nodeId"),
		Name:       req.Name,
		Type:       models.NodeType(req.Type),
		Parameters: params,
	}

	updated, err := h.workflowService.UpdateNode(c.Context(), c.Params("id"), node)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) RemoveNode(c fiber.Ctx) error {
	err := h.workflowService.RemoveNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddEdge(c fiber.Ctx) error {
	var req AddEdgeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.workflowService.AddEdge(c.Context(), c.Params("id"), req.StartNodeID, req.EndNodeID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusCreated)
}

func (h *APIHandlers) RemoveEdge(c fiber.Ctx) error {
	startNodeID := c.Query("start_node_id")
	endNodeID := c.Query("end_node_id")

	if startNodeID == "" || endNodeID == "" {
		return badRequest(c, "start_node_id and end_node_id are required")
	}

	err := h.workflowService.RemoveEdge(c.Context(), c.Params("id"), startNodeID, endNodeID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ExportWorkflow(c fiber.Ctx) error {
	doc, err := h.workflowService.Export(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/yaml")

	return c.Send(doc)
}

func (h *APIHandlers) ImportWorkflow(c fiber.Ctx) error {
	experimentID := c.Query("experiment_id")
	if experimentID == "" {
		return badRequest(c, "experiment_id is required")
	}

	workflow, err := h.workflowService.Import(c.Context(), experimentID, c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) StartWorkflow(c fiber.Ctx) error {
	run, err := h.runService.Start(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(StartRunResponse{
		RunID:  run.ID,
		Status: string(run.Status),
	})
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	runs, err := h.runService.List(c.Context(), c.Query("experiment_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(runs)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.runService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	if err := h.runService.Cancel(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"status": "cancellation requested"})
}

func (h *APIHandlers) GetJob(c fiber.Ctx) error {
	detail, err := h.jobService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

// StreamJobOutput replays the job's retained log history and then tails
// live lines until the job reaches a terminal state.
func (h *APIHandlers) StreamJobOutput(c fiber.Ctx) error {
	jobID := c.Params("id")

	if _, err := h.jobService.Get(c.Context(), jobID); err != nil {
		return handleServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")

	buffer, ok := h.logs.Logs(jobID)
	if !ok {
		// Known job the engine has not picked up yet: empty stream.
		return c.SendString("")
	}

	history, live, cancel := buffer.Subscribe()
	reader, writer := io.Pipe()

	go func() {
		defer writer.Close()
		defer cancel()

		for _, line := range history {
			if _, err := io.WriteString(writer, line+"\n"); err != nil {
				return
			}
		}

		for line := range live {
			if _, err := io.WriteString(writer, line+"\n"); err != nil {
				return
			}
		}
	}()

	return c.SendStream(reader)
}

func (h *APIHandlers) GetTriggers(c fiber.Ctx) error {
	triggers, err := h.triggerService.List(c.Context(), c.Query("experiment_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(triggers)
}

func (h *APIHandlers) GetTrigger(c fiber.Ctx) error {
	trigger, err := h.triggerService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(trigger)
}

func (h *APIHandlers) CreateTrigger(c fiber.Ctx) error {
	var req CreateTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	trigger := &models.Trigger{
		Name:       req.Name,
		Type:       req.Type,
		WorkflowID: req.WorkflowID,
		Status:     models.TriggerStatusInactive,
	}

	if req.IsEnabled {
		trigger.Status = models.TriggerStatusActive
	}

	for _, condition := range req.Conditions {
		trigger.Conditions = append(trigger.Conditions, models.Condition{
			Parameter: condition.Parameter,
			Operator:  condition.Operator,
			Value:     condition.Value,
		})
	}

	created, err := h.triggerService.Create(c.Context(), trigger)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateTrigger(c fiber.Ctx) error {
	var req services.UpdateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.triggerService.Update(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteTrigger(c fiber.Ctx) error {
	if err := h.triggerService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
