// Package web provides the HTTP API: workflow CRUD and publishing, execution
// start/resume/inspection, node type discovery and the webhook trigger
// endpoint.
package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
	"github.com/weftworks/weft/pkg/registry"
	"github.com/weftworks/weft/pkg/services"
)

type APIHandlers struct {
	workflowService  *services.Workflow
	executionService *services.Execution
	validator        *validator.Validate
	registry         *registry.Registry
	store            persistence.Persistence
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executionService *services.Execution,
	validate *validator.Validate,
	reg *registry.Registry,
	store persistence.Persistence,
) *APIHandlers {
	return &APIHandlers{
		workflowService:  workflowService,
		executionService: executionService,
		validator:        validate,
		registry:         reg,
		store:            store,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	var status *models.WorkflowStatus

	if statusStr := c.Query("status"); statusStr != "" {
		s := models.WorkflowStatus(statusStr)
		status = &s
	}

	workflows, err := h.workflowService.List(c.Context(), status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows, "total_count": len(workflows)})
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

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Variables:   req.Variables,
		Metadata:    req.Metadata,
		Owner:       req.Owner,
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Variables != nil {
		existing.Variables = req.Variables
	}

	if req.Metadata != nil {
		existing.Metadata = req.Metadata
	}

	updated, err := h.workflowService.Update(c.Context(), existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

// PutWorkflowGraph replaces a draft workflow's node and connection set.
func (h *APIHandlers) PutWorkflowGraph(c fiber.Ctx) error {
	var req GraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.ReplaceGraph(c.Context(), c.Params("id"), req.Nodes, req.Connections)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishWorkflow(c fiber.Ctx) error {
	published, err := h.workflowService.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

// StartExecution queues an execution of a published workflow. The work
// happens on a worker; the response only carries the execution ID to poll.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	executionID, err := h.executionService.Request(c.Context(), c.Params("id"), "api", req.TriggerData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": executionID,
		"status":       "queued",
	})
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	executions, err := h.executionService.ListByWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions, "total_count": len(executions)})
}

// GetExecution returns one execution. A suspended execution's response also
// carries the pending prompt from its snapshot.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executionService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if execution.Status != models.ExecutionStatusWaitingForHuman {
		return c.JSON(execution)
	}

	response := fiber.Map{"execution": execution}

	if snapshot, err := h.executionService.Snapshot(c.Context(), execution.ID); err == nil {
		response["prompt"] = snapshot.Prompt
	}

	return c.JSON(response)
}

// ResumeExecution queues the continuation of a suspended execution with the
// supplied human response.
func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	var req ResumeExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executionID := c.Params("id")

	if err := h.executionService.RequestResume(c.Context(), executionID, req.Response, req.ResumedBy); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": executionID,
		"status":       "resuming",
	})
}

// Webhook fires the webhook trigger of a published workflow. The request body
// and headers become the execution's trigger data.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")

	workflow, err := h.workflowService.FetchByID(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	webhookNode := h.webhookNode(workflow)
	if webhookNode == nil {
		return notFound(c, "workflow has no webhook trigger")
	}

	var body any
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			body = map[string]any{"raw_body": string(c.Body())}
		}
	}

	headers := make(map[string]string)
	for key, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	triggerData := map[string]any{
		"trigger_node_id": webhookNode.ID,
		"body":            body,
		"headers":         headers,
		"received_at":     time.Now().UTC().Format(time.RFC3339),
	}

	executionID, err := h.executionService.Request(c.Context(), workflowID, webhookNode.Kind(), triggerData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": executionID,
		"status":       "queued",
	})
}

func (h *APIHandlers) webhookNode(workflow *models.Workflow) *models.WorkflowNode {
	for _, node := range workflow.TriggerNodes() {
		if node.Subtype == models.TriggerSubtypeWebhook {
			return node
		}
	}

	return nil
}

// NodeTypes lists the registered node kinds with their config schemas and
// output specs.
func (h *APIHandlers) NodeTypes(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"node_types": h.registry.Components()})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}
