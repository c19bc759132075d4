package web

import "github.com/weftworks/weft/pkg/models"

type CreateWorkflowRequest struct {
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Variables   map[string]any `json:"variables"`
	Metadata    map[string]any `json:"metadata"`
	Owner       string         `json:"owner"       validate:"required"`
}

type UpdateWorkflowRequest struct {
	Name        *string        `json:"name"        validate:"omitempty,min=3"`
	Description *string        `json:"description"`
	Variables   map[string]any `json:"variables"`
	Metadata    map[string]any `json:"metadata"`
}

// GraphRequest replaces a draft workflow's nodes and connections wholesale.
type GraphRequest struct {
	Nodes       []*models.WorkflowNode `json:"nodes"       validate:"required,dive"`
	Connections []*models.Connection   `json:"connections" validate:"dive"`
}

type StartExecutionRequest struct {
	TriggerData map[string]any `json:"trigger_data"`
}

type ResumeExecutionRequest struct {
	Response  map[string]any `json:"response"   validate:"required"`
	ResumedBy string         `json:"resumed_by"`
}
