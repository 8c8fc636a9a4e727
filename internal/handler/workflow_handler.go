package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"workflow-dashboard/internal/model"
	"workflow-dashboard/internal/service"
)

type WorkflowHandler struct {
	responder
	workflows *service.WorkflowService
}

func NewWorkflowHandler(workflows *service.WorkflowService, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{responder: responder{logger: logger}, workflows: workflows}
}

func (h *WorkflowHandler) RegisterRoutes(router chi.Router) {
	router.Get("/workflows", h.List)
	router.Post("/workflows/toggle", h.Toggle)
}

type workflowListResponse struct {
	Success   bool             `json:"success"`
	Workflows []model.Workflow `json:"workflows"`
}

type workflowResponse struct {
	Success  bool            `json:"success"`
	Workflow *model.Workflow `json:"workflow"`
}

// List proxies the workflow list of one account
// @Summary List workflows of an n8n account
// @Tags workflows
// @Produce json
// @Security BearerAuth
// @Param accountId query string true "Account ID"
// @Success 200 {object} workflowListResponse
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 502 {object} Response
// @Router /workflows [get]
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	workflows, err := h.workflows.List(r.Context(), claims.UserID, r.URL.Query().Get("accountId"))
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, workflowListResponse{Success: true, Workflows: workflows})
}

// Toggle activates or deactivates a workflow
// @Summary Toggle a workflow
// @Tags workflows
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.ToggleRequest true "Toggle"
// @Success 200 {object} workflowResponse
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /workflows/toggle [post]
func (h *WorkflowHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	var req service.ToggleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondBadRequest(w, r, err)
		return
	}

	wf, err := h.workflows.Toggle(r.Context(), claims.UserID, req)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, workflowResponse{Success: true, Workflow: wf})
}
