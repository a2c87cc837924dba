package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/domain"
	"cabdispatch/internal/service"
)

// AssignmentHandler handles HTTP requests for ride assignments.
type AssignmentHandler struct {
	lifecycle *service.LifecycleService
}

// NewAssignmentHandler creates a new AssignmentHandler.
func NewAssignmentHandler(lifecycle *service.LifecycleService) *AssignmentHandler {
	return &AssignmentHandler{lifecycle: lifecycle}
}

// UpdateStatusRequest is the HTTP request body for a status transition.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// GetAll handles GET /v1/assignments
func (h *AssignmentHandler) GetAll(c *gin.Context) {
	assignments, err := h.lifecycle.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toAssignmentResponses(assignments))
}

// Get handles GET /v1/assignments/:id
func (h *AssignmentHandler) Get(c *gin.Context) {
	assignment, err := h.lifecycle.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toAssignmentResponse(assignment))
}

// UpdateStatus handles PUT /v1/assignments/:id/status
func (h *AssignmentHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "status is required"})
		return
	}

	next := domain.AssignmentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	assignment, err := h.lifecycle.Transition(c.Request.Context(), c.Param("id"), next)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toAssignmentResponse(assignment))
}
