package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/service"
)

// AdminHandler handles HTTP requests for administrative operations.
type AdminHandler struct {
	engine *service.MatchingEngine
	admins *service.AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(engine *service.MatchingEngine, admins *service.AdminService) *AdminHandler {
	return &AdminHandler{engine: engine, admins: admins}
}

// ForceAssignRequest is the HTTP request body for a manual assignment.
type ForceAssignRequest struct {
	VehicleID string `json:"vehicle_id" binding:"required"`
	RiderID   string `json:"rider_id" binding:"required"`
}

// RegisterAdministratorRequest is the HTTP request body for administrator registration.
type RegisterAdministratorRequest struct {
	ContactBody
	EmployeeID string `json:"employee_id"`
	Department string `json:"department"`
}

// RunBatch handles POST /v1/admin/dispatch/run
// A client disconnect does not stop the pass; MatchingConfig.Deadline bounds it.
func (h *AdminHandler) RunBatch(c *gin.Context) {
	report, err := h.engine.RunBatch(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBatchReportResponse(report))
}

// ForceAssign handles POST /v1/admin/assignments
func (h *AdminHandler) ForceAssign(c *gin.Context) {
	var req ForceAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "vehicle_id and rider_id are required"})
		return
	}

	assignment, err := h.engine.ForceAssign(c.Request.Context(), req.VehicleID, req.RiderID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toAssignmentResponse(assignment))
}

// RegisterAdministrator handles POST /v1/admin/administrators
func (h *AdminHandler) RegisterAdministrator(c *gin.Context) {
	var req RegisterAdministratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	admin, err := h.admins.Register(c.Request.Context(), service.RegisterAdministratorRequest{
		Contact:    req.ContactBody.toDomain(),
		EmployeeID: req.EmployeeID,
		Department: req.Department,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toAdministratorResponse(admin))
}

// ListAdministrators handles GET /v1/admin/administrators
func (h *AdminHandler) ListAdministrators(c *gin.Context) {
	admins, err := h.admins.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]AdministratorResponse, 0, len(admins))
	for _, a := range admins {
		resp = append(resp, toAdministratorResponse(a))
	}
	respondJSON(c, http.StatusOK, resp)
}
