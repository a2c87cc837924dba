package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/service"
)

// VehicleHandler handles HTTP requests for vehicles.
type VehicleHandler struct {
	fleet     *service.FleetService
	lifecycle *service.LifecycleService
}

// NewVehicleHandler creates a new VehicleHandler.
func NewVehicleHandler(fleet *service.FleetService, lifecycle *service.LifecycleService) *VehicleHandler {
	return &VehicleHandler{fleet: fleet, lifecycle: lifecycle}
}

// RegisterVehicleRequest is the HTTP request body for vehicle registration.
type RegisterVehicleRequest struct {
	ContactBody
	LicenseNumber string       `json:"license_number"`
	CabNumber     string       `json:"cab_number"`
	Position      LocationBody `json:"position"`
}

// UpdateVehicleRequest is the HTTP request body for editing a vehicle's
// registration details.
type UpdateVehicleRequest struct {
	ContactBody
	LicenseNumber string `json:"license_number"`
	CabNumber     string `json:"cab_number"`
}

// Register handles POST /v1/vehicles
func (h *VehicleHandler) Register(c *gin.Context) {
	var req RegisterVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	vehicle, err := h.fleet.RegisterVehicle(c.Request.Context(), service.RegisterVehicleRequest{
		Contact:       req.ContactBody.toDomain(),
		LicenseNumber: req.LicenseNumber,
		CabNumber:     req.CabNumber,
		Position:      req.Position.toDomain(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toVehicleResponse(vehicle))
}

// GetAll handles GET /v1/vehicles
func (h *VehicleHandler) GetAll(c *gin.Context) {
	vehicles, err := h.fleet.ListVehicles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]VehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		resp = append(resp, toVehicleResponse(v))
	}
	respondJSON(c, http.StatusOK, resp)
}

// Get handles GET /v1/vehicles/:id
func (h *VehicleHandler) Get(c *gin.Context) {
	vehicle, err := h.fleet.GetVehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toVehicleResponse(vehicle))
}

// Update handles PUT /v1/vehicles/:id
func (h *VehicleHandler) Update(c *gin.Context) {
	var req UpdateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	vehicle, err := h.fleet.UpdateVehicle(c.Request.Context(), c.Param("id"), service.UpdateVehicleRequest{
		Contact:       req.ContactBody.toDomain(),
		LicenseNumber: req.LicenseNumber,
		CabNumber:     req.CabNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toVehicleResponse(vehicle))
}

// Retire handles DELETE /v1/vehicles/:id
func (h *VehicleHandler) Retire(c *gin.Context) {
	if err := h.fleet.RetireVehicle(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateLocation handles PUT /v1/vehicles/:id/location
func (h *VehicleHandler) UpdateLocation(c *gin.Context) {
	var req LocationBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	vehicle, err := h.fleet.UpdateVehiclePosition(c.Request.Context(), c.Param("id"), req.toDomain())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toVehicleResponse(vehicle))
}

// Active handles GET /v1/vehicles/:id/active
func (h *VehicleHandler) Active(c *gin.Context) {
	assignments, err := h.lifecycle.ActiveForVehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toAssignmentResponses(assignments))
}
