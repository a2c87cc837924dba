package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/domain"
	"cabdispatch/internal/service"
)

// RiderHandler handles HTTP requests for riders and their ride requests.
type RiderHandler struct {
	fleet     *service.FleetService
	lifecycle *service.LifecycleService
}

// NewRiderHandler creates a new RiderHandler.
func NewRiderHandler(fleet *service.FleetService, lifecycle *service.LifecycleService) *RiderHandler {
	return &RiderHandler{fleet: fleet, lifecycle: lifecycle}
}

// RegisterRiderRequest is the HTTP request body for rider registration.
type RegisterRiderRequest struct {
	ContactBody
	Position LocationBody  `json:"position"`
	Home     *LocationBody `json:"home"`
}

// RequestRideRequest is the HTTP request body for queueing a rider.
type RequestRideRequest struct {
	Pickup      LocationBody `json:"pickup"`
	Destination LocationBody `json:"destination"`
}

// Register handles POST /v1/riders
func (h *RiderHandler) Register(c *gin.Context) {
	var req RegisterRiderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	var home *domain.Location
	if req.Home != nil {
		loc := req.Home.toDomain()
		home = &loc
	}

	rider, err := h.fleet.RegisterRider(c.Request.Context(), service.RegisterRiderRequest{
		Contact:  req.ContactBody.toDomain(),
		Position: req.Position.toDomain(),
		Home:     home,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRiderResponse(rider))
}

// GetAll handles GET /v1/riders
func (h *RiderHandler) GetAll(c *gin.Context) {
	riders, err := h.fleet.ListRiders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]RiderResponse, 0, len(riders))
	for _, r := range riders {
		resp = append(resp, toRiderResponse(r))
	}
	respondJSON(c, http.StatusOK, resp)
}

// Get handles GET /v1/riders/:id
func (h *RiderHandler) Get(c *gin.Context) {
	rider, err := h.fleet.GetRider(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRiderResponse(rider))
}

// Update handles PUT /v1/riders/:id
func (h *RiderHandler) Update(c *gin.Context) {
	var req ContactBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	rider, err := h.fleet.UpdateRider(c.Request.Context(), c.Param("id"), req.toDomain())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRiderResponse(rider))
}

// Retire handles DELETE /v1/riders/:id
func (h *RiderHandler) Retire(c *gin.Context) {
	if err := h.fleet.RetireRider(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateLocation handles PUT /v1/riders/:id/location
func (h *RiderHandler) UpdateLocation(c *gin.Context) {
	var req LocationBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	rider, err := h.fleet.UpdateRiderPosition(c.Request.Context(), c.Param("id"), req.toDomain())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRiderResponse(rider))
}

// SetHome handles PUT /v1/riders/:id/home
func (h *RiderHandler) SetHome(c *gin.Context) {
	var req LocationBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	rider, err := h.fleet.SetHome(c.Request.Context(), c.Param("id"), req.toDomain())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRiderResponse(rider))
}

// RequestRide handles POST /v1/riders/:id/request-ride
func (h *RiderHandler) RequestRide(c *gin.Context) {
	var req RequestRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	rider, err := h.fleet.RequestRide(c.Request.Context(), c.Param("id"), req.Pickup.toDomain(), req.Destination.toDomain())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusAccepted, toRiderResponse(rider))
}

// History handles GET /v1/riders/:id/history
func (h *RiderHandler) History(c *gin.Context) {
	assignments, err := h.lifecycle.HistoryForRider(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toAssignmentResponses(assignments))
}
