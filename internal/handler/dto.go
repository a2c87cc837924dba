package handler

import (
	"time"

	"cabdispatch/internal/domain"
	"cabdispatch/internal/service"
)

// LocationBody is a coordinate in request and response bodies.
type LocationBody struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (l LocationBody) toDomain() domain.Location {
	return domain.Location{Lat: l.Lat, Lon: l.Lon}
}

func locationBody(l domain.Location) LocationBody {
	return LocationBody{Lat: l.Lat, Lon: l.Lon}
}

// ContactBody holds the identity fields shared by all registrations.
type ContactBody struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (c ContactBody) toDomain() domain.Contact {
	return domain.Contact{Name: c.Name, Email: c.Email, Phone: c.Phone}
}

func contactBody(c domain.Contact) ContactBody {
	return ContactBody{Name: c.Name, Email: c.Email, Phone: c.Phone}
}

// VehicleResponse is the HTTP response for vehicle data.
type VehicleResponse struct {
	ID string `json:"id"`
	ContactBody
	LicenseNumber string       `json:"license_number,omitempty"`
	CabNumber     string       `json:"cab_number,omitempty"`
	Position      LocationBody `json:"position"`
	Available     bool         `json:"available"`
	CreatedAt     string       `json:"created_at"`
}

func toVehicleResponse(v *domain.Vehicle) VehicleResponse {
	return VehicleResponse{
		ID:            v.ID,
		ContactBody:   contactBody(v.Contact),
		LicenseNumber: v.LicenseNumber,
		CabNumber:     v.CabNumber,
		Position:      locationBody(v.Position),
		Available:     v.Available,
		CreatedAt:     v.CreatedAt.Format(time.RFC3339),
	}
}

// RiderResponse is the HTTP response for rider data.
type RiderResponse struct {
	ID string `json:"id"`
	ContactBody
	Position    LocationBody  `json:"position"`
	Destination LocationBody  `json:"destination"`
	Home        *LocationBody `json:"home,omitempty"`
	Waiting     bool          `json:"waiting"`
	RequestedAt string        `json:"requested_at,omitempty"`
	CreatedAt   string        `json:"created_at"`
}

func toRiderResponse(r *domain.RideRequest) RiderResponse {
	resp := RiderResponse{
		ID:          r.ID,
		ContactBody: contactBody(r.Contact),
		Position:    locationBody(r.Position),
		Destination: locationBody(r.Destination),
		Waiting:     r.Waiting,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	if r.Home != nil {
		home := locationBody(*r.Home)
		resp.Home = &home
	}
	if !r.RequestedAt.IsZero() {
		resp.RequestedAt = r.RequestedAt.Format(time.RFC3339)
	}
	return resp
}

// AssignmentResponse is the HTTP response for assignment data.
type AssignmentResponse struct {
	ID             string  `json:"id"`
	VehicleID      string  `json:"vehicle_id"`
	RiderID        string  `json:"rider_id"`
	Status         string  `json:"status"`
	Source         string  `json:"source"`
	DistanceMeters float64 `json:"distance_meters"`
	AssignedAt     string  `json:"assigned_at"`
	CompletedAt    string  `json:"completed_at,omitempty"`
}

func toAssignmentResponse(a *domain.RideAssignment) AssignmentResponse {
	resp := AssignmentResponse{
		ID:             a.ID,
		VehicleID:      a.VehicleID,
		RiderID:        a.RequestID,
		Status:         string(a.Status),
		Source:         string(a.Source),
		DistanceMeters: a.DistanceMeters,
		AssignedAt:     a.AssignedAt.Format(time.RFC3339),
	}
	if a.CompletedAt != nil {
		resp.CompletedAt = a.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func toAssignmentResponses(list []*domain.RideAssignment) []AssignmentResponse {
	resp := make([]AssignmentResponse, 0, len(list))
	for _, a := range list {
		resp = append(resp, toAssignmentResponse(a))
	}
	return resp
}

// BatchReportResponse is the HTTP response for a manual batch run.
type BatchReportResponse struct {
	StartedAt   string               `json:"started_at"`
	DurationMs  int64                `json:"duration_ms"`
	Vehicles    int                  `json:"vehicles"`
	Requests    int                  `json:"requests"`
	Assignments []AssignmentResponse `json:"assignments"`
	Deferred    []string             `json:"deferred"`
	Failures    []BatchFailureBody   `json:"failures"`
	Stopped     bool                 `json:"stopped"`
}

// BatchFailureBody describes one request the pass could not process.
type BatchFailureBody struct {
	RiderID   string `json:"rider_id"`
	VehicleID string `json:"vehicle_id"`
	Error     string `json:"error"`
}

func toBatchReportResponse(r *service.BatchReport) BatchReportResponse {
	resp := BatchReportResponse{
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		DurationMs:  r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
		Vehicles:    r.Vehicles,
		Requests:    r.Requests,
		Assignments: toAssignmentResponses(r.Assignments),
		Deferred:    append([]string{}, r.Deferred...),
		Failures:    make([]BatchFailureBody, 0, len(r.Failures)),
		Stopped:     r.Stopped,
	}
	for _, f := range r.Failures {
		resp.Failures = append(resp.Failures, BatchFailureBody{RiderID: f.RequestID, VehicleID: f.VehicleID, Error: f.Err.Error()})
	}
	return resp
}

// AdministratorResponse is the HTTP response for administrator data.
type AdministratorResponse struct {
	ID string `json:"id"`
	ContactBody
	EmployeeID string `json:"employee_id,omitempty"`
	Department string `json:"department,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toAdministratorResponse(a *domain.Administrator) AdministratorResponse {
	return AdministratorResponse{
		ID:          a.ID,
		ContactBody: contactBody(a.Contact),
		EmployeeID:  a.EmployeeID,
		Department:  a.Department,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
}
