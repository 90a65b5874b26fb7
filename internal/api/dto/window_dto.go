package dto

import (
	"time"

	"github.com/spec-kit/queue-booking-service/internal/domain"
)

// CreateWindowRequest payload.
type CreateWindowRequest struct {
	Name     string `json:"name"`
	Number   int    `json:"number"`
	IsActive *bool  `json:"is_active"`
}

// UpdateWindowRequest payload; omitted fields are left unchanged.
type UpdateWindowRequest struct {
	Name     *string `json:"name"`
	Number   *int    `json:"number"`
	IsActive *bool   `json:"is_active"`
}

// WindowResponse represents a service window.
type WindowResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Number    int       `json:"number"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// NewWindowResponse maps a window.
func NewWindowResponse(w *domain.Window) WindowResponse {
	return WindowResponse{ID: w.ID, Name: w.Name, Number: w.Number, IsActive: w.Active, CreatedAt: w.CreatedAt}
}

// NewWindowList maps a slice of windows.
func NewWindowList(windows []domain.Window) []WindowResponse {
	items := make([]WindowResponse, 0, len(windows))
	for i := range windows {
		items = append(items, NewWindowResponse(&windows[i]))
	}
	return items
}

// AssignmentResponse represents a staff-window assignment.
type AssignmentResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	WindowID   string     `json:"window_id"`
	IsActive   bool       `json:"is_active"`
	AssignedAt time.Time  `json:"assigned_at"`
	ReleasedAt *time.Time `json:"released_at"`
}

// NewAssignmentResponse maps an assignment.
func NewAssignmentResponse(a *domain.WindowAssignment) AssignmentResponse {
	return AssignmentResponse{
		ID:         a.ID,
		UserID:     a.UserID,
		WindowID:   a.WindowID,
		IsActive:   a.Active,
		AssignedAt: a.AssignedAt,
		ReleasedAt: a.ReleasedAt,
	}
}

// StaffResponse names the staff member at a window.
type StaffResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
