package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-booking-service/internal/api/dto"
	"github.com/spec-kit/queue-booking-service/internal/domain"
	"github.com/spec-kit/queue-booking-service/internal/service"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

// WindowsHandler manages service windows and staff assignments.
type WindowsHandler struct {
	windows *service.WindowService
}

// NewWindowsHandler constructs handler.
func NewWindowsHandler(windowService *service.WindowService) *WindowsHandler {
	return &WindowsHandler{windows: windowService}
}

// List GET /api/windows; inactive windows are included with ?all=true.
func (h *WindowsHandler) List(c *fiber.Ctx) error {
	windows, err := h.windows.ListWindows(c.UserContext(), !c.QueryBool("all", false))
	if err != nil {
		return err
	}
	return data(c, dto.NewWindowList(windows))
}

// Create POST /api/windows.
func (h *WindowsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateWindowRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	window, err := h.windows.CreateWindow(c.UserContext(), service.CreateWindowInput{
		Name:   req.Name,
		Number: req.Number,
		Active: active,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewWindowResponse(window))
}

// Update PUT /api/windows/:id.
func (h *WindowsHandler) Update(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req dto.UpdateWindowRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	window, err := h.windows.UpdateWindow(c.UserContext(), id, service.UpdateWindowInput{
		Name:   req.Name,
		Number: req.Number,
		Active: req.IsActive,
	})
	if err != nil {
		return err
	}
	return data(c, dto.NewWindowResponse(window))
}

// Assign POST /api/windows/assign?userId=&windowId=. userId defaults to the caller.
func (h *WindowsHandler) Assign(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	windowID, err := parseUUID(c.Query("windowId"), "windowId")
	if err != nil {
		return err
	}
	userID, err := targetUser(c, caller)
	if err != nil {
		return err
	}

	assignment, err := h.windows.AssignWindow(c.UserContext(), userID, windowID)
	if err != nil {
		return err
	}
	return data(c, dto.NewAssignmentResponse(assignment))
}

// Release POST /api/windows/release[?userId=].
func (h *WindowsHandler) Release(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	userID, err := targetUser(c, caller)
	if err != nil {
		return err
	}
	if err := h.windows.ReleaseWindow(c.UserContext(), userID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ForUser GET /api/windows/user/:userId.
func (h *WindowsHandler) ForUser(c *fiber.Ctx) error {
	userID, err := pathID(c, "userId")
	if err != nil {
		return err
	}
	window, err := h.windows.CurrentWindowForStaff(c.UserContext(), userID)
	if err != nil {
		return err
	}
	if window == nil {
		return apperrors.NewNotFound("window assignment", map[string]any{"user_id": userID})
	}
	return data(c, dto.NewWindowResponse(window))
}

// Staff GET /api/windows/:id/staff.
func (h *WindowsHandler) Staff(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	staff, err := h.windows.CurrentStaffForWindow(c.UserContext(), id)
	if err != nil {
		return err
	}
	if staff == nil {
		return apperrors.NewNotFound("window assignment", map[string]any{"window_id": id})
	}
	return data(c, dto.StaffResponse{ID: staff.ID, Name: staff.Name})
}

func targetUser(c *fiber.Ctx, caller *domain.Identity) (string, error) {
	requested, err := optionalUUID(c.Query("userId"), "userId")
	if err != nil {
		return "", err
	}
	if requested == nil {
		return caller.UserID, nil
	}
	return *requested, nil
}
