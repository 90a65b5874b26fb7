package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-booking-service/internal/domain"
	"github.com/spec-kit/queue-booking-service/internal/events"
	"github.com/spec-kit/queue-booking-service/internal/repository"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

// WindowService manages service windows and which staff member works at each.
type WindowService struct {
	windows   repository.WindowRepository
	publisher publisher
	logger    *zap.Logger
	now       func() time.Time
}

// WindowDependencies bundles collaborators for the window service.
type WindowDependencies struct {
	WindowRepo repository.WindowRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// CreateWindowInput describes a new window.
type CreateWindowInput struct {
	Name   string
	Number int
	Active bool
}

// UpdateWindowInput carries optional window changes.
type UpdateWindowInput struct {
	Name   *string
	Number *int
	Active *bool
}

// NewWindowService constructs the service.
func NewWindowService(deps WindowDependencies) *WindowService {
	logger := loggerOrNop(deps.Logger)
	now := nowFunc(deps.Now)
	return &WindowService{
		windows:   deps.WindowRepo,
		publisher: publisher{dispatcher: deps.Dispatcher, logger: logger, now: now},
		logger:    logger,
		now:       now,
	}
}

// CreateWindow registers a window with a unique number.
func (s *WindowService) CreateWindow(ctx context.Context, input CreateWindowInput) (*domain.Window, error) {
	name := strings.TrimSpace(input.Name)
	if err := validateWindow(name, input.Number); err != nil {
		return nil, err
	}

	taken, err := s.windows.NumberTaken(ctx, input.Number, nil)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if taken {
		return nil, duplicateWindowNumber(input.Number)
	}

	window := &domain.Window{Name: name, Number: input.Number, Active: input.Active}
	if err := s.windows.Create(ctx, window); err != nil {
		if errors.Is(err, repository.ErrDuplicateWindowNumber) {
			return nil, duplicateWindowNumber(input.Number)
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("window created", zap.String("window_id", window.ID), zap.Int("number", window.Number))
	return window, nil
}

// UpdateWindow applies the provided changes; number uniqueness is checked against other windows.
func (s *WindowService) UpdateWindow(ctx context.Context, id string, input UpdateWindowInput) (*domain.Window, error) {
	window, err := s.getWindow(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		window.Name = strings.TrimSpace(*input.Name)
	}
	if input.Active != nil {
		window.Active = *input.Active
	}
	if input.Number != nil && *input.Number != window.Number {
		taken, err := s.windows.NumberTaken(ctx, *input.Number, &window.ID)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		if taken {
			return nil, duplicateWindowNumber(*input.Number)
		}
		window.Number = *input.Number
	}
	if err := validateWindow(window.Name, window.Number); err != nil {
		return nil, err
	}

	if err := s.windows.Update(ctx, window); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateWindowNumber):
			return nil, duplicateWindowNumber(window.Number)
		case errors.Is(err, pgx.ErrNoRows):
			return nil, apperrors.NewNotFound("window", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return window, nil
}

// ListWindows returns windows ordered by number.
func (s *WindowService) ListWindows(ctx context.Context, activeOnly bool) ([]domain.Window, error) {
	windows, err := s.windows.List(ctx, activeOnly)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return windows, nil
}

// AssignWindow moves staffID to windowID, releasing whatever either of them held before.
func (s *WindowService) AssignWindow(ctx context.Context, staffID, windowID string) (assignment *domain.WindowAssignment, err error) {
	ctx, span := startSpan(ctx, "WindowService.AssignWindow",
		attribute.String("staff.id", staffID),
		attribute.String("window.id", windowID))
	defer func() { endSpan(span, err) }()

	window, err := s.getWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if !window.Active {
		s.logger.Warn("assigning staff to inactive window",
			zap.String("staff_id", staffID),
			zap.String("window_id", windowID))
	}

	assignment, err = s.windows.Assign(ctx, staffID, windowID, s.now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": staffID})
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("window assigned",
		zap.String("staff_id", staffID),
		zap.String("window_id", windowID),
		zap.Int("window_number", window.Number))
	s.publisher.publish(ctx, events.Event{
		Type:  events.EventWindowAssigned,
		Actor: staffActor(&staffID),
		Payload: events.WindowAssignedPayload{
			AssignmentID: assignment.ID,
			UserID:       staffID,
			WindowID:     windowID,
		},
	})
	return assignment, nil
}

// ReleaseWindow ends the active assignment of staffID, if any.
func (s *WindowService) ReleaseWindow(ctx context.Context, staffID string) error {
	released, err := s.windows.Release(ctx, staffID, s.now())
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	s.logger.Info("window released", zap.String("staff_id", staffID), zap.Int64("assignments", released))
	return nil
}

// CurrentWindowForStaff returns the window staffID works at, or nil.
func (s *WindowService) CurrentWindowForStaff(ctx context.Context, staffID string) (*domain.Window, error) {
	window, err := s.windows.CurrentWindowForUser(ctx, staffID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return window, nil
}

// CurrentStaffForWindow returns who works at windowID, or nil.
func (s *WindowService) CurrentStaffForWindow(ctx context.Context, windowID string) (*domain.StaffRef, error) {
	staff, err := s.windows.CurrentStaffForWindow(ctx, windowID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return staff, nil
}

func (s *WindowService) getWindow(ctx context.Context, id string) (*domain.Window, error) {
	window, err := s.windows.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("window", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return window, nil
}

func validateWindow(name string, number int) error {
	details := map[string]any{}
	if name == "" {
		details["name"] = "required"
	}
	if number <= 0 {
		details["number"] = "must be positive"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid window", details)
	}
	return nil
}

func duplicateWindowNumber(number int) error {
	return apperrors.NewDuplicate("window number already exists", map[string]any{"number": number})
}
