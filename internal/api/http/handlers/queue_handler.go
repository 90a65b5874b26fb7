package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-booking-service/internal/api/dto"
	"github.com/spec-kit/queue-booking-service/internal/auth"
	"github.com/spec-kit/queue-booking-service/internal/realtime"
	"github.com/spec-kit/queue-booking-service/internal/service"
	"github.com/spec-kit/queue-booking-service/internal/worker"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

// QueueHandler serves the live queue status over REST and websocket.
type QueueHandler struct {
	tracking *service.TrackingService
	hub      *realtime.Hub
	logger   *zap.Logger
}

// NewQueueHandler constructs handler.
func NewQueueHandler(tracking *service.TrackingService, hub *realtime.Hub, logger *zap.Logger) *QueueHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueHandler{tracking: tracking, hub: hub, logger: logger}
}

// Status GET /api/queue/status.
func (h *QueueHandler) Status(c *fiber.Ctx) error {
	status, err := h.tracking.GetQueueStatus(c.UserContext())
	if err != nil {
		return err
	}
	return data(c, dto.NewQueueStatusResponse(status))
}

// UpdateServing POST /api/queue/update-serving?queueNumber=&windowId=&forceRecall=.
func (h *QueueHandler) UpdateServing(c *fiber.Ctx) error {
	raw := strings.TrimSpace(c.Query("queueNumber"))
	number, err := strconv.Atoi(raw)
	if err != nil {
		return apperrors.NewValidationError("invalid queueNumber", map[string]any{"queueNumber": "must be an integer"})
	}
	windowID, err := optionalUUID(c.Query("windowId"), "windowId")
	if err != nil {
		return err
	}
	forceRecall := false
	if value := strings.TrimSpace(c.Query("forceRecall")); value != "" {
		if forceRecall, err = strconv.ParseBool(value); err != nil {
			return apperrors.NewValidationError("invalid forceRecall", map[string]any{"forceRecall": "must be a boolean"})
		}
	}

	var actor *string
	if identity, ok := auth.IdentityFromContext(c); ok {
		actor = &identity.UserID
	}

	record, err := h.tracking.UpdateCurrentServing(c.UserContext(), number, windowID, forceRecall, actor)
	if err != nil {
		return err
	}
	return data(c, dto.NewTrackingResponse(record))
}

// Upgrade rejects plain HTTP requests to the websocket route.
func (h *QueueHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Stream GET /api/queue/ws sends the current status on connect and every update after it.
func (h *QueueHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		initial, err := worker.StatusPayload(ctx, h.tracking)
		cancel()
		if err != nil {
			h.logger.Warn("initial queue status failed", zap.Error(err))
		}
		if err := h.hub.Register(conn, initial); err != nil {
			h.logger.Debug("websocket client dropped", zap.Error(err))
			return
		}
		defer h.hub.Unregister(conn)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("websocket closed unexpectedly", zap.Error(err))
				}
				return
			}
		}
	})
}
