package worker

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-booking-service/internal/api/dto"
	"github.com/spec-kit/queue-booking-service/internal/domain"
	"github.com/spec-kit/queue-booking-service/internal/events"
)

// StatusSource computes the live queue status.
type StatusSource interface {
	GetQueueStatus(ctx context.Context) (*domain.QueueStatus, error)
}

// StatusSink receives serialized status snapshots.
type StatusSink interface {
	Publish(ctx context.Context, payload []byte) error
}

// StartStatusBroadcaster subscribes to every queue event and publishes the recomputed live status
// after each one. Failures are logged and never reach the publishing service.
func StartStatusBroadcaster(dispatcher events.Dispatcher, source StatusSource, sink StatusSink, logger *zap.Logger) {
	if dispatcher == nil || source == nil || sink == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := func(ctx context.Context, event events.Event) error {
		payload, err := StatusPayload(ctx, source)
		if err != nil {
			logger.Error("compute queue status failed", zap.String("event", string(event.Type)), zap.Error(err))
			return nil
		}
		if err := sink.Publish(ctx, payload); err != nil {
			logger.Warn("publish queue status failed", zap.String("event", string(event.Type)), zap.Error(err))
		}
		return nil
	}

	for _, eventType := range events.QueueEventTypes {
		dispatcher.Subscribe(eventType, handler)
	}
}

// StatusPayload renders the current status as the JSON document displays receive.
func StatusPayload(ctx context.Context, source StatusSource) ([]byte, error) {
	status, err := source.GetQueueStatus(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(dto.NewQueueStatusResponse(status))
}
