package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/queue-booking-service/internal/auth"
	"github.com/spec-kit/queue-booking-service/internal/domain"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

// pathID reads a UUID path parameter.
func pathID(c *fiber.Ctx, name string) (string, error) {
	return parseUUID(c.Params(name), name)
}

func parseUUID(value, field string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", apperrors.NewValidationError("invalid "+field, map[string]any{field: "must be a UUID"})
	}
	return id.String(), nil
}

// optionalUUID parses value when it is not blank.
func optionalUUID(value, field string) (*string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	id, err := parseUUID(value, field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// queryDay parses an optional YYYY-MM-DD query parameter into a day bucket.
func queryDay(c *fiber.Ctx, key string, loc *time.Location) (*domain.DayBucket, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	day, err := domain.ParseDay(raw, loc)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid "+key, map[string]any{key: "expected YYYY-MM-DD"})
	}
	return &day, nil
}

// callerFrom returns the authenticated caller or an unauthorized error.
func callerFrom(c *fiber.Ctx) (*domain.Identity, error) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return identity, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func data(c *fiber.Ctx, payload any) error {
	return c.JSON(fiber.Map{"data": payload})
}

func created(c *fiber.Ctx, payload any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": payload})
}
