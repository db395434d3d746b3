package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

var kindStatus = map[service.ErrorKind]int{
	service.KindNotFound:          fiber.StatusNotFound,
	service.KindValidation:        fiber.StatusBadRequest,
	service.KindStateConflict:     fiber.StatusConflict,
	service.KindDependencyFailure: fiber.StatusBadGateway,
	service.KindInternal:          fiber.StatusInternalServerError,
}

// respondError maps a service error onto its HTTP status and error kind.
func respondError(c *fiber.Ctx, base zerolog.Logger, err error) error {
	kind, status := logFailure(c, base, err)
	return utils.SendErrorKind(c, status, string(kind), service.PublicMessage(err))
}

// respondWithData reports a failure that still produced a result worth returning.
func respondWithData(c *fiber.Ctx, base zerolog.Logger, err error, message string, data interface{}) error {
	kind, status := logFailure(c, base, err)
	return utils.FailKind(c, status, string(kind), message, data)
}

func logFailure(c *fiber.Ctx, base zerolog.Logger, err error) (service.ErrorKind, int) {
	kind := service.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = fiber.StatusInternalServerError
	}

	logger := requestLogger(base, c)
	switch {
	case status >= fiber.StatusInternalServerError:
		logger.Error().Err(err).Str("error_kind", string(kind)).Msg("request failed")
	default:
		logger.Debug().Err(err).Str("error_kind", string(kind)).Msg("request rejected")
	}
	return kind, status
}

func badRequest(c *fiber.Ctx, message string) error {
	return utils.SendErrorKind(c, fiber.StatusBadRequest, string(service.KindValidation), message)
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := c.Params(name)
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

func parseVersionParam(c *fiber.Ctx, name string) (int, error) {
	parsed, err := strconv.Atoi(c.Params(name))
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid version number")
	}
	return parsed, nil
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseQueryUint(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return strings.ToLower(strings.TrimSpace(role))
		}
	}
	return ""
}

func activityActorFromContext(c *fiber.Ctx) service.ActivityActor {
	return service.ActivityActor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func teacherOnly(h fiber.Handler) fiber.Handler {
	return middleware.WithAuth(h, middleware.AuthOptions{Role: middleware.AuthRoleTeacher})
}

func studentOnly(h fiber.Handler) fiber.Handler {
	return middleware.WithAuth(h, middleware.AuthOptions{Role: middleware.AuthRoleStudent})
}

func signedIn(h fiber.Handler) fiber.Handler {
	return middleware.WithAuth(h, middleware.AuthOptions{RequireUser: true})
}
