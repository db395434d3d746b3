package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// AnalyticsHandler exposes grade analytics to teachers.
type AnalyticsHandler struct {
	service service.AnalyticsService
	logger  zerolog.Logger
}

// NewAnalyticsHandler constructs an analytics handler.
func NewAnalyticsHandler(service service.AnalyticsService, logger zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
		logger:  logger.With().Str("component", "analytics_handler").Logger(),
	}
}

// Register attaches analytics routes. The router gates them to staff.
func (h *AnalyticsHandler) Register(router fiber.Router) {
	router.Get("/analytics/assignments/:id", h.assignment)
	router.Get("/analytics/courses/:id", h.course)
}

func (h *AnalyticsHandler) assignment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	snapshot, err := h.service.GetAssignmentAnalytics(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment analytics retrieved", snapshot)
}

func (h *AnalyticsHandler) course(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	snapshot, err := h.service.GetCourseAnalytics(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "course analytics retrieved", snapshot)
}
