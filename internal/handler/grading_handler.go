package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// GradingHandler exposes manual grading and late-penalty endpoints to teachers.
type GradingHandler struct {
	grading   service.GradingService
	penalties service.LatePenaltyService
	logger    zerolog.Logger
}

// NewGradingHandler constructs a grading handler.
func NewGradingHandler(grading service.GradingService, penalties service.LatePenaltyService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		grading:   grading,
		penalties: penalties,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches grading routes.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("/grades/bulk", teacherOnly(h.bulkGrade))
	router.Post("/submissions/:id/grade", teacherOnly(h.grade))
	router.Get("/submissions/:id/late-penalty", teacherOnly(h.getLatePenalty))
	router.Post("/submissions/:id/late-penalty", teacherOnly(h.applyLatePenalty))
	router.Post("/submissions/:id/late-penalty/waive", teacherOnly(h.waiveLatePenalty))
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.GradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid request body")
	}

	submission, err := h.grading.Grade(c.UserContext(), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission graded", submission)
}

func (h *GradingHandler) bulkGrade(c *fiber.Ctx) error {
	var payload dto.BulkGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.grading.BulkGrade(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	status := fiber.StatusOK
	if len(result.Failed) > 0 {
		status = fiber.StatusMultiStatus
	}
	return utils.SendSuccessWithStatus(c, status, "bulk grading processed", result)
}

func (h *GradingHandler) getLatePenalty(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	record, err := h.penalties.GetLatePenalty(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "late penalty retrieved", record)
}

func (h *GradingHandler) applyLatePenalty(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	record, err := h.penalties.ApplyLatePenalty(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if record == nil {
		return utils.SendSuccess(c, "no late penalty applies", nil)
	}

	return utils.SendSuccess(c, "late penalty applied", record)
}

func (h *GradingHandler) waiveLatePenalty(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.WaiveLatePenaltyRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid request body")
	}

	record, err := h.penalties.WaiveLatePenalty(c.UserContext(), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "late penalty waived", record)
}
