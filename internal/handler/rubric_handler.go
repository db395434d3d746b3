package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// RubricHandler serves rubric definition and rubric-based grading.
type RubricHandler struct {
	service service.RubricService
	logger  zerolog.Logger
}

// NewRubricHandler constructs a rubric handler.
func NewRubricHandler(service service.RubricService, logger zerolog.Logger) *RubricHandler {
	return &RubricHandler{
		service: service,
		logger:  logger.With().Str("component", "rubric_handler").Logger(),
	}
}

// Register attaches rubric routes.
func (h *RubricHandler) Register(router fiber.Router) {
	router.Post("/assignments/:assignmentId/rubrics", teacherOnly(h.define))
	router.Get("/assignments/:assignmentId/rubrics", signedIn(h.list))
	router.Get("/rubrics/:id", signedIn(h.get))
	router.Post("/rubrics/:id/calculate", teacherOnly(h.calculate))
	router.Post("/submissions/:id/rubric-grade", teacherOnly(h.grade))
}

func (h *RubricHandler) define(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.RubricRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid request body")
	}

	rubric, err := h.service.DefineRubric(c.UserContext(), assignmentID, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "rubric created", rubric)
}

func (h *RubricHandler) list(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	rubrics, err := h.service.ListRubrics(c.UserContext(), assignmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "rubrics retrieved", rubrics)
}

func (h *RubricHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	rubric, err := h.service.GetRubric(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "rubric retrieved", rubric)
}

func (h *RubricHandler) calculate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.RubricScoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.service.Calculate(c.UserContext(), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "rubric calculated", result)
}

func (h *RubricHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.RubricGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.service.GradeWithRubric(c.UserContext(), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission graded with rubric", result)
}
