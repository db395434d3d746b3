package handler

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// QuestionHandler manages quiz question definitions.
type QuestionHandler struct {
	service service.QuestionService
	logger  zerolog.Logger
}

// NewQuestionHandler constructs a question handler.
func NewQuestionHandler(service service.QuestionService, logger zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		service: service,
		logger:  logger.With().Str("component", "question_handler").Logger(),
	}
}

// Register attaches question routes. Answer keys are only visible to teachers.
func (h *QuestionHandler) Register(router fiber.Router) {
	router.Put("/assignments/:assignmentId/questions", teacherOnly(h.define))
	router.Get("/assignments/:assignmentId/questions", teacherOnly(h.get))
}

func (h *QuestionHandler) define(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	body := c.Body()
	if len(body) == 0 || !json.Valid(body) {
		return badRequest(c, "invalid request body")
	}

	// Body bytes are reused by fasthttp after the handler returns.
	payload := append(json.RawMessage(nil), body...)

	result, err := h.service.DefineQuestions(c.UserContext(), assignmentID, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "questions saved", result)
}

func (h *QuestionHandler) get(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.service.GetQuestions(c.UserContext(), assignmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "questions retrieved", result)
}
