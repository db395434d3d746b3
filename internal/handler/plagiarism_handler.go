package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// PlagiarismHandler stores and returns per-version similarity reports.
type PlagiarismHandler struct {
	service service.PlagiarismService
	logger  zerolog.Logger
}

// NewPlagiarismHandler constructs a plagiarism handler.
func NewPlagiarismHandler(service service.PlagiarismService, logger zerolog.Logger) *PlagiarismHandler {
	return &PlagiarismHandler{
		service: service,
		logger:  logger.With().Str("component", "plagiarism_handler").Logger(),
	}
}

// Register attaches plagiarism report routes.
func (h *PlagiarismHandler) Register(router fiber.Router) {
	router.Put("/submissions/:id/versions/:version/plagiarism", teacherOnly(h.record))
	router.Get("/submissions/:id/versions/:version/plagiarism", teacherOnly(h.get))
}

func (h *PlagiarismHandler) record(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	version, err := parseVersionParam(c, "version")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.PlagiarismReportRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid request body")
	}

	report, err := h.service.RecordReport(c.UserContext(), id, version, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "plagiarism report stored", report)
}

func (h *PlagiarismHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	version, err := parseVersionParam(c, "version")
	if err != nil {
		return badRequest(c, err.Error())
	}

	report, err := h.service.GetReport(c.UserContext(), id, version)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "plagiarism report retrieved", report)
}
