package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// SubmissionHandler manages draft, submit and version endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group. draftLimiter may be nil.
func (h *SubmissionHandler) Register(router fiber.Router, draftLimiter fiber.Handler) {
	drafts := []fiber.Handler{}
	if draftLimiter != nil {
		drafts = append(drafts, draftLimiter)
	}
	drafts = append(drafts, studentOnly(h.saveDraft))

	router.Post("/assignments/:assignmentId/drafts", drafts...)
	router.Get("/assignments/:assignmentId/submission", signedIn(h.latest))
	router.Post("/submissions/:id/submit", studentOnly(h.submit))
	router.Get("/submissions/:id", signedIn(h.get))
	router.Delete("/submissions/:id/versions/:version", signedIn(h.deleteVersion))
	router.Post("/submissions/:id/regrade", teacherOnly(h.regrade))
}

func (h *SubmissionHandler) saveDraft(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.SaveDraftRequest
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		payload, err = parseMultipartDraft(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
	} else if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid request body")
	}

	submission, err := h.service.SaveDraft(c.UserContext(), assignmentID, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "draft saved", submission)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	submission, err := h.service.SubmitFinal(c.UserContext(), id, activityActorFromContext(c))
	if errors.Is(err, service.ErrGradingIncomplete) {
		return respondWithData(c, h.logger, err, service.ErrGradingIncomplete.Error(), submission)
	}
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission submitted", submission)
}

func (h *SubmissionHandler) latest(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	actor := activityActorFromContext(c)
	studentID := actor.ID
	if actor.Role != "student" {
		requested, err := parseQueryUint(c, "student_id")
		if err != nil || requested == 0 {
			return badRequest(c, "student_id is required")
		}
		studentID = requested
	}

	submission, err := h.service.GetLatestVersion(c.UserContext(), assignmentID, studentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	submission, err := h.service.GetWithVersions(c.UserContext(), id, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) deleteVersion(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	version, err := parseVersionParam(c, "version")
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.service.DeleteVersion(c.UserContext(), id, version, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "version deleted", result)
}

func (h *SubmissionHandler) regrade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.service.Regrade(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission regraded", result)
}

func parseMultipartDraft(c *fiber.Ctx) (dto.SaveDraftRequest, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return dto.SaveDraftRequest{}, fmt.Errorf("invalid multipart form")
	}

	payload := dto.SaveDraftRequest{
		Content:           firstValue(form, "content"),
		AutoSaved:         firstValue(form, "auto_saved") == "true",
		KeepPreviousFiles: firstValue(form, "keep_previous_files") == "true",
	}

	if raw := strings.TrimSpace(firstValue(form, "quiz_answers")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload.QuizAnswers); err != nil {
			return dto.SaveDraftRequest{}, fmt.Errorf("quiz_answers must be a JSON object keyed by question index")
		}
	}

	for _, header := range form.File["files"] {
		data, err := readFormFile(header)
		if err != nil {
			return dto.SaveDraftRequest{}, err
		}
		payload.Files = append(payload.Files, dto.FileUpload{Name: header.Filename, Data: data})
	}

	return payload, nil
}

func firstValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("unable to read %s", header.Filename)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s", header.Filename)
	}
	return data, nil
}
