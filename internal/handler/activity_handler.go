package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// ActivityHandler lists the grading audit trail.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler constructs an activity handler.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches activity routes. The router gates them to staff.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("/activities", h.list)
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return badRequest(c, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return badRequest(c, "invalid page_size")
	}
	actorID, err := parseQueryUint(c, "actor_id")
	if err != nil {
		return badRequest(c, "invalid actor_id")
	}
	entityID, err := parseQueryUint(c, "entity_id")
	if err != nil {
		return badRequest(c, "invalid entity_id")
	}

	req := dto.ActivityListRequest{
		Page:       page,
		PageSize:   pageSize,
		ActorID:    actorID,
		Action:     strings.TrimSpace(c.Query("action")),
		EntityType: strings.TrimSpace(c.Query("entity_type")),
		EntityID:   entityID,
	}

	result, err := h.service.List(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, result.Items, "activities retrieved", result.Pagination)
}
