package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// Role names carried in the user_role local.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// RequireRole gates every route below it to signed-in users holding one of roles.
// Anonymous requests get 401, signed-in users with another role get 403.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRoleValue(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if c.Locals("user_id") == nil {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if _, ok := allowed[normalizeRoleValue(c.Locals("user_role"))]; !ok {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		return c.Next()
	}
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
