package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/handler"
	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler *handler.SubmissionHandler
	GradingHandler    *handler.GradingHandler
	RubricHandler     *handler.RubricHandler
	QuestionHandler   *handler.QuestionHandler
	AnalyticsHandler  *handler.AnalyticsHandler
	PlagiarismHandler *handler.PlagiarismHandler
	ActivityHandler   *handler.ActivityHandler
	JWTMiddleware     fiber.Handler
	DraftRateLimiter  fiber.Handler
	ExposeMetrics     bool
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	if deps.ExposeMetrics {
		app.Get("/metrics", observability.MetricsHandler())
	}

	api := app.Group("/api/v2", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	grading := app.Group("/api/v2/grading", jwtMiddleware)

	// Reporting routes are staff only as a whole.
	staff := middleware.RequireRole(middleware.RoleTeacher, middleware.RoleAdmin)
	grading.Use("/analytics", staff)
	grading.Use("/activities", staff)

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(grading, deps.DraftRateLimiter)
	}
	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(grading)
	}
	if deps.RubricHandler != nil {
		deps.RubricHandler.Register(grading)
	}
	if deps.QuestionHandler != nil {
		deps.QuestionHandler.Register(grading)
	}
	if deps.AnalyticsHandler != nil {
		deps.AnalyticsHandler.Register(grading)
	}
	if deps.PlagiarismHandler != nil {
		deps.PlagiarismHandler.Register(grading)
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(grading)
	}
}
