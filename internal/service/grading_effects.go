package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

// AnalyticsInvalidator drops cached analytics after grades change.
type AnalyticsInvalidator interface {
	Invalidate(ctx context.Context, assignment models.Assignment)
}

// gradingEffects runs the post-commit side effects of a grading event. None of them can fail the caller.
type gradingEffects struct {
	activity  ActivityRecorder
	notifier  Notifier
	analytics AnalyticsInvalidator
	logger    zerolog.Logger
}

func (e gradingEffects) record(ctx context.Context, actor ActivityActor, action, entityType string, entityID uint, metadata map[string]interface{}) {
	if e.activity == nil {
		return
	}
	id := entityID
	if _, err := e.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   &id,
		Metadata:   metadata,
	}); err != nil {
		e.logger.Warn().Err(err).Str("action", action).Uint("entity_id", entityID).Msg("failed to record activity")
	}
}

func (e gradingEffects) notify(ctx context.Context, eventType string, submission models.Submission, message string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, GradingEvent{
		Type:         eventType,
		SubmissionID: submission.ID,
		AssignmentID: submission.AssignmentID,
		StudentID:    submission.StudentID,
		Grade:        submission.Grade,
		Message:      message,
	})
}

func (e gradingEffects) invalidate(ctx context.Context, assignment models.Assignment) {
	if e.analytics == nil || assignment.ID == 0 {
		return
	}
	e.analytics.Invalidate(ctx, assignment)
}

func appendHistory(ctx context.Context, repos repository.Repositories, submission models.Submission, score float64, feedback string, source models.GradeSource, gradedBy *uint, at time.Time) error {
	entry := models.SubmissionGradeHistory{
		SubmissionID: submission.ID,
		Attempt:      submission.Attempt,
		Score:        score,
		Feedback:     feedback,
		Source:       source,
		GradedBy:     gradedBy,
		GradedAt:     at,
	}
	if err := repos.Submissions.CreateHistory(ctx, &entry); err != nil {
		return err
	}
	observability.GradesRecorded().WithLabelValues(string(source)).Inc()
	return nil
}

func floatPtr(v float64) *float64 {
	return &v
}

func uintPtr(v uint) *uint {
	return &v
}

func sameGrade(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	diff := *a - *b
	return diff < 1e-9 && diff > -1e-9
}
