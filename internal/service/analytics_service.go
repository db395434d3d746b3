package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

// AnalyticsService derives grade statistics. Snapshots are cached but always recomputable from the database.
type AnalyticsService interface {
	AnalyticsInvalidator
	GetAssignmentAnalytics(ctx context.Context, assignmentID uint) (dto.AnalyticsSnapshot, error)
	GetCourseAnalytics(ctx context.Context, courseID uint) (dto.CourseAnalyticsSnapshot, error)
}

type analyticsService struct {
	repos    repository.Repositories
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewAnalyticsService constructs the analytics aggregator. cache may be nil.
func NewAnalyticsService(repos repository.Repositories, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) AnalyticsService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &analyticsService{
		repos:    repos,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "analytics_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/analytics"),
	}
}

func assignmentCacheKey(id uint) string {
	return fmt.Sprintf("grading:analytics:assignment:%d", id)
}

func courseCacheKey(id uint) string {
	return fmt.Sprintf("grading:analytics:course:%d", id)
}

func (s *analyticsService) GetAssignmentAnalytics(ctx context.Context, assignmentID uint) (dto.AnalyticsSnapshot, error) {
	cacheKey := assignmentCacheKey(assignmentID)
	ctx, span := s.tracer.Start(ctx, "analytics.assignment", trace.WithAttributes(
		attribute.String("analytics.cache_key", cacheKey),
	))
	defer span.End()

	var snapshot dto.AnalyticsSnapshot
	if s.readCache(ctx, span, "assignment", cacheKey, &snapshot) {
		return snapshot, nil
	}

	start := time.Now()
	assignment, err := s.repos.Assignments.GetByID(ctx, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.AnalyticsSnapshot{}, notFound(err, ErrAssignmentNotFound)
	}

	snapshot, err = s.buildAssignmentSnapshot(ctx, assignment)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate_failed")
		return dto.AnalyticsSnapshot{}, err
	}
	observability.AnalyticsCompute().WithLabelValues("assignment").Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("analytics.submissions", snapshot.Performance.TotalSubmissions))

	s.writeCache(ctx, span, cacheKey, snapshot)
	return snapshot, nil
}

func (s *analyticsService) GetCourseAnalytics(ctx context.Context, courseID uint) (dto.CourseAnalyticsSnapshot, error) {
	cacheKey := courseCacheKey(courseID)
	ctx, span := s.tracer.Start(ctx, "analytics.course", trace.WithAttributes(
		attribute.String("analytics.cache_key", cacheKey),
	))
	defer span.End()

	var snapshot dto.CourseAnalyticsSnapshot
	if s.readCache(ctx, span, "course", cacheKey, &snapshot) {
		return snapshot, nil
	}

	start := time.Now()
	assignments, err := s.repos.Assignments.ListByCourse(ctx, courseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_assignments_failed")
		return dto.CourseAnalyticsSnapshot{}, err
	}

	ids := make([]uint, 0, len(assignments))
	maxScores := make(map[uint]float64, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.ID)
		maxScores[a.ID] = a.EffectiveMaxScore()
	}
	submissions, err := s.repos.Submissions.ListByAssignments(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return dto.CourseAnalyticsSnapshot{}, err
	}
	records, err := s.repos.LatePenalties.ListBySubmissions(ctx, submissionIDs(submissions))
	if err != nil {
		span.RecordError(err)
		return dto.CourseAnalyticsSnapshot{}, err
	}

	asOf := lastChange(submissions, records)
	for _, a := range assignments {
		if a.UpdatedAt.After(asOf) {
			asOf = a.UpdatedAt
		}
	}

	byAssignment := make(map[uint][]models.Submission, len(assignments))
	for _, sub := range submissions {
		byAssignment[sub.AssignmentID] = append(byAssignment[sub.AssignmentID], sub)
	}

	summaries := make([]dto.AssignmentSummary, 0, len(assignments))
	for _, a := range assignments {
		perf, _ := performance(byAssignment[a.ID], maxScores)
		summaries = append(summaries, dto.AssignmentSummary{
			AssignmentID:   a.ID,
			Title:          a.Title,
			Graded:         perf.Graded,
			CompletionRate: perf.CompletionRate,
			MeanPercentage: perf.MeanPercentage,
			PassingRate:    perf.PassingRate,
		})
	}

	perf, percentages := performance(submissions, maxScores)
	snapshot = dto.CourseAnalyticsSnapshot{
		CourseID:     courseID,
		Assignments:  summaries,
		Distribution: grading.Distribution(percentages),
		Performance:  perf,
		Late:         lateStats(records),
		Timeline:     timeline(submissions),
		GeneratedAt:  asOf.UTC(),
	}
	observability.AnalyticsCompute().WithLabelValues("course").Observe(time.Since(start).Seconds())

	s.writeCache(ctx, span, cacheKey, snapshot)
	return snapshot, nil
}

// Invalidate drops the cached snapshots of the assignment and of its course.
func (s *analyticsService) Invalidate(ctx context.Context, assignment models.Assignment) {
	if s.cache == nil {
		return
	}
	keys := []string{assignmentCacheKey(assignment.ID)}
	if assignment.CourseID != 0 {
		keys = append(keys, courseCacheKey(assignment.CourseID))
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignment.ID).Msg("failed to invalidate analytics cache")
	}
}

func (s *analyticsService) buildAssignmentSnapshot(ctx context.Context, assignment models.Assignment) (dto.AnalyticsSnapshot, error) {
	submissions, err := s.repos.Submissions.ListByAssignments(ctx, []uint{assignment.ID})
	if err != nil {
		return dto.AnalyticsSnapshot{}, err
	}
	ids := submissionIDs(submissions)
	records, err := s.repos.LatePenalties.ListBySubmissions(ctx, ids)
	if err != nil {
		return dto.AnalyticsSnapshot{}, err
	}

	asOf := lastChange(submissions, records)
	if assignment.UpdatedAt.After(asOf) {
		asOf = assignment.UpdatedAt
	}

	perf, percentages := performance(submissions, map[uint]float64{assignment.ID: assignment.EffectiveMaxScore()})
	snapshot := dto.AnalyticsSnapshot{
		AssignmentID: assignment.ID,
		Title:        assignment.Title,
		MaxScore:     assignment.EffectiveMaxScore(),
		Distribution: grading.Distribution(percentages),
		Performance:  perf,
		Late:         lateStats(records),
		Timeline:     timeline(submissions),
		GeneratedAt:  asOf.UTC(),
	}

	if assignment.Type.HasQuiz() {
		snapshot.Questions, err = s.questionAnalytics(ctx, assignment.ID, ids)
		if err != nil {
			return dto.AnalyticsSnapshot{}, err
		}
	}
	return snapshot, nil
}

// questionAnalytics reruns the objective grader over each submission's latest final version.
func (s *analyticsService) questionAnalytics(ctx context.Context, assignmentID uint, ids []uint) ([]dto.QuestionAnalytics, error) {
	stored, err := s.repos.Rules.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, nil
	}
	rules, err := rulesFromModels(stored)
	if err != nil {
		return nil, err
	}
	versions, err := s.repos.Versions.ListLatestFinal(ctx, ids)
	if err != nil {
		return nil, err
	}

	type tally struct {
		qtype    grading.QuestionType
		correct  int
		answered int
	}
	tallies := make(map[int]*tally, len(rules))
	for _, r := range rules {
		tallies[r.QuestionIndex] = &tally{qtype: r.Type}
	}
	for _, v := range versions {
		result := grading.GradeObjective(dto.DecodeAnswers(v.QuizAnswers), rules)
		for _, q := range result.Questions {
			t := tallies[q.Index]
			if q.Answered {
				t.answered++
			}
			if q.Correct {
				t.correct++
			}
		}
	}

	indexes := make([]int, 0, len(tallies))
	for idx := range tallies {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]dto.QuestionAnalytics, 0, len(indexes))
	for _, idx := range indexes {
		t := tallies[idx]
		rate := grading.Round2(grading.Rate(t.correct, t.answered))
		out = append(out, dto.QuestionAnalytics{
			Index:       idx,
			Type:        string(t.qtype),
			Correct:     t.correct,
			Answered:    t.answered,
			SuccessRate: rate,
			Difficulty:  grading.DifficultyLabel(rate, t.answered),
		})
	}
	return out, nil
}

func (s *analyticsService) readCache(ctx context.Context, span trace.Span, scope, key string, target interface{}) bool {
	if s.cache == nil {
		return false
	}
	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to read analytics cache")
			span.RecordError(err)
		}
		observability.AnalyticsCache().WithLabelValues(scope, "miss").Inc()
		return false
	}
	if err := json.Unmarshal([]byte(cached), target); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding unreadable analytics cache entry")
		observability.AnalyticsCache().WithLabelValues(scope, "miss").Inc()
		return false
	}
	observability.AnalyticsCache().WithLabelValues(scope, "hit").Inc()
	span.SetAttributes(attribute.Bool("analytics.cache_hit", true))
	return true
}

func (s *analyticsService) writeCache(ctx context.Context, span trace.Span, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to store analytics cache")
		span.RecordError(err)
	}
}

// performance computes the graded-work metrics. It also returns the rounded percentage of every graded submission.
func performance(submissions []models.Submission, maxScores map[uint]float64) (dto.PerformanceMetrics, []float64) {
	metrics := dto.PerformanceMetrics{TotalSubmissions: len(submissions)}
	scores := make([]float64, 0, len(submissions))
	percentages := make([]float64, 0, len(submissions))
	passing := 0
	for _, sub := range submissions {
		if sub.IsFinal() {
			metrics.Submitted++
		}
		if sub.Grade == nil {
			continue
		}
		maxScore, ok := maxScores[sub.AssignmentID]
		if !ok || maxScore <= 0 {
			maxScore = 100
		}
		pct := grading.Round2(grading.Percentage(*sub.Grade, maxScore))
		scores = append(scores, *sub.Grade)
		percentages = append(percentages, pct)
		if grading.IsPassing(pct) {
			passing++
		}
	}

	metrics.Graded = len(scores)
	metrics.CompletionRate = grading.Round2(grading.Rate(metrics.Graded, metrics.TotalSubmissions))
	metrics.MeanScore = grading.Round2(grading.Mean(scores))
	metrics.MeanPercentage = grading.Round2(grading.Mean(percentages))
	metrics.StdDev = grading.Round2(grading.PopulationStdDev(scores))
	metrics.PassingRate = grading.Round2(grading.Rate(passing, metrics.Graded))
	metrics.Lowest, metrics.Highest = grading.MinMax(scores)
	return metrics, percentages
}

func lateStats(records []models.LateSubmissionRecord) dto.LateStats {
	stats := dto.LateStats{LateCount: len(records)}
	penalties := make([]float64, 0, len(records))
	for _, r := range records {
		if r.IsWaived() {
			stats.WaivedCount++
		}
		penalties = append(penalties, r.PenaltyPercentage)
	}
	stats.MeanPenalty = grading.Round2(grading.Mean(penalties))
	return stats
}

// timeline counts graded submissions per UTC day of their last update.
func timeline(submissions []models.Submission) []dto.TimelinePoint {
	counts := map[string]int{}
	for _, sub := range submissions {
		if sub.Grade == nil {
			continue
		}
		counts[sub.UpdatedAt.UTC().Format("2006-01-02")]++
	}
	days := make([]string, 0, len(counts))
	for day := range counts {
		days = append(days, day)
	}
	sort.Strings(days)

	points := make([]dto.TimelinePoint, 0, len(days))
	for _, day := range days {
		points = append(points, dto.TimelinePoint{Date: day, Graded: counts[day]})
	}
	return points
}

// lastChange is the newest update among the rows a snapshot is built from.
func lastChange(submissions []models.Submission, records []models.LateSubmissionRecord) time.Time {
	var newest time.Time
	for _, sub := range submissions {
		if sub.UpdatedAt.After(newest) {
			newest = sub.UpdatedAt
		}
	}
	for _, r := range records {
		if r.UpdatedAt.After(newest) {
			newest = r.UpdatedAt
		}
	}
	return newest
}

func submissionIDs(submissions []models.Submission) []uint {
	ids := make([]uint, 0, len(submissions))
	for _, sub := range submissions {
		ids = append(ids, sub.ID)
	}
	return ids
}
