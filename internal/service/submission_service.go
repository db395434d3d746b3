package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

// SubmissionService is the state machine for a learner's work on an assignment.
type SubmissionService interface {
	SaveDraft(ctx context.Context, assignmentID uint, payload dto.SaveDraftRequest, actor ActivityActor) (dto.SubmissionResponse, error)
	SubmitFinal(ctx context.Context, submissionID uint, actor ActivityActor) (dto.SubmissionResponse, error)
	Regrade(ctx context.Context, submissionID uint) (dto.AutoGradeResponse, error)
	GetLatestVersion(ctx context.Context, assignmentID, studentID uint) (dto.SubmissionResponse, error)
	GetWithVersions(ctx context.Context, submissionID uint, actor ActivityActor) (dto.SubmissionResponse, error)
	DeleteVersion(ctx context.Context, submissionID uint, versionNumber int, actor ActivityActor) (dto.DeleteVersionResponse, error)
}

// SubmissionOptions carries the policy switches of the submission workflow.
type SubmissionOptions struct {
	ResubmissionPolicy string
	LateCapMode        grading.CapMode
}

type submissionService struct {
	uow        repository.UnitOfWork
	files      FileIntake
	autoGrader AutoGradingService
	penalties  LatePenaltyService
	validator  *validator.Validate
	options    SubmissionOptions
	activity   ActivityRecorder
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(uow repository.UnitOfWork, files FileIntake, autoGrader AutoGradingService, penalties LatePenaltyService, validate *validator.Validate, options SubmissionOptions, activity ActivityRecorder, logger zerolog.Logger) SubmissionService {
	if options.ResubmissionPolicy == "" {
		options.ResubmissionPolicy = config.ResubmissionLocked
	}
	if options.LateCapMode == "" {
		options.LateCapMode = grading.CapFreeze
	}
	return &submissionService{
		uow:        uow,
		files:      files,
		autoGrader: autoGrader,
		penalties:  penalties,
		validator:  validate,
		options:    options,
		activity:   activity,
		logger:     logger.With().Str("component", "submission_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/submission"),
		now:        time.Now,
	}
}

// SaveDraft appends a draft version for the acting student, creating the submission on first save.
// Files are placed in storage before the metadata transaction and discarded again if it fails.
func (s *submissionService) SaveDraft(ctx context.Context, assignmentID uint, payload dto.SaveDraftRequest, actor ActivityActor) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.save_draft", trace.WithAttributes(
		attribute.Int64("submission.assignment_id", int64(assignmentID)),
		attribute.Int64("submission.student_id", int64(actor.ID)),
		attribute.Bool("submission.auto_saved", payload.AutoSaved),
		attribute.Int("submission.files", len(payload.Files)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	repos := s.uow.Repositories()
	if _, err := repos.Assignments.GetByID(ctx, assignmentID); err != nil {
		return dto.SubmissionResponse{}, notFound(err, ErrAssignmentNotFound)
	}
	if existing, err := repos.Submissions.GetByAssignmentAndStudent(ctx, assignmentID, actor.ID); err == nil {
		if existing.IsFinal() && s.options.ResubmissionPolicy == config.ResubmissionLocked {
			span.SetStatus(codes.Error, "submission_final")
			return dto.SubmissionResponse{}, ErrSubmissionFinal
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.SubmissionResponse{}, err
	}

	answers := payload.QuizAnswers
	if answers == nil {
		answers = map[int]string{}
	}
	encodedAnswers, err := json.Marshal(answers)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	var stored []StoredFile
	if s.files != nil {
		stored, err = s.files.Store(ctx, payload.Files)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "file_storage_failed")
			return dto.SubmissionResponse{}, err
		}
	} else if len(payload.Files) > 0 {
		return dto.SubmissionResponse{}, ErrStorageUnavailable
	}

	var (
		submission models.Submission
		version    models.SubmissionVersion
		newAttempt bool
	)
	err = s.uow.Do(ctx, func(repos repository.Repositories) error {
		head := models.Submission{
			AssignmentID: assignmentID,
			StudentID:    actor.ID,
			Status:       models.SubmissionStatusDraft,
			Attempt:      1,
		}
		if _, err := repos.Submissions.CreateIfAbsent(ctx, &head); err != nil {
			return err
		}

		var err error
		submission, err = repos.Submissions.GetByAssignmentAndStudentForUpdate(ctx, assignmentID, actor.ID)
		if err != nil {
			return err
		}

		if submission.IsFinal() {
			if s.options.ResubmissionPolicy != config.ResubmissionNewAttempt {
				return ErrSubmissionFinal
			}
			if err := repos.LatePenalties.DeleteBySubmission(ctx, submission.ID); err != nil {
				return err
			}
			submission.Attempt++
			submission.Status = models.SubmissionStatusDraft
			submission.RawGrade = nil
			submission.Grade = nil
			submission.Feedback = ""
			submission.GradedBy = nil
			submission.GradedAt = nil
			submission.SubmittedAt = nil
			newAttempt = true
		}

		highest, err := repos.Versions.MaxNumber(ctx, submission.ID)
		if err != nil {
			return err
		}

		files := make([]models.SubmissionFile, 0, len(stored))
		if payload.KeepPreviousFiles && highest > 0 {
			previous, err := repos.Versions.GetByNumber(ctx, submission.ID, highest)
			if err != nil {
				return err
			}
			for _, f := range previous.Files {
				files = append(files, models.SubmissionFile{
					OriginalFilename: f.OriginalFilename,
					StoredFilename:   f.StoredFilename,
					URL:              f.URL,
					Size:             f.Size,
					MimeType:         f.MimeType,
					Hash:             f.Hash,
					UploadOrder:      len(files) + 1,
				})
			}
		}
		for _, f := range stored {
			files = append(files, models.SubmissionFile{
				OriginalFilename: f.OriginalFilename,
				StoredFilename:   f.StoredFilename,
				URL:              f.URL,
				Size:             f.Size,
				MimeType:         f.MimeType,
				Hash:             f.Hash,
				UploadOrder:      len(files) + 1,
			})
		}

		version = models.SubmissionVersion{
			SubmissionID:  submission.ID,
			VersionNumber: highest + 1,
			Attempt:       submission.Attempt,
			Content:       payload.Content,
			QuizAnswers:   datatypes.JSON(encodedAnswers),
			IsDraft:       true,
			AutoSaved:     payload.AutoSaved,
			Files:         files,
		}
		if err := repos.Versions.Create(ctx, &version); err != nil {
			return err
		}

		submission.LatestVersion = version.VersionNumber
		submission.Content = version.Content
		submission.QuizAnswers = version.QuizAnswers
		return repos.Submissions.Update(ctx, &submission)
	})
	if err != nil {
		if s.files != nil && len(stored) > 0 {
			s.files.Discard(context.WithoutCancel(ctx), storedNames(stored))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "save_failed")
		return dto.SubmissionResponse{}, err
	}

	kind := "manual"
	if payload.AutoSaved {
		kind = "autosave"
	}
	observability.VersionsCreated().WithLabelValues(kind).Inc()
	span.SetAttributes(attribute.Int("submission.version", version.VersionNumber), attribute.Bool("submission.new_attempt", newAttempt))
	if newAttempt {
		s.logger.Info().Uint("submission_id", submission.ID).Int("attempt", submission.Attempt).Msg("new submission attempt opened")
	}

	response := dto.NewSubmissionResponse(submission)
	current := dto.NewSubmissionVersionResponse(version)
	response.CurrentVersion = &current
	return response, nil
}

// SubmitFinal locks the latest version, then runs objective grading and the late penalty, each in
// its own committed transaction and in that order.
func (s *submissionService) SubmitFinal(ctx context.Context, submissionID uint, actor ActivityActor) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.submit_final", trace.WithAttributes(
		attribute.Int64("submission.id", int64(submissionID)),
	))
	defer span.End()

	err := s.uow.Do(ctx, func(repos repository.Repositories) error {
		submission, err := repos.Submissions.GetByIDForUpdate(ctx, submissionID)
		if err != nil {
			return notFound(err, ErrSubmissionNotFound)
		}
		if !canAccess(actor, submission) {
			return ErrSubmissionNotFound
		}
		if submission.IsFinal() {
			return ErrSubmissionFinal
		}

		version, err := repos.Versions.Latest(ctx, submission.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoVersions
			}
			return err
		}

		submittedAt := s.now()
		assignment := submission.Assignment
		assessment := grading.AssessLateness(assignment.DueDate, submittedAt, latePolicy(assignment), s.options.LateCapMode)
		if !assessment.Accepted {
			return ErrLateSubmissionRejected
		}

		version.IsDraft = false
		version.SubmittedAt = &submittedAt
		if err := repos.Versions.Update(ctx, &version); err != nil {
			return err
		}

		submission.Status = models.SubmissionStatusSubmitted
		submission.SubmittedAt = &submittedAt
		submission.LatestVersion = version.VersionNumber
		submission.Content = version.Content
		submission.QuizAnswers = version.QuizAnswers
		return repos.Submissions.Update(ctx, &submission)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit_failed")
		return dto.SubmissionResponse{}, err
	}

	_, pipelineErr := s.runGradingPipeline(ctx, submissionID, true)

	view, err := s.view(ctx, submissionID, false)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if pipelineErr != nil {
		span.RecordError(pipelineErr)
		span.SetStatus(codes.Error, "grading_incomplete")
		s.logger.Error().Err(pipelineErr).Uint("submission_id", submissionID).Msg("grading pipeline failed after final submission")
		view.GradingPending = true
		return view, errors.Join(ErrGradingIncomplete, pipelineErr)
	}
	return view, nil
}

// Regrade reruns objective grading and the late penalty for a final submission.
func (s *submissionService) Regrade(ctx context.Context, submissionID uint) (dto.AutoGradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.regrade", trace.WithAttributes(
		attribute.Int64("submission.id", int64(submissionID)),
	))
	defer span.End()

	result, err := s.runGradingPipeline(ctx, submissionID, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "regrade_failed")
		return dto.AutoGradeResponse{}, err
	}

	view, err := s.view(ctx, submissionID, false)
	if err != nil {
		return dto.AutoGradeResponse{}, err
	}
	if result == nil {
		return dto.AutoGradeResponse{SubmissionID: submissionID, Questions: []grading.QuestionResult{}, Submission: view}, nil
	}
	result.Submission = view
	return *result, nil
}

// runGradingPipeline auto-grades and then applies the late penalty. A teacher grade stops
// auto-grading; it is tolerated only when tolerateManual is set.
func (s *submissionService) runGradingPipeline(ctx context.Context, submissionID uint, tolerateManual bool) (*dto.AutoGradeResponse, error) {
	var result *dto.AutoGradeResponse
	if s.autoGrader != nil {
		var err error
		result, err = s.autoGrader.AutoGrade(ctx, submissionID)
		if err != nil && !(tolerateManual && errors.Is(err, ErrManuallyGraded)) {
			return nil, err
		}
	}
	if s.penalties != nil {
		if _, err := s.penalties.ApplyLatePenalty(ctx, submissionID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *submissionService) GetLatestVersion(ctx context.Context, assignmentID, studentID uint) (dto.SubmissionResponse, error) {
	submission, err := s.uow.Repositories().Submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		return dto.SubmissionResponse{}, notFound(err, ErrSubmissionNotFound)
	}
	return s.view(ctx, submission.ID, false)
}

func (s *submissionService) GetWithVersions(ctx context.Context, submissionID uint, actor ActivityActor) (dto.SubmissionResponse, error) {
	submission, err := s.uow.Repositories().Submissions.GetByID(ctx, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, notFound(err, ErrSubmissionNotFound)
	}
	if !canAccess(actor, submission) {
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}
	return s.view(ctx, submissionID, true)
}

// DeleteVersion removes an earlier draft version together with its files and plagiarism report.
// Stored objects no longer referenced by any file row are removed from storage after commit.
func (s *submissionService) DeleteVersion(ctx context.Context, submissionID uint, versionNumber int, actor ActivityActor) (dto.DeleteVersionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.delete_version", trace.WithAttributes(
		attribute.Int64("submission.id", int64(submissionID)),
		attribute.Int("submission.version", versionNumber),
	))
	defer span.End()

	var orphans []string
	err := s.uow.Do(ctx, func(repos repository.Repositories) error {
		submission, err := repos.Submissions.GetByIDForUpdate(ctx, submissionID)
		if err != nil {
			return notFound(err, ErrSubmissionNotFound)
		}
		if !canAccess(actor, submission) {
			return ErrSubmissionNotFound
		}
		// Students cannot rewrite the history of a locked attempt.
		if submission.IsFinal() && isStudent(actor) {
			return ErrSubmissionFinal
		}

		version, err := repos.Versions.GetByNumber(ctx, submissionID, versionNumber)
		if err != nil {
			return notFound(err, ErrVersionNotFound)
		}
		highest, err := repos.Versions.MaxNumber(ctx, submissionID)
		if err != nil {
			return err
		}
		if !version.IsDraft || version.VersionNumber >= highest {
			return ErrVersionNotDeletable
		}

		names := make([]string, 0, len(version.Files))
		for _, f := range version.Files {
			names = append(names, f.StoredFilename)
		}
		if err := repos.Versions.Delete(ctx, version); err != nil {
			return err
		}

		referenced, err := repos.Versions.ReferencedStoredNames(ctx, names)
		if err != nil {
			return err
		}
		orphans = difference(names, referenced)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete_failed")
		return dto.DeleteVersionResponse{}, err
	}

	if s.files != nil && len(orphans) > 0 {
		s.files.Discard(ctx, orphans)
	}
	if s.activity != nil {
		id := submissionID
		if _, err := s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     ActionVersionDeleted,
			EntityType: "submission",
			EntityID:   &id,
			Metadata:   map[string]interface{}{"version_number": versionNumber, "orphaned_files": len(orphans)},
		}); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("failed to record version deletion")
		}
	}

	return dto.DeleteVersionResponse{SubmissionID: submissionID, VersionNumber: versionNumber, OrphanedFiles: orphans}, nil
}

// view assembles the read model. Current content always comes from the highest-numbered version.
func (s *submissionService) view(ctx context.Context, submissionID uint, withHistory bool) (dto.SubmissionResponse, error) {
	repos := s.uow.Repositories()
	submission, err := repos.Submissions.GetByID(ctx, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, notFound(err, ErrSubmissionNotFound)
	}

	if withHistory {
		submission.Versions, err = repos.Versions.ListBySubmission(ctx, submissionID)
		if err != nil {
			return dto.SubmissionResponse{}, err
		}
		submission.History, err = repos.Submissions.ListHistory(ctx, submissionID)
		if err != nil {
			return dto.SubmissionResponse{}, err
		}
	}

	response := dto.NewSubmissionResponse(submission)

	var current *models.SubmissionVersion
	if n := len(submission.Versions); n > 0 {
		current = &submission.Versions[n-1]
	} else if latest, err := repos.Versions.Latest(ctx, submissionID); err == nil {
		current = &latest
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.SubmissionResponse{}, err
	}
	if current != nil {
		currentResponse := dto.NewSubmissionVersionResponse(*current)
		response.CurrentVersion = &currentResponse
		response.LatestVersion = current.VersionNumber
		response.Content = currentResponse.Content
		response.QuizAnswers = currentResponse.QuizAnswers
	}

	if record, err := repos.LatePenalties.GetBySubmission(ctx, submissionID); err == nil {
		late := dto.NewLatePenaltyResponse(record)
		response.LatePenalty = &late
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.SubmissionResponse{}, err
	}

	return response, nil
}

// canAccess lets students reach only their own submissions. Teachers are trusted upstream.
func isStudent(actor ActivityActor) bool {
	return strings.EqualFold(strings.TrimSpace(actor.Role), "student")
}

func canAccess(actor ActivityActor, submission models.Submission) bool {
	if isStudent(actor) {
		return submission.StudentID == actor.ID
	}
	return true
}

func difference(names, referenced []string) []string {
	keep := make(map[string]struct{}, len(referenced))
	for _, name := range referenced {
		keep[name] = struct{}{}
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
