package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/grading"
)

// Error kinds. Every error returned by this package that a caller can act on wraps exactly one of them.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrStateConflict     = errors.New("state conflict")
	ErrDependencyFailure = errors.New("dependency unavailable")
)

var (
	ErrSubmissionNotFound       = fmt.Errorf("submission %w", ErrNotFound)
	ErrAssignmentNotFound       = fmt.Errorf("assignment %w", ErrNotFound)
	ErrRubricNotFound           = fmt.Errorf("rubric %w", ErrNotFound)
	ErrVersionNotFound          = fmt.Errorf("submission version %w", ErrNotFound)
	ErrLatePenaltyNotFound      = fmt.Errorf("late penalty record %w", ErrNotFound)
	ErrPlagiarismReportNotFound = fmt.Errorf("plagiarism report %w", ErrNotFound)

	ErrGradeOutOfRange        = fmt.Errorf("%w: grade must be between 0 and the assignment max score", ErrValidation)
	ErrLateSubmissionRejected = fmt.Errorf("%w: late submission not accepted", ErrValidation)
	ErrUnsupportedAssignment  = fmt.Errorf("%w: assignment type does not support quiz questions", ErrValidation)
	ErrQuestionPointsExceeded = fmt.Errorf("%w: question points exceed the assignment max score", ErrValidation)
	ErrUploadTooLarge         = fmt.Errorf("%w: file exceeds maximum allowed size", ErrValidation)
	ErrUploadTypeNotAllowed   = fmt.Errorf("%w: file type not allowed", ErrValidation)
	ErrRubricAssignment       = fmt.Errorf("%w: rubric belongs to another assignment", ErrValidation)

	ErrSubmissionFinal      = fmt.Errorf("%w: submission is already final", ErrStateConflict)
	ErrSubmissionNotFinal   = fmt.Errorf("%w: submission has not been submitted", ErrStateConflict)
	ErrNoVersions           = fmt.Errorf("%w: submission has no saved version", ErrStateConflict)
	ErrPenaltyAlreadyWaived = fmt.Errorf("%w: late penalty already waived", ErrStateConflict)
	ErrVersionNotDeletable  = fmt.Errorf("%w: only earlier draft versions can be deleted", ErrStateConflict)
	ErrManuallyGraded       = fmt.Errorf("%w: submission was graded by a teacher", ErrStateConflict)
	ErrStorageUnavailable   = fmt.Errorf("file storage %w", ErrDependencyFailure)
)

// ErrGradingIncomplete marks a final submission whose grading pipeline failed after the lock
// committed. It is always joined with the pipeline error, which decides the kind.
var ErrGradingIncomplete = errors.New("submission locked but grading did not complete")

// ErrorKind is the machine readable category of an error.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindValidation        ErrorKind = "validation"
	KindStateConflict     ErrorKind = "state_conflict"
	KindDependencyFailure ErrorKind = "dependency_failure"
	KindInternal          ErrorKind = "internal"
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	var validationErrors validator.ValidationErrors
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, grading.ErrInvalid), errors.As(err, &validationErrors):
		return KindValidation
	case errors.Is(err, ErrStateConflict):
		return KindStateConflict
	case errors.Is(err, ErrDependencyFailure):
		return KindDependencyFailure
	default:
		return KindInternal
	}
}

// notFound maps gorm's missing-row error onto target and passes anything else through.
func notFound(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

// PublicMessage is the message safe to return to API clients for err.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if KindOf(err) == KindInternal {
		return "internal server error"
	}
	return err.Error()
}
