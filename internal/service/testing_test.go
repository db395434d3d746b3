package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

var (
	dueDate     = time.Date(2025, 1, 10, 23, 59, 59, 0, time.UTC)
	onTime      = time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC)
	threeLate   = time.Date(2025, 1, 13, 12, 0, 0, 0, time.UTC)
	teacher     = ActivityActor{ID: 900, Role: "teacher"}
	student     = ActivityActor{ID: 7, Role: "student"}
	testContext = context.Background()
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func setupUnitOfWork(t *testing.T) (repository.UnitOfWork, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return repository.NewUnitOfWork(db), db
}

func createAssignment(t *testing.T, db *gorm.DB, mutate func(*models.Assignment)) models.Assignment {
	t.Helper()
	assignment := models.Assignment{
		CourseID:              1,
		Title:                 "Essay 1",
		Type:                  models.AssignmentTypeEssay,
		DueDate:               dueDate,
		MaxScore:              100,
		AllowLateSubmissions:  true,
		LateSubmissionPenalty: 10,
		MaxLateDays:           5,
	}
	if mutate != nil {
		mutate(&assignment)
	}
	require.NoError(t, db.Create(&assignment).Error)
	return assignment
}

// harness wires every grading service against one in-memory database.
type harness struct {
	uow        repository.UnitOfWork
	db         *gorm.DB
	activity   ActivityService
	notifier   *recordingNotifier
	analytics  *recordingInvalidator
	storage    *memoryStorage
	files      FileIntake
	autoGrader AutoGradingService
	penalties  LatePenaltyService
	grading    GradingService
	rubrics    RubricService
	questions  QuestionService
	submission SubmissionService
}

func newHarness(t *testing.T, options SubmissionOptions) *harness {
	t.Helper()
	uow, db := setupUnitOfWork(t)
	validate := testValidator()
	h := &harness{
		uow:       uow,
		db:        db,
		notifier:  &recordingNotifier{},
		analytics: &recordingInvalidator{},
		storage:   newMemoryStorage(),
	}
	h.activity = NewActivityService(uow.Repositories().Activity, testLogger())
	h.files = NewFileIntake(h.storage, 1, testLogger())
	h.autoGrader = NewAutoGradingService(uow, h.activity, h.notifier, h.analytics, testLogger())
	h.penalties = NewLatePenaltyService(uow, validate, options.LateCapMode, h.activity, h.notifier, h.analytics, testLogger())
	h.grading = NewGradingService(uow, validate, options.LateCapMode, h.activity, h.notifier, h.analytics, testLogger())
	h.rubrics = NewRubricService(uow, validate, options.LateCapMode, h.activity, h.notifier, h.analytics, testLogger())
	h.questions = NewQuestionService(uow, h.activity, h.analytics, testLogger())
	h.submission = NewSubmissionService(uow, h.files, h.autoGrader, h.penalties, validate, options, h.activity, testLogger())
	return h
}

// submitAt pins the submission clock and finalizes the student's latest draft.
func (h *harness) submitAt(t *testing.T, submissionID uint, at time.Time) error {
	t.Helper()
	h.submission.(*submissionService).now = fixedClock(at)
	_, err := h.submission.SubmitFinal(testContext, submissionID, student)
	return err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []GradingEvent
}

func (r *recordingNotifier) Notify(_ context.Context, event GradingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingInvalidator struct {
	mu          sync.Mutex
	assignments []uint
}

func (r *recordingInvalidator) Invalidate(_ context.Context, assignment models.Assignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments = append(r.assignments, assignment.ID)
}

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	failAt  int
	uploads int
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (m *memoryStorage) Upload(_ context.Context, name string, reader io.Reader, _ int64, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	if m.failAt > 0 && m.uploads == m.failAt {
		return "", fmt.Errorf("bucket offline")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", err
	}
	m.objects[name] = buf.Bytes()
	return "https://files.example.test/" + name, nil
}

func (m *memoryStorage) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	m.deleted = append(m.deleted, name)
	return nil
}

func (m *memoryStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
