package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/handler"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
	"github.com/noah-isme/gema-grading-api/internal/router"
	"github.com/noah-isme/gema-grading-api/internal/service"
)

type handlerTestStorage struct {
	mu      sync.Mutex
	objects map[string]int
}

func (s *handlerTestStorage) Upload(_ context.Context, name string, reader io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = len(data)
	return "https://files.test/" + name, nil
}

func (s *handlerTestStorage) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
	return nil
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Meta      json.RawMessage `json:"meta"`
	ErrorKind string          `json:"error_kind"`
	Message   string          `json:"message"`
}

func setupGradingApp(t *testing.T) (*fiber.App, *gorm.DB, *handlerTestStorage) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	validate := validator.New(validator.WithRequiredStructEnabled())
	log := zerolog.New(io.Discard)
	storage := &handlerTestStorage{objects: map[string]int{}}
	uow := repository.NewUnitOfWork(db)

	activity := service.NewActivityService(uow.Repositories().Activity, log)
	notifier := service.NopNotifier()
	analytics := service.NewAnalyticsService(uow.Repositories(), nil, time.Minute, log)
	files := service.NewFileIntake(storage, 1, log)
	autoGrader := service.NewAutoGradingService(uow, activity, notifier, analytics, log)
	penalties := service.NewLatePenaltyService(uow, validate, grading.CapFreeze, activity, notifier, analytics, log)
	gradingService := service.NewGradingService(uow, validate, grading.CapFreeze, activity, notifier, analytics, log)
	rubrics := service.NewRubricService(uow, validate, grading.CapFreeze, activity, notifier, analytics, log)
	questions := service.NewQuestionService(uow, activity, analytics, log)
	plagiarism := service.NewPlagiarismService(uow, validate, activity, log)
	submissions := service.NewSubmissionService(uow, files, autoGrader, penalties, validate, service.SubmissionOptions{}, activity, log)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", AppEnv: "test", JWTSecret: "secret"}, router.Dependencies{
		SubmissionHandler: handler.NewSubmissionHandler(submissions, log),
		GradingHandler:    handler.NewGradingHandler(gradingService, penalties, log),
		RubricHandler:     handler.NewRubricHandler(rubrics, log),
		QuestionHandler:   handler.NewQuestionHandler(questions, log),
		AnalyticsHandler:  handler.NewAnalyticsHandler(analytics, log),
		PlagiarismHandler: handler.NewPlagiarismHandler(plagiarism, log),
		ActivityHandler:   handler.NewActivityHandler(activity, log),
		JWTMiddleware: func(c *fiber.Ctx) error {
			if id := c.Get("X-Test-User"); id != "" {
				parsed, err := strconv.ParseUint(id, 10, 64)
				if err != nil {
					return err
				}
				c.Locals("user_id", uint(parsed))
				c.Locals("user_role", c.Get("X-Test-Role"))
			}
			return c.Next()
		},
	})

	return app, db, storage
}

func doRequest(t *testing.T, app *fiber.App, method, path, role string, userID uint, body io.Reader, contentType string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(userID), 10))
		req.Header.Set("X-Test-Role", role)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func doJSON(t *testing.T, app *fiber.App, method, path, role string, userID uint, payload interface{}) (int, envelope) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return doRequest(t, app, method, path, role, userID, body, fiber.MIMEApplicationJSON)
}

func TestQuizSubmissionFlowOverHTTP(t *testing.T) {
	app, db, storage := setupGradingApp(t)

	assignment := models.Assignment{
		CourseID:           3,
		Title:              "Quiz 1",
		Type:               models.AssignmentTypeQuiz,
		DueDate:            time.Now().Add(48 * time.Hour),
		MaxScore:           10,
		AutoGradingEnabled: true,
	}
	require.NoError(t, db.Create(&assignment).Error)
	base := fmt.Sprintf("/api/v2/grading/assignments/%d", assignment.ID)

	questions := []map[string]interface{}{
		{"type": "multiple_choice", "prompt": "Pick B", "options": []string{"A", "B", "C"}, "correct_answer": "B", "points": 5},
		{"type": "true_false", "prompt": "Go has generics", "correct_answer": "true", "points": 5},
	}
	status, res := doJSON(t, app, http.MethodPut, base+"/questions", "student", 7, questions)
	require.Equal(t, fiber.StatusForbidden, status)

	status, res = doJSON(t, app, http.MethodPut, base+"/questions", "teacher", 900, questions)
	require.Equal(t, fiber.StatusOK, status, res.Message)
	var questionSet dto.QuestionSetResponse
	require.NoError(t, json.Unmarshal(res.Data, &questionSet))
	require.Equal(t, 2, questionSet.ObjectiveRules)
	require.False(t, questionSet.ManualGrading)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("content", "my answers"))
	require.NoError(t, writer.WriteField("quiz_answers", `{"0":" b ","1":"TRUE"}`))
	part, err := writer.CreateFormFile("files", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("scratch work for the quiz"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	status, res = doRequest(t, app, http.MethodPost, base+"/drafts", "student", 7, body, writer.FormDataContentType())
	require.Equal(t, fiber.StatusCreated, status, res.Message)
	var draft dto.SubmissionResponse
	require.NoError(t, json.Unmarshal(res.Data, &draft))
	require.Equal(t, string(models.SubmissionStatusDraft), draft.Status)
	require.Equal(t, 1, draft.LatestVersion)
	require.Len(t, storage.objects, 1)

	submissionPath := fmt.Sprintf("/api/v2/grading/submissions/%d", draft.ID)

	status, res = doJSON(t, app, http.MethodGet, submissionPath, "student", 8, nil)
	require.Equal(t, fiber.StatusNotFound, status)
	require.Equal(t, "not_found", res.ErrorKind)

	status, res = doJSON(t, app, http.MethodPost, submissionPath+"/submit", "student", 7, nil)
	require.Equal(t, fiber.StatusOK, status, res.Message)
	var submitted dto.SubmissionResponse
	require.NoError(t, json.Unmarshal(res.Data, &submitted))
	require.Equal(t, string(models.SubmissionStatusGraded), submitted.Status)
	require.NotNil(t, submitted.Grade)
	require.InDelta(t, 10, *submitted.Grade, 0.001)

	status, res = doJSON(t, app, http.MethodPost, submissionPath+"/submit", "student", 7, nil)
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, "state_conflict", res.ErrorKind)

	status, res = doJSON(t, app, http.MethodPost, submissionPath+"/grade", "teacher", 900, map[string]interface{}{"grade": 15})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, "validation", res.ErrorKind)

	status, _ = doJSON(t, app, http.MethodPost, submissionPath+"/grade", "student", 7, map[string]interface{}{"grade": 10})
	require.Equal(t, fiber.StatusForbidden, status)

	status, res = doJSON(t, app, http.MethodPost, submissionPath+"/grade", "teacher", 900, map[string]interface{}{"grade": 8.5, "feedback": "<script>x</script>Good"})
	require.Equal(t, fiber.StatusOK, status, res.Message)
	var graded dto.SubmissionResponse
	require.NoError(t, json.Unmarshal(res.Data, &graded))
	require.InDelta(t, 8.5, *graded.Grade, 0.001)
	require.Equal(t, "Good", graded.Feedback)

	status, res = doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/v2/grading/analytics/assignments/%d", assignment.ID), "teacher", 900, nil)
	require.Equal(t, fiber.StatusOK, status, res.Message)
	var snapshot dto.AnalyticsSnapshot
	require.NoError(t, json.Unmarshal(res.Data, &snapshot))
	require.Equal(t, 1, snapshot.Performance.Graded)
	require.InDelta(t, 8.5, snapshot.Performance.MeanScore, 0.001)

	status, res = doJSON(t, app, http.MethodGet, "/api/v2/grading/activities?entity_type=submission&page_size=50", "admin", 1, nil)
	require.Equal(t, fiber.StatusOK, status, res.Message)
	var items []dto.ActivityResponse
	require.NoError(t, json.Unmarshal(res.Data, &items))
	require.NotEmpty(t, items)
}

func TestBulkGradeReportsPartialFailure(t *testing.T) {
	app, db, _ := setupGradingApp(t)

	assignment := models.Assignment{CourseID: 1, Title: "Essay", Type: models.AssignmentTypeEssay, DueDate: time.Now().Add(time.Hour), MaxScore: 20}
	require.NoError(t, db.Create(&assignment).Error)

	status, res := doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/v2/grading/assignments/%d/drafts", assignment.ID), "student", 5, map[string]interface{}{"content": "essay body"})
	require.Equal(t, fiber.StatusCreated, status, res.Message)
	var draft dto.SubmissionResponse
	require.NoError(t, json.Unmarshal(res.Data, &draft))

	status, res = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/v2/grading/submissions/%d/submit", draft.ID), "student", 5, nil)
	require.Equal(t, fiber.StatusOK, status, res.Message)

	status, res = doJSON(t, app, http.MethodPost, "/api/v2/grading/grades/bulk", "teacher", 900, map[string]interface{}{
		"items": []map[string]interface{}{
			{"submission_id": draft.ID, "grade": 18},
			{"submission_id": 4242, "grade": 10},
		},
	})
	require.Equal(t, fiber.StatusMultiStatus, status, res.Message)
	var result dto.BulkGradeResponse
	require.NoError(t, json.Unmarshal(res.Data, &result))
	require.Len(t, result.Graded, 1)
	require.Len(t, result.Failed, 1)
	require.Equal(t, uint(4242), result.Failed[0].SubmissionID)
	require.Equal(t, "not_found", result.Failed[0].Kind)
}

func TestGradingRoutesRequireIdentity(t *testing.T) {
	app, _, _ := setupGradingApp(t)

	status, res := doJSON(t, app, http.MethodGet, "/api/v2/grading/analytics/courses/1", "", 0, nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.False(t, res.Success)

	status, res = doJSON(t, app, http.MethodGet, "/api/v2/grading/analytics/courses/1", "student", 7, nil)
	require.Equal(t, fiber.StatusForbidden, status)

	status, res = doJSON(t, app, http.MethodGet, "/api/v2/grading/activities", "student", 7, nil)
	require.Equal(t, fiber.StatusForbidden, status)
	require.Equal(t, "insufficient permissions", res.Message)

	status, res = doJSON(t, app, http.MethodGet, "/api/v2/grading/submissions/abc", "teacher", 900, nil)
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, "validation", res.ErrorKind)

	status, res = doJSON(t, app, http.MethodGet, "/api/v2/health", "", 0, nil)
	require.Equal(t, fiber.StatusOK, status)
	var health handler.HealthResponse
	require.NoError(t, json.Unmarshal(res.Data, &health))
	require.Equal(t, "Test", health.Service)
	require.Equal(t, "ok", health.Status)
}

func createQuiz(t *testing.T, app *fiber.App, db *gorm.DB) models.Assignment {
	t.Helper()
	assignment := models.Assignment{
		CourseID:           4,
		Title:              "Quiz 2",
		Type:               models.AssignmentTypeQuiz,
		DueDate:            time.Now().Add(48 * time.Hour),
		MaxScore:           10,
		AutoGradingEnabled: true,
	}
	require.NoError(t, db.Create(&assignment).Error)

	questions := []map[string]interface{}{
		{"type": "multiple_choice", "prompt": "Pick B", "options": []string{"A", "B"}, "correct_answer": "B", "points": 5},
		{"type": "short_answer", "prompt": "Capital of Italy", "correct_answer": "Rome", "variations": []string{"roma"}, "points": 5},
	}
	status, res := doJSON(t, app, http.MethodPut, fmt.Sprintf("/api/v2/grading/assignments/%d/questions", assignment.ID), "teacher", 900, questions)
	require.Equal(t, fiber.StatusOK, status, res.Message)
	return assignment
}

func draftQuiz(t *testing.T, app *fiber.App, assignmentID, studentID uint) dto.SubmissionResponse {
	t.Helper()
	status, res := doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/v2/grading/assignments/%d/drafts", assignmentID), "student", studentID,
		map[string]interface{}{"quiz_answers": map[string]string{"0": "B", "1": "roma"}})
	require.Equal(t, fiber.StatusCreated, status, res.Message)
	var draft dto.SubmissionResponse
	require.NoError(t, json.Unmarshal(res.Data, &draft))
	return draft
}

func TestSubmitReportsLockedSubmissionWhenGradingFails(t *testing.T) {
	app, db, _ := setupGradingApp(t)
	assignment := createQuiz(t, app, db)
	draft := draftQuiz(t, app, assignment.ID, 7)

	require.NoError(t, db.Model(&models.AutomatedGradingRule{}).
		Where("assignment_id = ?", assignment.ID).
		Update("variations", "{not json").Error)

	submissionPath := fmt.Sprintf("/api/v2/grading/submissions/%d", draft.ID)
	status, res := doJSON(t, app, http.MethodPost, submissionPath+"/submit", "student", 7, nil)
	require.Equal(t, fiber.StatusInternalServerError, status)
	require.False(t, res.Success)
	require.Equal(t, "internal", res.ErrorKind)
	require.Equal(t, "submission locked but grading did not complete", res.Message)

	var locked dto.SubmissionResponse
	require.NoError(t, json.Unmarshal(res.Data, &locked))
	require.Equal(t, string(models.SubmissionStatusSubmitted), locked.Status)
	require.True(t, locked.GradingPending)
	require.Nil(t, locked.Grade)

	status, res = doJSON(t, app, http.MethodPost, submissionPath+"/submit", "student", 7, nil)
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, "state_conflict", res.ErrorKind)
}

func TestRegradeOfTeacherGradedSubmissionConflicts(t *testing.T) {
	app, db, _ := setupGradingApp(t)
	assignment := createQuiz(t, app, db)
	draft := draftQuiz(t, app, assignment.ID, 7)

	submissionPath := fmt.Sprintf("/api/v2/grading/submissions/%d", draft.ID)
	status, res := doJSON(t, app, http.MethodPost, submissionPath+"/submit", "student", 7, nil)
	require.Equal(t, fiber.StatusOK, status, res.Message)

	status, res = doJSON(t, app, http.MethodPost, submissionPath+"/regrade", "teacher", 900, nil)
	require.Equal(t, fiber.StatusOK, status, res.Message)

	status, res = doJSON(t, app, http.MethodPost, submissionPath+"/grade", "teacher", 900, map[string]interface{}{"grade": 9})
	require.Equal(t, fiber.StatusOK, status, res.Message)

	status, res = doJSON(t, app, http.MethodPost, submissionPath+"/regrade", "teacher", 900, nil)
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, "state_conflict", res.ErrorKind)
	require.Contains(t, res.Message, "graded by a teacher")

	status, res = doJSON(t, app, http.MethodGet, submissionPath, "teacher", 900, nil)
	require.Equal(t, fiber.StatusOK, status, res.Message)
	var view dto.SubmissionResponse
	require.NoError(t, json.Unmarshal(res.Data, &view))
	require.InDelta(t, 9, *view.Grade, 0.001)
}
