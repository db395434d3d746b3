package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/database"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/handler"
	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/repository"
	"github.com/noah-isme/gema-grading-api/internal/router"
	"github.com/noah-isme/gema-grading-api/internal/service"
	cloud "github.com/noah-isme/gema-grading-api/pkg/cloudinary"
	objectstore "github.com/noah-isme/gema-grading-api/pkg/minio"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	capMode, err := grading.ParseCapMode(cfg.LateCapPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid late cap policy")
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, analytics cache and redis notifications disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, nats notifications disabled")
			natsConn = nil
		} else {
			defer natsConn.Drain()
		}
	}

	storage := buildStorage(cfg, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())
	uow := repository.NewUnitOfWork(db)

	activityService := service.NewActivityService(uow.Repositories().Activity, logger)
	notifier := service.NewNotifier(redisClient, natsConn, cfg.NotificationChannel, logger)
	analyticsService := service.NewAnalyticsService(uow.Repositories(), redisClient, cfg.AnalyticsCacheTTL, logger)
	fileIntake := service.NewFileIntake(storage, cfg.UploadMaxSizeMB, logger)

	autoGrader := service.NewAutoGradingService(uow, activityService, notifier, analyticsService, logger)
	penalties := service.NewLatePenaltyService(uow, validate, capMode, activityService, notifier, analyticsService, logger)
	gradingService := service.NewGradingService(uow, validate, capMode, activityService, notifier, analyticsService, logger)
	rubricService := service.NewRubricService(uow, validate, capMode, activityService, notifier, analyticsService, logger)
	questionService := service.NewQuestionService(uow, activityService, analyticsService, logger)
	plagiarismService := service.NewPlagiarismService(uow, validate, activityService, logger)
	submissionService := service.NewSubmissionService(uow, fileIntake, autoGrader, penalties, validate, service.SubmissionOptions{
		ResubmissionPolicy: cfg.ResubmissionPolicy,
		LateCapMode:        capMode,
	}, activityService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB*20 + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		GradingHandler:    handler.NewGradingHandler(gradingService, penalties, logger),
		RubricHandler:     handler.NewRubricHandler(rubricService, logger),
		QuestionHandler:   handler.NewQuestionHandler(questionService, logger),
		AnalyticsHandler:  handler.NewAnalyticsHandler(analyticsService, logger),
		PlagiarismHandler: handler.NewPlagiarismHandler(plagiarismService, logger),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		DraftRateLimiter:  middleware.RateLimit("drafts", cfg.AutosaveRateLimit, time.Minute),
		ExposeMetrics:     true,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

// buildStorage returns nil when the configured driver cannot be reached; uploads then fail
// with a dependency error while text-only drafts keep working.
func buildStorage(cfg config.Config, logger zerolog.Logger) service.FileStorage {
	switch cfg.StorageDriver {
	case config.StorageMinio:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := objectstore.New(ctx, objectstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("minio storage disabled")
			return nil
		}
		return store
	default:
		store, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("cloudinary storage disabled")
			return nil
		}
		return store
	}
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
