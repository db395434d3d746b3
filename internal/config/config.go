package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Resubmission policies applied when a learner saves a draft after the final submission.
const (
	ResubmissionLocked     = "locked"
	ResubmissionNewAttempt = "new_attempt"
)

// Storage drivers for submission files.
const (
	StorageCloudinary = "cloudinary"
	StorageMinio      = "minio"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	StorageDriver          string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	MinioEndpoint          string
	MinioAccessKey         string
	MinioSecretKey         string
	MinioBucket            string
	MinioUseSSL            bool
	UploadMaxSizeMB        int
	AnalyticsCacheTTL      time.Duration
	ResubmissionPolicy     string
	LateCapPolicy          string
	NotificationChannel    string
	AutosaveRateLimit      int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Grading API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("storage.driver", StorageCloudinary)
	v.SetDefault("cloudinary.folder", "gema/submissions")
	v.SetDefault("minio.bucket", "gema-submissions")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("analytics.cache_ttl", "5m")
	v.SetDefault("grading.resubmission_policy", ResubmissionLocked)
	v.SetDefault("grading.late_cap_policy", "freeze")
	v.SetDefault("notifications.channel", "gema:grading")
	v.SetDefault("autosave.rate_limit", 30)

	ttlString := v.GetString("analytics.cache_ttl")
	if ttlString == "" {
		ttlString = "5m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid analytics cache ttl: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		StorageDriver:          strings.ToLower(strings.TrimSpace(v.GetString("storage.driver"))),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		MinioEndpoint:          v.GetString("minio.endpoint"),
		MinioAccessKey:         v.GetString("minio.access_key"),
		MinioSecretKey:         v.GetString("minio.secret_key"),
		MinioBucket:            v.GetString("minio.bucket"),
		MinioUseSSL:            v.GetBool("minio.use_ssl"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		AnalyticsCacheTTL:      ttl,
		ResubmissionPolicy:     strings.ToLower(strings.TrimSpace(v.GetString("grading.resubmission_policy"))),
		LateCapPolicy:          strings.ToLower(strings.TrimSpace(v.GetString("grading.late_cap_policy"))),
		NotificationChannel:    v.GetString("notifications.channel"),
		AutosaveRateLimit:      v.GetInt("autosave.rate_limit"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.ResubmissionPolicy {
	case ResubmissionLocked, ResubmissionNewAttempt:
	default:
		return Config{}, fmt.Errorf("unknown resubmission policy %q", cfg.ResubmissionPolicy)
	}

	switch cfg.LateCapPolicy {
	case "freeze", "reject":
	default:
		return Config{}, fmt.Errorf("unknown late cap policy %q", cfg.LateCapPolicy)
	}

	switch cfg.StorageDriver {
	case StorageCloudinary, StorageMinio:
	default:
		return Config{}, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}

	if cfg.AutosaveRateLimit <= 0 {
		cfg.AutosaveRateLimit = 30
	}

	return cfg, nil
}
