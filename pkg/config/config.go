package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers.
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

// Certificate sequence backends.
const (
	SequenceBackendPostgres = "postgres"
	SequenceBackendRedis    = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Scoring       ScoringConfig
	Lifecycle     LifecycleConfig
	Certificates  CertificatesConfig
	Storage       StorageConfig
	Offer         OfferConfig
	Notifications NotificationsConfig
	Retry         RetryConfig
	Coordinator   CoordinatorConfig
	RateLimit     RateLimitConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig verifies tokens minted by the external identity provider.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ScoringConfig holds the five component weights. They must sum to exactly 1.
type ScoringConfig struct {
	TechnicalWeight     string
	InterpersonalWeight string
	AttendanceWeight    string
	InitiativeWeight    string
	ReportWeight        string
}

// LifecycleConfig tunes internship completion rules.
type LifecycleConfig struct {
	MinAttendanceRate   float64
	MinDurationWeeks    int
	MaxDurationWeeks    int
	FinalReportProgress int
}

// CertificatesConfig controls number allocation, downloads and verification caching.
type CertificatesConfig struct {
	SequenceBackend  string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	VerifyCacheTTL   time.Duration
	MaxFileSizeBytes int64
	// VerifyBaseURL prefixes the verification code printed on certificates.
	VerifyBaseURL string
	// DownloadPath is the public route serving signed certificate downloads.
	DownloadPath string
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	Driver     string
	BaseDir    string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string
}

// OfferConfig points at the external offer service.
type OfferConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NotificationsConfig configures the Redis stream consumed by the notification service.
type NotificationsConfig struct {
	Enabled bool
	Stream  string
	MaxLen  int64
	Timeout time.Duration
}

// RetryConfig is the backoff policy for external collaborators.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// CoordinatorConfig sizes the saga worker pool and the sweeper.
type CoordinatorConfig struct {
	Workers       int
	BufferSize    int
	SweepSchedule string
	StaleAfter    time.Duration
	SweepBatch    int
}

// RateLimitConfig throttles public verification lookups per client IP.
type RateLimitConfig struct {
	VerifyRPS   float64
	VerifyBurst int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scoring = ScoringConfig{
		TechnicalWeight:     v.GetString("SCORING_WEIGHT_TECHNICAL"),
		InterpersonalWeight: v.GetString("SCORING_WEIGHT_INTERPERSONAL"),
		AttendanceWeight:    v.GetString("SCORING_WEIGHT_ATTENDANCE"),
		InitiativeWeight:    v.GetString("SCORING_WEIGHT_INITIATIVE"),
		ReportWeight:        v.GetString("SCORING_WEIGHT_REPORT"),
	}

	cfg.Lifecycle = LifecycleConfig{
		MinAttendanceRate:   v.GetFloat64("LIFECYCLE_MIN_ATTENDANCE_RATE"),
		MinDurationWeeks:    v.GetInt("LIFECYCLE_MIN_DURATION_WEEKS"),
		MaxDurationWeeks:    v.GetInt("LIFECYCLE_MAX_DURATION_WEEKS"),
		FinalReportProgress: v.GetInt("LIFECYCLE_FINAL_REPORT_PROGRESS"),
	}

	maxCertSize := v.GetInt64("CERTIFICATES_MAX_FILE_SIZE")
	if maxCertSize <= 0 {
		maxCertSize = 10 * 1024 * 1024
	}
	cfg.Certificates = CertificatesConfig{
		SequenceBackend:  strings.ToLower(v.GetString("CERTIFICATES_SEQUENCE_BACKEND")),
		SignedURLSecret:  v.GetString("CERTIFICATES_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("CERTIFICATES_SIGNED_URL_TTL"), 30*time.Minute),
		VerifyCacheTTL:   parseDuration(v.GetString("CERTIFICATES_VERIFY_CACHE_TTL"), 10*time.Minute),
		VerifyBaseURL:    strings.TrimRight(v.GetString("CERTIFICATES_VERIFY_BASE_URL"), "/"),
		DownloadPath:     v.GetString("CERTIFICATES_DOWNLOAD_PATH"),
		MaxFileSizeBytes: maxCertSize,
	}

	cfg.Storage = StorageConfig{
		Driver:     strings.ToLower(v.GetString("STORAGE_DRIVER")),
		BaseDir:    v.GetString("STORAGE_BASE_DIR"),
		S3Bucket:   v.GetString("STORAGE_S3_BUCKET"),
		S3Region:   v.GetString("STORAGE_S3_REGION"),
		S3Endpoint: v.GetString("STORAGE_S3_ENDPOINT"),
		S3Prefix:   v.GetString("STORAGE_S3_PREFIX"),
	}

	cfg.Offer = OfferConfig{
		BaseURL: strings.TrimRight(v.GetString("OFFER_SERVICE_URL"), "/"),
		Timeout: parseDuration(v.GetString("OFFER_SERVICE_TIMEOUT"), 3*time.Second),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled: v.GetBool("ENABLE_NOTIFICATIONS"),
		Stream:  v.GetString("NOTIFICATIONS_STREAM"),
		MaxLen:  v.GetInt64("NOTIFICATIONS_STREAM_MAXLEN"),
		Timeout: parseDuration(v.GetString("NOTIFICATIONS_TIMEOUT"), 2*time.Second),
	}

	cfg.Retry = RetryConfig{
		MaxAttempts:  v.GetInt("RETRY_MAX_ATTEMPTS"),
		InitialDelay: parseDuration(v.GetString("RETRY_INITIAL_DELAY"), 200*time.Millisecond),
		MaxDelay:     parseDuration(v.GetString("RETRY_MAX_DELAY"), 10*time.Second),
		Multiplier:   v.GetFloat64("RETRY_MULTIPLIER"),
		Jitter:       v.GetFloat64("RETRY_JITTER"),
	}

	cfg.Coordinator = CoordinatorConfig{
		Workers:       v.GetInt("COORDINATOR_WORKERS"),
		BufferSize:    v.GetInt("COORDINATOR_BUFFER_SIZE"),
		SweepSchedule: v.GetString("COORDINATOR_SWEEP_SCHEDULE"),
		StaleAfter:    parseDuration(v.GetString("COORDINATOR_STALE_AFTER"), 2*time.Minute),
		SweepBatch:    v.GetInt("COORDINATOR_SWEEP_BATCH"),
	}

	cfg.RateLimit = RateLimitConfig{
		VerifyRPS:   v.GetFloat64("RATE_LIMIT_VERIFY_RPS"),
		VerifyBurst: v.GetInt("RATE_LIMIT_VERIFY_BURST"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "internships")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCORING_WEIGHT_TECHNICAL", "0.30")
	v.SetDefault("SCORING_WEIGHT_INTERPERSONAL", "0.20")
	v.SetDefault("SCORING_WEIGHT_ATTENDANCE", "0.15")
	v.SetDefault("SCORING_WEIGHT_INITIATIVE", "0.15")
	v.SetDefault("SCORING_WEIGHT_REPORT", "0.20")

	v.SetDefault("LIFECYCLE_MIN_ATTENDANCE_RATE", 0.8)
	v.SetDefault("LIFECYCLE_MIN_DURATION_WEEKS", 4)
	v.SetDefault("LIFECYCLE_MAX_DURATION_WEEKS", 26)
	v.SetDefault("LIFECYCLE_FINAL_REPORT_PROGRESS", 80)

	v.SetDefault("CERTIFICATES_SEQUENCE_BACKEND", SequenceBackendPostgres)
	v.SetDefault("CERTIFICATES_SIGNED_URL_SECRET", "dev_certificates_secret")
	v.SetDefault("CERTIFICATES_SIGNED_URL_TTL", "30m")
	v.SetDefault("CERTIFICATES_VERIFY_CACHE_TTL", "10m")
	v.SetDefault("CERTIFICATES_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("CERTIFICATES_VERIFY_BASE_URL", "http://localhost:8080/api/v1/verify")
	v.SetDefault("CERTIFICATES_DOWNLOAD_PATH", "/api/v1/certificates/download")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_BASE_DIR", "./documents")
	v.SetDefault("STORAGE_S3_BUCKET", "")
	v.SetDefault("STORAGE_S3_REGION", "us-east-1")
	v.SetDefault("STORAGE_S3_ENDPOINT", "")
	v.SetDefault("STORAGE_S3_PREFIX", "documents")

	v.SetDefault("OFFER_SERVICE_URL", "http://localhost:8081")
	v.SetDefault("OFFER_SERVICE_TIMEOUT", "3s")

	v.SetDefault("ENABLE_NOTIFICATIONS", true)
	v.SetDefault("NOTIFICATIONS_STREAM", "lifecycle:notifications")
	v.SetDefault("NOTIFICATIONS_STREAM_MAXLEN", 100000)
	v.SetDefault("NOTIFICATIONS_TIMEOUT", "2s")

	v.SetDefault("RETRY_MAX_ATTEMPTS", 4)
	v.SetDefault("RETRY_INITIAL_DELAY", "200ms")
	v.SetDefault("RETRY_MAX_DELAY", "10s")
	v.SetDefault("RETRY_MULTIPLIER", 2.0)
	v.SetDefault("RETRY_JITTER", 0.2)

	v.SetDefault("COORDINATOR_WORKERS", 4)
	v.SetDefault("COORDINATOR_BUFFER_SIZE", 256)
	v.SetDefault("COORDINATOR_SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("COORDINATOR_STALE_AFTER", "2m")
	v.SetDefault("COORDINATOR_SWEEP_BATCH", 100)

	v.SetDefault("RATE_LIMIT_VERIFY_RPS", 5)
	v.SetDefault("RATE_LIMIT_VERIFY_BURST", 10)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
