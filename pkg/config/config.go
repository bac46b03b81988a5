package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production
	HTTP HTTPConfig

	// Storage
	StoreDriver string // memory, postgres
	Database    DatabaseConfig

	// Redis
	Redis RedisConfig

	// External APIs
	Signals  SignalsConfig
	Listings ListingsConfig

	// Domain
	Scoring     ScoringConfig
	Calibration CalibrationConfig
	Scheduler   SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// SignalsConfig holds the dealer signal/spend API configuration
type SignalsConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

// ListingsConfig holds the inventory page scraper configuration
type ListingsConfig struct {
	Enabled   bool
	UserAgent string
	// RecencyWindow is how recent a listing update must be to count as fresh
	RecencyWindow time.Duration
}

// ScoringConfig points at the YAML scoring policy
type ScoringConfig struct {
	PolicyPath string // empty → built-in defaults
}

// CalibrationConfig holds the weekly loop settings
type CalibrationConfig struct {
	Tenants               []string
	Schedule              string // cron spec with seconds
	CompletenessThreshold float64
	WindowPeriods         int
	LearningRate          float64
	MinTrainingSamples    int
	ForecastHorizon       int
	PointsPerResult       float64
	ReallocationShare     float64
	RunTimeout            time.Duration
	MaxAttempts           int
	RetryInitialDelay     time.Duration
	RetryMaxDelay         time.Duration
	MaxConcurrentTenants  int
}

// HTTPConfig holds API server timeouts
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // covers synchronous POST /calibrate
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// SchedulerConfig holds background job settings
type SchedulerConfig struct {
	CacheWarmSchedule string // cron spec with seconds
	MaxRetries        int
	RetryDelay        time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),
		HTTP: HTTPConfig{
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", "15s"),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", "5m"),
			IdleTimeout:     getEnvAsDuration("HTTP_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", "30s"),
		},

		StoreDriver: getEnv("STORE_DRIVER", "memory"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Signals: SignalsConfig{
			BaseURL:        getEnv("SIGNALS_BASE_URL", "http://localhost:8090"),
			APIKey:         getEnv("SIGNALS_API_KEY", ""),
			Timeout:        getEnvAsDuration("SIGNALS_TIMEOUT", "30s"),
			RequestsPerSec: getEnvAsFloat("SIGNALS_RPS", 5),
			Burst:          getEnvAsInt("SIGNALS_BURST", 5),
		},

		Listings: ListingsConfig{
			Enabled:       getEnvAsBool("LISTINGS_ENABLED", false),
			UserAgent:     getEnv("LISTINGS_USER_AGENT", "dealerai-bot/1.0"),
			RecencyWindow: getEnvAsDuration("LISTINGS_RECENCY_WINDOW", "72h"),
		},

		Scoring: ScoringConfig{
			PolicyPath: getEnv("SCORING_POLICY_PATH", ""),
		},

		Calibration: CalibrationConfig{
			Tenants:               getEnvAsList("CALIBRATION_TENANTS"),
			Schedule:              getEnv("CALIBRATION_SCHEDULE", "0 0 3 * * MON"),
			CompletenessThreshold: getEnvAsFloat("CALIBRATION_COMPLETENESS", 0.95),
			WindowPeriods:         getEnvAsInt("CALIBRATION_WINDOW", 8),
			LearningRate:          getEnvAsFloat("CALIBRATION_LEARNING_RATE", 0.01),
			MinTrainingSamples:    getEnvAsInt("LEARNER_MIN_SAMPLES", 100),
			ForecastHorizon:       getEnvAsInt("FORECAST_HORIZON", 4),
			PointsPerResult:       getEnvAsFloat("SPEND_POINTS_PER_RESULT", 1.5),
			ReallocationShare:     getEnvAsFloat("SPEND_REALLOCATION_SHARE", 0.3),
			RunTimeout:            getEnvAsDuration("CALIBRATION_RUN_TIMEOUT", "10m"),
			MaxAttempts:           getEnvAsInt("CALIBRATION_MAX_ATTEMPTS", 3),
			RetryInitialDelay:     getEnvAsDuration("CALIBRATION_RETRY_DELAY", "1s"),
			RetryMaxDelay:         getEnvAsDuration("CALIBRATION_RETRY_MAX_DELAY", "10s"),
			MaxConcurrentTenants:  getEnvAsInt("CALIBRATION_MAX_CONCURRENCY", 4),
		},

		Scheduler: SchedulerConfig{
			CacheWarmSchedule: getEnv("CACHE_WARM_SCHEDULE", "0 30 * * * *"),
			MaxRetries:        getEnvAsInt("SCHEDULER_MAX_RETRIES", 1),
			RetryDelay:        getEnvAsDuration("SCHEDULER_RETRY_DELAY", "1m"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWithEnvFile loads path (when set) ahead of the default .env lookup.
// Variables already in the environment still win.
func LoadWithEnvFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return Load()
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.StoreDriver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of: memory, postgres")
	}

	cal := c.Calibration
	if cal.CompletenessThreshold <= 0 || cal.CompletenessThreshold > 1 {
		return fmt.Errorf("CALIBRATION_COMPLETENESS must be in (0, 1]")
	}
	if cal.WindowPeriods < 3 {
		return fmt.Errorf("CALIBRATION_WINDOW must be at least 3")
	}
	if cal.LearningRate <= 0 {
		return fmt.Errorf("CALIBRATION_LEARNING_RATE must be positive")
	}
	if cal.MinTrainingSamples < 1 {
		return fmt.Errorf("LEARNER_MIN_SAMPLES must be positive")
	}
	if cal.ForecastHorizon < 1 || cal.ForecastHorizon > 12 {
		return fmt.Errorf("FORECAST_HORIZON must be between 1 and 12")
	}
	if cal.ReallocationShare < 0 || cal.ReallocationShare > 1 {
		return fmt.Errorf("SPEND_REALLOCATION_SHARE must be in [0, 1]")
	}
	if cal.MaxAttempts < 1 {
		return fmt.Errorf("CALIBRATION_MAX_ATTEMPTS must be at least 1")
	}
	if c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT and HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("SCHEDULER_MAX_RETRIES must not be negative")
	}

	return nil
}

// RedisAddr returns host:port for the redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
