package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Recognition
	RecognitionBackend   string // "proxy" or "vertex"
	RecognitionBaseURL   string
	RecognitionAPIKey    string
	RecognitionTimeout   time.Duration
	RecognitionRateLimit float64 // requests per second, 0 disables limiting

	// Vertex AI (only for RecognitionBackend == "vertex")
	VertexProjectID       string
	VertexLocation        string
	VertexModel           string
	VertexCredentialsFile string

	// Supabase
	SupabaseURL            string
	SupabasePublishableKey string
	SupabaseJWTSecret      string
	SupabaseStorageBucket  string

	// Database
	DatabaseDriver string // "postgres" or "sqlite"
	DatabaseURL    string

	// Local photo storage, used when Supabase storage is not configured
	LocalStorageDir string

	// Pipeline
	WorkerCount      int
	TaskLease        time.Duration
	PollInterval     time.Duration
	MaxDeliveries    int
	SweepInterval    time.Duration
	StuckPhotoAfter  time.Duration
	DraftSettleAfter time.Duration
	DailyPhotoLimit  int
	MaxUploadBytes   int64

	// Server
	Port        string
	Environment string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RecognitionBackend:   getEnv("RECOGNITION_BACKEND", "proxy"),
		RecognitionBaseURL:   getEnv("RECOGNITION_BASE_URL", "http://localhost:9000/"),
		RecognitionAPIKey:    getEnv("RECOGNITION_API_KEY", ""),
		RecognitionTimeout:   getDuration("RECOGNITION_TIMEOUT", 45*time.Second),
		RecognitionRateLimit: getFloat("RECOGNITION_RATE_LIMIT", 0),

		VertexProjectID:       getEnv("VERTEX_PROJECT_ID", ""),
		VertexLocation:        getEnv("VERTEX_LOCATION", "us-central1"),
		VertexModel:           getEnv("VERTEX_MODEL", "gemini-1.5-flash"),
		VertexCredentialsFile: getEnv("VERTEX_CREDENTIALS_FILE", ""),

		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabasePublishableKey: getEnv("SUPABASE_PUBLISHABLE_KEY", ""),
		SupabaseJWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", "meal-photos"),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		LocalStorageDir: getEnv("LOCAL_STORAGE_DIR", "./data/photos"),

		WorkerCount:      getInt("WORKER_COUNT", 4),
		TaskLease:        getDuration("TASK_LEASE", 3*time.Minute),
		PollInterval:     getDuration("POLL_INTERVAL", 2*time.Second),
		MaxDeliveries:    getInt("MAX_DELIVERIES", 5),
		SweepInterval:    getDuration("SWEEP_INTERVAL", time.Minute),
		StuckPhotoAfter:  getDuration("STUCK_PHOTO_AFTER", 15*time.Minute),
		DraftSettleAfter: getDuration("DRAFT_SETTLE_AFTER", 5*time.Minute),
		DailyPhotoLimit:  getInt("DAILY_PHOTO_LIMIT", 50),
		MaxUploadBytes:   int64(getInt("MAX_UPLOAD_BYTES", 10<<20)),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	switch c.RecognitionBackend {
	case "proxy":
		if c.RecognitionBaseURL == "" {
			return fmt.Errorf("RECOGNITION_BASE_URL is required for the proxy backend")
		}
	case "vertex":
		if c.VertexProjectID == "" {
			return fmt.Errorf("VERTEX_PROJECT_ID is required for the vertex backend")
		}
	default:
		return fmt.Errorf("RECOGNITION_BACKEND must be proxy or vertex, got %q", c.RecognitionBackend)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.MaxDeliveries < 1 {
		return fmt.Errorf("MAX_DELIVERIES must be at least 1")
	}
	if c.DailyPhotoLimit < 1 {
		return fmt.Errorf("DAILY_PHOTO_LIMIT must be at least 1")
	}
	return nil
}

// SupabaseStorageEnabled reports whether photos go to Supabase Storage
// instead of the local directory.
func (c *Config) SupabaseStorageEnabled() bool {
	return c.SupabaseURL != "" && c.SupabasePublishableKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
