package infra

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageBackendSupabase   = "supabase"
	StorageBackendFilesystem = "filesystem"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	// CredentialKey is the 32-byte AES key used to seal per-user provider keys.
	CredentialKey []byte

	StorageBackend     string
	StoragePath        string
	StorageBaseURL     string
	StorageBucket      string
	SupabaseURL        string
	SupabaseServiceKey string

	GeminiBaseURL       string
	GeminiModel         string
	GeminiAllowedModels []string
	GeminiSynthetic     bool

	MaxConcurrentTasks int
	TaskTimeout        time.Duration
	FilePollAttempts   int
	FilePollInterval   time.Duration
	StalePendingAfter  time.Duration
	SweepInterval      time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                port,
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		StorageBackend:      strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendFilesystem)),
		StoragePath:         getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:      getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),
		StorageBucket:       getEnv("STORAGE_BUCKET", "avatars"),
		SupabaseURL:         strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseServiceKey:  os.Getenv("SUPABASE_SERVICE_KEY"),
		GeminiBaseURL:       os.Getenv("GEMINI_BASE_URL"),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiSynthetic:     getEnvBool("GEMINI_SYNTHETIC", false),
		MaxConcurrentTasks:  getEnvInt("MAX_CONCURRENT_TASKS", 4),
		TaskTimeout:         time.Second * time.Duration(getEnvInt("TASK_TIMEOUT_SECONDS", 180)),
		FilePollAttempts:    getEnvInt("FILE_POLL_ATTEMPTS", 10),
		FilePollInterval:    time.Millisecond * time.Duration(getEnvInt("FILE_POLL_INTERVAL_MS", 2000)),
		StalePendingAfter:   time.Second * time.Duration(getEnvInt("STALE_PENDING_AFTER_SECONDS", 900)),
		SweepInterval:       time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 60)),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:     getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:         splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		GeminiAllowedModels: splitList(os.Getenv("GEMINI_ALLOWED_MODELS")),
	}
	if len(cfg.GeminiAllowedModels) == 0 {
		cfg.GeminiAllowedModels = []string{cfg.GeminiModel}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	key, err := DecodeCredentialKey(os.Getenv("CREDENTIAL_SECRET"))
	if err != nil {
		return nil, err
	}
	cfg.CredentialKey = key

	switch cfg.StorageBackend {
	case StorageBackendFilesystem:
	case StorageBackendSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for supabase storage")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}

	return cfg, nil
}

// ModelAllowed reports whether the requested model is in the configured allowlist.
func (c *Config) ModelAllowed(model string) bool {
	for _, m := range c.GeminiAllowedModels {
		if m == model {
			return true
		}
	}
	return false
}

// DecodeCredentialKey parses the base64 CREDENTIAL_SECRET into a 32-byte AES key.
func DecodeCredentialKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("CREDENTIAL_SECRET is required")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("CREDENTIAL_SECRET must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("CREDENTIAL_SECRET must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
