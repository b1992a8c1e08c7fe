package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
)

type App struct {
	Host            string
	Port            string
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string

	STTProvider   string
	STTLanguage   string
	STTTimeout    time.Duration
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	AdminPassword      string
	AllowedPasswords   []string
	AdminSessionSecret string
	AdminSessionTTL    time.Duration

	AuditDir       string
	ArtifactDir    string
	MaxUploadBytes int64

	ArtifactSweepInterval time.Duration
	ArtifactMaxAge        time.Duration

	CORSAllowedOrigins []string

	AuditRedisURL      string
	AuditRedisStream   string
	AuditRedisMaxLen   int64
	AuditArchiveBucket string
}

// Load reads the process environment. Call godotenv.Load first to pick up a
// local .env file.
func Load() App {
	allowed := splitList(os.Getenv("ALLOWED_PASSWORDS"))
	if legacy := strings.TrimSpace(os.Getenv("APP_PASSWORD")); legacy != "" {
		allowed = append(allowed, legacy)
	}

	return App{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "5000"),
		ShutdownTimeout: getSeconds("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		STTProvider:   strings.ToLower(getEnv("STT_PROVIDER", ProviderOpenAI)),
		STTLanguage:   getEnv("STT_LANGUAGE", "zh"),
		STTTimeout:    getSeconds("STT_TIMEOUT", 5*time.Minute),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "whisper-1"),

		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
		AllowedPasswords:   allowed,
		AdminSessionSecret: os.Getenv("ADMIN_SESSION_SECRET"),
		AdminSessionTTL:    getSeconds("ADMIN_SESSION_TTL", 15*time.Minute),

		AuditDir:       getEnv("AUDIT_DIR", "./data"),
		ArtifactDir:    os.Getenv("ARTIFACT_DIR"),
		MaxUploadBytes: getInt("MAX_UPLOAD_MB", 25) << 20,

		ArtifactSweepInterval: getSeconds("ARTIFACT_SWEEP_INTERVAL", 10*time.Minute),
		ArtifactMaxAge:        getSeconds("ARTIFACT_MAX_AGE", time.Hour),

		CORSAllowedOrigins: splitListOr(os.Getenv("CORS_ALLOWED_ORIGINS"), []string{"*"}),

		AuditRedisURL:      os.Getenv("AUDIT_REDIS_URL"),
		AuditRedisStream:   getEnv("AUDIT_REDIS_STREAM", "audit:entries"),
		AuditRedisMaxLen:   getInt("AUDIT_REDIS_MAXLEN", 10000),
		AuditArchiveBucket: os.Getenv("AUDIT_ARCHIVE_BUCKET"),
	}
}

func (c App) Addr() string { return net.JoinHostPort(c.Host, c.Port) }

func (c App) Validate() error {
	switch c.STTProvider {
	case ProviderOpenAI, ProviderGoogle:
	default:
		return fmt.Errorf("STT_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderGoogle, c.STTProvider)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.AuditDir == "" {
		return fmt.Errorf("AUDIT_DIR must not be empty")
	}
	return nil
}

// Warnings lists settings that leave part of the service unusable.
func (c App) Warnings() []string {
	var out []string
	if c.STTProvider == ProviderOpenAI && c.OpenAIAPIKey == "" {
		out = append(out, "OPENAI_API_KEY is not set; transcription requests will fail")
	}
	if len(c.AllowedPasswords) == 0 {
		out = append(out, "ALLOWED_PASSWORDS is empty; every /transcribe request will be rejected")
	}
	if c.AdminPassword == "" {
		out = append(out, "ADMIN_PASSWORD is not set; the admin report is disabled")
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getSeconds(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getInt(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitListOr(v string, fallback []string) []string {
	if out := splitList(v); len(out) > 0 {
		return out
	}
	return fallback
}
