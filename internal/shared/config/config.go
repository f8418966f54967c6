package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string
	DatabaseURL     string
	JWTSecret       string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	QueueURL          string
	VisibilitySeconds int
	WorkerConcurrency int
	MaxReceives       int

	OpenAIAPIKey    string
	OpenAITimeout   time.Duration
	ExplorerModel   string
	TestCaseModel   string
	DocsModel       string
	ScriptsModel    string
	ExplorerRetries int

	BrowserBin        string
	BrowserHeadless   bool
	BrowserNavTimeout time.Duration

	DefaultPlan string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:     dbURL,
		JWTSecret:       getEnv("JWT_SECRET", ""),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		QueueURL:          strings.TrimSpace(getEnv("SQA_SQS_QUEUE_URL", "")),
		VisibilitySeconds: getEnvInt("SQA_SQS_VISIBILITY_TIMEOUT_SECONDS", 10),
		WorkerConcurrency: getEnvInt("SQA_WORKER_CONCURRENCY", 4),
		MaxReceives:       getEnvInt("SQA_MAX_RECEIVES", 4),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAITimeout:   time.Duration(getEnvInt("OPENAI_TIMEOUT_SECONDS", 180)) * time.Second,
		ExplorerModel:   getEnv("SQA_EXPLORER_MODEL", "gpt-4.1-mini"),
		TestCaseModel:   getEnv("SQA_TESTCASE_MODEL", "gpt-4.1-mini"),
		DocsModel:       getEnv("SQA_DOCS_MODEL", "gpt-4.1-mini"),
		ScriptsModel:    getEnv("SQA_SCRIPTS_MODEL", "gpt-4.1-mini"),
		ExplorerRetries: getEnvInt("SQA_EXPLORER_RETRIES", 2),

		BrowserBin:        getEnv("SQA_BROWSER_BIN", ""),
		BrowserHeadless:   getEnvBool("SQA_BROWSER_HEADLESS", true),
		BrowserNavTimeout: time.Duration(getEnvInt("SQA_BROWSER_NAV_TIMEOUT_SECONDS", 45)) * time.Second,

		DefaultPlan: getEnv("SQA_DEFAULT_PLAN", "free"),
	}
}

// IsDevLike reports whether the environment allows in-memory fallbacks.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config env %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
