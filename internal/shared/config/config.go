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
	Port             string
	Env              string
	DatabaseURL      string
	ObjectStoreType  string
	LocalStoreDir    string
	AWSRegion        string
	S3Bucket         string
	S3Prefix         string
	TempDir          string
	LLMProvider      string
	LLMModel         string
	OpenAIAPIKey     string
	KeywordRulesPath string
	PrimaryScorerURL string
	GazeScorerURL    string
	ScorerAPIKey     string
	SQSQueueURL      string
	ScanOnStartup    bool
	InterJobDelay    time.Duration
	BatchItemDelay   time.Duration
	ScanMaxAttempts  int

	CORSAllowOrigins  []string
	TriggerRatePerSec float64
	TriggerBurst      int
	ScorerTimeout     time.Duration
	SQSVisibility     time.Duration
	ShutdownTimeout   time.Duration
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
		Port:             getEnv("PORT", "8080"),
		Env:              env,
		DatabaseURL:      dbURL,
		ObjectStoreType:  normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:    getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:        getEnv("AWS_REGION", ""),
		S3Bucket:         getEnv("S3_BUCKET", "skala25a"),
		S3Prefix:         getEnv("S3_PREFIX", ""),
		TempDir:          getEnv("TEMP_DIR", os.TempDir()),
		LLMProvider:      normalizeProvider(getEnv("LLM_PROVIDER", "keywords")),
		LLMModel:         getEnv("LLM_MODEL", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		KeywordRulesPath: getEnv("KEYWORD_RULES_PATH", ""),
		PrimaryScorerURL: getEnv("SCORING_PRIMARY_URL", ""),
		GazeScorerURL:    getEnv("SCORING_SECONDARY_URL", ""),
		ScorerAPIKey:     getEnv("SCORING_API_KEY", ""),
		SQSQueueURL:      strings.TrimSpace(getEnv("RA_SQS_QUEUE_URL", "")),
		ScanOnStartup:    getEnvBool("RA_SCAN_ON_STARTUP", true),
		InterJobDelay:    getEnvDuration("RA_SCAN_INTER_JOB_DELAY", 2*time.Second),
		BatchItemDelay:   getEnvDuration("RA_BATCH_ITEM_DELAY", time.Second),
		ScanMaxAttempts:  atLeast(getEnvInt("RA_SCAN_MAX_ATTEMPTS", 3), 1),

		CORSAllowOrigins:  splitList(getEnv("CORS_ALLOW_ORIGINS", "")),
		TriggerRatePerSec: getEnvFloat("RA_TRIGGER_RATE_PER_SEC", 1),
		TriggerBurst:      getEnvInt("RA_TRIGGER_BURST", 5),
		ScorerTimeout:     getEnvDuration("SCORING_TIMEOUT", 0),
		SQSVisibility:     getEnvDuration("RA_SQS_VISIBILITY_TIMEOUT", 20*time.Minute),
		ShutdownTimeout:   getEnvDuration("RA_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
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
		log.Printf("config: %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || val < 0 {
		log.Printf("config: %s invalid number %q, using %g", key, raw, def)
		return def
	}
	return val
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config: %s invalid bool %q, using %t", key, raw, def)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val < 0 {
		log.Printf("config: %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
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

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	default:
		return "keywords"
	}
}

func atLeast(v, min int) int {
	if v < min {
		return min
	}
	return v
}
