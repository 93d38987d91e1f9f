package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every tunable recognised by the pipeline. Values come from
// the environment (optionally loaded from a .env file), with defaults
// applied where the operator doesn't override them.
type Config struct {
	DatabaseURL    string
	DBMaxOpenConns int
	RedisURL       string
	QueueKey       string

	BlobBackend string
	BlobRoot    string

	HTTPPort string

	MaxArchiveDepth     int
	SupportedExtensions []string
	MaxFileSizeBytes    int64

	MaxRetryAttempts  int
	RetryBaseDelayMs  int
	RetryMaxDelayMs   int
	WorkerConcurrency int

	ReapIntervalMs  int
	QuiescentIdleMs int
	JobTimeoutMs    int

	CompletionsAPIKey string
	CompletionsAPIURL string
	CompletionsModel  string

	LogFormat string
	LogLevel  string
	LogOutput string

	ComponentLogLevels map[string]string
}

// defaultSupportedExtensions is the §4.4 default set: common office/tender
// formats plus the GAEB family used by German construction tenders.
var defaultSupportedExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".csv", ".txt",
	".x83", ".x84", ".x85", ".x86", ".x89",
	".d83", ".d84", ".d85", ".d86", ".d89",
	".p83", ".p84", ".p85", ".p86", ".p89",
	".gaeb",
}

func getEnv(key, defaultValue string, printEnv bool) string {
	value := os.Getenv(key)
	if printEnv {
		if value == "" {
			log.Printf("ENV: %s = %s (default)", key, defaultValue)
		} else {
			displayValue := value
			if isSensitiveKey(key) {
				displayValue = maskSensitiveValue(value)
			}
			log.Printf("ENV: %s = %s", key, displayValue)
		}
	}
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int, printEnv bool) int {
	raw := getEnv(key, strconv.Itoa(defaultValue), printEnv)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvInt64(key string, defaultValue int64, printEnv bool) int64 {
	raw := getEnv(key, strconv.FormatInt(defaultValue, 10), printEnv)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

// isSensitiveKey determines if an environment variable contains sensitive
// information that should be masked rather than logged verbatim.
func isSensitiveKey(key string) bool {
	sensitiveKeys := []string{"API_KEY", "TOKEN", "PASSWORD", "SECRET", "KEY", "AUTH", "URL"}
	for _, sensitive := range sensitiveKeys {
		if len(key) >= len(sensitive) && key[len(key)-len(sensitive):] == sensitive {
			return true
		}
	}
	return false
}

// maskSensitiveValue masks sensitive values for logging.
func maskSensitiveValue(value string) string {
	l := len(value)
	if l <= 8 {
		return "***masked***"
	}
	if l <= 12 {
		return value[:1] + "***masked***" + value[l-1:]
	}
	return value[:4] + "***masked***" + value[l-4:]
}

func getEnvOrPanic(key string, printEnv bool) string {
	value := getEnv(key, "", printEnv)
	if value == "" {
		panic(fmt.Sprintf("environment variable %s is not set", key))
	}
	return value
}

// LoadConfigWithAutoDetection loads configuration with automatic printEnv
// detection, driven by DEBUG_CONFIG_PRINT=true.
func LoadConfigWithAutoDetection() (*Config, error) {
	printEnv := os.Getenv("DEBUG_CONFIG_PRINT") == "true"
	return LoadConfig(printEnv)
}

func LoadConfig(printEnv bool) (*Config, error) {
	_ = godotenv.Load()

	if printEnv {
		log.Printf("loading configuration with environment variable debugging enabled")
	}

	conf := &Config{
		DatabaseURL:    getEnvOrPanic("DATABASE_URL", printEnv),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25, printEnv),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0", printEnv),
		QueueKey:       getEnv("QUEUE_KEY", "tender", printEnv),

		BlobBackend: getEnv("BLOB_BACKEND", "filesystem", printEnv),
		BlobRoot:    getEnv("BLOB_ROOT", "./output/blob", printEnv),

		HTTPPort: getEnv("HTTP_PORT", "8080", printEnv),

		MaxArchiveDepth:     getEnvInt("MAX_ARCHIVE_DEPTH", 3, printEnv),
		SupportedExtensions: parseExtensions(getEnv("SUPPORTED_EXTENSIONS", "", printEnv)),
		MaxFileSizeBytes:    getEnvInt64("MAX_FILE_SIZE_BYTES", 100_000_000, printEnv),

		MaxRetryAttempts:  getEnvInt("MAX_RETRY_ATTEMPTS", 3, printEnv),
		RetryBaseDelayMs:  getEnvInt("RETRY_BASE_DELAY_MS", 2000, printEnv),
		RetryMaxDelayMs:   getEnvInt("RETRY_MAX_DELAY_MS", 60000, printEnv),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 3, printEnv),

		ReapIntervalMs:  getEnvInt("REAP_INTERVAL_MS", 30000, printEnv),
		QuiescentIdleMs: getEnvInt("QUIESCENT_IDLE_MS", 10000, printEnv),
		JobTimeoutMs:    getEnvInt("JOB_TIMEOUT_MS", 1_800_000, printEnv),

		CompletionsAPIKey: getEnv("COMPLETIONS_API_KEY", "", printEnv),
		CompletionsAPIURL: getEnv("COMPLETIONS_API_URL", "https://api.openai.com/v1", printEnv),
		CompletionsModel:  getEnv("COMPLETIONS_MODEL", "gpt-4o-mini", printEnv),

		LogFormat: getEnv("LOG_FORMAT", "text", printEnv),
		LogLevel:  getEnv("LOG_LEVEL", "info", printEnv),
		LogOutput: getEnv("LOG_OUTPUT", "stdout", printEnv),

		ComponentLogLevels: make(map[string]string),
	}

	if len(conf.SupportedExtensions) == 0 {
		conf.SupportedExtensions = defaultSupportedExtensions
	}

	conf.LoadComponentLogLevels()

	return conf, nil
}

func parseExtensions(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) LoadComponentLogLevels() {
	if c.ComponentLogLevels == nil {
		c.ComponentLogLevels = make(map[string]string)
	}

	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "LOG_LEVEL_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				componentID := strings.TrimPrefix(parts[0], "LOG_LEVEL_")
				c.ComponentLogLevels[componentID] = parts[1]
			}
		}
	}
}

func (c *Config) GetComponentLogLevel(componentID string) string {
	if level, exists := c.ComponentLogLevels[componentID]; exists {
		return level
	}
	return "info"
}

func (c *Config) SetComponentLogLevel(componentID string, level string) {
	if c.ComponentLogLevels == nil {
		c.ComponentLogLevels = make(map[string]string)
	}
	c.ComponentLogLevels[componentID] = level
}
