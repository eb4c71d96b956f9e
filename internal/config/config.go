package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string
	UIFile   string

	APIKey         string
	AuthConfigFile string

	KV            KVConfig
	Invites       InvitesConfig
	Observability ObservabilityConfig
}

// ObservabilityConfig covers logging, tracing and metric export.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OtelEndpoint      string
	OtelProtocol      string
	OtelSamplingRatio float64
}

// KVConfig selects and configures the key-value backend.
type KVConfig struct {
	Driver string
	Path   string
	// DSN is the postgres connection string, or the sqlite file when set.
	DSN   string
	Redis RedisConfig
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// InvitesConfig controls invite code generation.
type InvitesConfig struct {
	CodeFormat    string
	SnowflakeNode int64
}

const (
	DriverLevelDB  = "leveldb"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:        getenv("APP_SERVICE", "invites"),
		AppVersion:     getenv("APP_VERSION", "0.1.0"),
		Environment:    getenv("ENVIRONMENT", "development"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8000"),
		UIFile:         getenv("UI_FILE", "./index.html"),
		APIKey:         strings.TrimSpace(getenv("API_KEY", "")),
		AuthConfigFile: strings.TrimSpace(getenv("AUTH_CONFIG_FILE", "")),
		KV: KVConfig{
			Driver: normalizeDriver(getenv("KV_DRIVER", DriverLevelDB)),
			Path:   getenv("KV_PATH", "./data/invites"),
			DSN:    strings.TrimSpace(getenv("KV_DSN", "")),
			Redis: RedisConfig{
				Addr:      getenv("REDIS_ADDR", "localhost:6379"),
				Password:  getenv("REDIS_PASSWORD", ""),
				DB:        int(getenvInt64("REDIS_DB", 0)),
				Namespace: getenv("REDIS_NAMESPACE", "invites"),
			},
		},
		Invites: InvitesConfig{
			CodeFormat:    strings.ToLower(strings.TrimSpace(getenv("CODE_FORMAT", "ulid"))),
			SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),
		},
		Observability: loadObservability(),
	}
}

func loadObservability() ObservabilityConfig {
	protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return ObservabilityConfig{
		LogLevel:          strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:         strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:       getenvBool("OTEL_ENABLED", false),
		OtelEndpoint:      strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		OtelProtocol:      strings.ToLower(strings.TrimSpace(protocol)),
		OtelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
}

// Debug reports whether verbose logging and gin debug mode apply.
func (c Config) Debug() bool {
	if c.Observability.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func normalizeDriver(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case DriverMemory, DriverRedis, DriverSQLite, DriverPostgres:
		return value
	case "mem":
		return DriverMemory
	case "sqlite3":
		return DriverSQLite
	case "postgresql", "pg":
		return DriverPostgres
	default:
		return DriverLevelDB
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return parsed
}
