package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/joho/godotenv"
)

// defaultEnvFile is loaded when present and no --env-file is given.
const defaultEnvFile = ".env"

type Config struct {
	// Execution engine.
	DatabaseURL  string
	ReadOnly     bool
	QueryTimeout time.Duration

	// Guardrails applied to every statement before execution.
	Guardrails domain.GuardrailPolicy
	PolicyFile string // optional path to policy YAML

	// Local state.
	MetaDBPath string // SQLite file for datasets and query history
	UploadDir  string // where uploaded CSV files are kept

	// Logging.
	LogLevel slog.Level

	// Transport.
	Transport       string // "stdio" (default) or "http"
	HTTPAddr        string // listen address for HTTP transport (default ":8080")
	HTTPBearerToken string // required when transport=http

	// Connection pool.
	PoolMaxConns        int32         // default: 5
	PoolMinConns        int32         // default: 1
	PoolMaxConnLifetime time.Duration // default: 30m

	// Observability.
	OTelEnabled bool // enable OpenTelemetry tracing and metrics

	ExplainOnly bool
	AuditLog    string // path to NDJSON audit log file
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	EnvFile         *string
	DatabaseURL     *string
	LogLevel        *string
	QueryTimeout    *time.Duration
	MaxLimit        *int64
	DefaultLimit    *int64
	NonLiteralLimit *string
	PolicyFile      *string
	MetaDBPath      *string
	UploadDir       *string
	Transport       *string
	HTTPAddr        *string
	HTTPBearerToken *string
	AuditLog        *string
	OTelEnabled     bool
	ExplainOnly     bool

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration

	// Offline skips the DATABASE_URL requirement, for commands that never
	// connect.
	Offline bool
}

// Load builds a Config from defaults, an optional .env file, environment
// variables and CLI overrides, in that order, then validates the result.
func Load(overrides Overrides) (*Config, error) {
	if err := loadEnvFile(overrides.EnvFile); err != nil {
		return nil, err
	}

	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg, overrides.Offline); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile populates unset environment variables from a dotenv file.
// An explicit path must exist; the default .env is optional.
func loadEnvFile(path *string) error {
	if path != nil {
		if err := godotenv.Load(*path); err != nil {
			return fmt.Errorf("loading env file %q: %w", *path, err)
		}
		return nil
	}
	if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading env file %q: %w", defaultEnvFile, err)
	}
	return nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		ReadOnly:            true,
		QueryTimeout:        10 * time.Second,
		Guardrails:          domain.DefaultGuardrailPolicy(),
		MetaDBPath:          "quackquery.db",
		UploadDir:           "uploads",
		LogLevel:            slog.LevelInfo,
		Transport:           "stdio",
		HTTPAddr:            ":8080",
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if v := os.Getenv("READ_ONLY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid READ_ONLY value %q: %w", v, err)
		}
		cfg.ReadOnly = b
	}

	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid QUERY_TIMEOUT value %q: %w", v, err)
		}
		cfg.QueryTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	if err := loadGuardrailEnvVars(cfg); err != nil {
		return err
	}

	cfg.PolicyFile = os.Getenv("POLICY_FILE")

	if v := os.Getenv("META_DB_PATH"); v != "" {
		cfg.MetaDBPath = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}

	if v := os.Getenv("TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.HTTPBearerToken = os.Getenv("HTTP_BEARER_TOKEN")

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	if v := os.Getenv("EXPLAIN_ONLY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid EXPLAIN_ONLY value %q: %w", v, err)
		}
		cfg.ExplainOnly = b
	}
	cfg.AuditLog = os.Getenv("AUDIT_LOG")

	if err := loadPoolEnvVars(cfg); err != nil {
		return err
	}

	return nil
}

// loadGuardrailEnvVars reads the LIMIT policy environment variables.
func loadGuardrailEnvVars(cfg *Config) error {
	if v := os.Getenv("MAX_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_LIMIT value %q: must be a positive integer", v)
		}
		cfg.Guardrails.MaxLimit = n
	}
	if v := os.Getenv("DEFAULT_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid DEFAULT_LIMIT value %q: must be a positive integer", v)
		}
		cfg.Guardrails.DefaultLimit = n
	}
	if v := os.Getenv("NON_LITERAL_LIMIT"); v != "" {
		mode := domain.NonLiteralLimitMode(strings.ToLower(strings.TrimSpace(v)))
		if !mode.Valid() {
			return fmt.Errorf("invalid NON_LITERAL_LIMIT value %q: must be \"reject\" or \"allow\"", v)
		}
		cfg.Guardrails.NonLiteralLimit = mode
	}
	return nil
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	if v := os.Getenv("POOL_MAX_CONN_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POOL_MAX_CONN_LIFETIME value %q: %w", v, err)
		}
		cfg.PoolMaxConnLifetime = d
	}
	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if err := applyGuardrailOverrides(cfg, o); err != nil {
		return err
	}
	if o.PolicyFile != nil {
		cfg.PolicyFile = *o.PolicyFile
	}
	if o.MetaDBPath != nil {
		cfg.MetaDBPath = *o.MetaDBPath
	}
	if o.UploadDir != nil {
		cfg.UploadDir = *o.UploadDir
	}
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}
	if o.HTTPAddr != nil {
		cfg.HTTPAddr = *o.HTTPAddr
	}
	if o.HTTPBearerToken != nil {
		cfg.HTTPBearerToken = *o.HTTPBearerToken
	}
	if o.AuditLog != nil {
		cfg.AuditLog = *o.AuditLog
	}

	if err := applyPoolOverrides(cfg, o); err != nil {
		return err
	}

	cfg.ExplainOnly = cfg.ExplainOnly || o.ExplainOnly
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// applyGuardrailOverrides applies the --max-limit, --default-limit and
// --non-literal-limit flags.
func applyGuardrailOverrides(cfg *Config, o Overrides) error {
	if o.MaxLimit != nil {
		if *o.MaxLimit <= 0 {
			return fmt.Errorf("invalid --max-limit value: must be a positive integer")
		}
		cfg.Guardrails.MaxLimit = *o.MaxLimit
	}
	if o.DefaultLimit != nil {
		if *o.DefaultLimit <= 0 {
			return fmt.Errorf("invalid --default-limit value: must be a positive integer")
		}
		cfg.Guardrails.DefaultLimit = *o.DefaultLimit
	}
	if o.NonLiteralLimit != nil {
		mode := domain.NonLiteralLimitMode(strings.ToLower(strings.TrimSpace(*o.NonLiteralLimit)))
		if !mode.Valid() {
			return fmt.Errorf("invalid --non-literal-limit value %q: must be \"reject\" or \"allow\"", *o.NonLiteralLimit)
		}
		cfg.Guardrails.NonLiteralLimit = mode
	}
	return nil
}

// applyPoolOverrides applies connection pool CLI flag overrides.
func applyPoolOverrides(cfg *Config, o Overrides) error {
	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}
	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config, offline bool) error {
	if cfg.DatabaseURL == "" && !offline {
		return fmt.Errorf("DATABASE_URL is required (set via env var or --database-url flag)")
	}

	if err := cfg.Guardrails.Validate(); err != nil {
		return fmt.Errorf("invalid guardrail settings: %w", err)
	}

	if cfg.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive, got %s", cfg.QueryTimeout)
	}

	switch cfg.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"stdio\" or \"http\"", cfg.Transport)
	}

	if cfg.Transport == "http" && cfg.HTTPBearerToken == "" {
		return fmt.Errorf("HTTP_BEARER_TOKEN is required when transport is \"http\" (set via env var or --http-bearer-token flag)")
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
