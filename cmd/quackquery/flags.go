package main

import (
	"time"

	"github.com/guillermoBallester/quackquery/internal/config"
	"github.com/spf13/pflag"
)

// bindFlags registers the configuration flags on fs and returns a function
// that builds Overrides from the flags the user actually set.
func bindFlags(fs *pflag.FlagSet) func() config.Overrides {
	envFile := fs.String("env-file", "", "dotenv file to load (default: .env when present)")
	databaseURL := fs.String("database-url", "", "PostgreSQL connection string (env: DATABASE_URL)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error (env: LOG_LEVEL)")
	queryTimeout := fs.Duration("query-timeout", 10*time.Second, "per-query timeout (env: QUERY_TIMEOUT)")
	maxLimit := fs.Int64("max-limit", 0, "row ceiling every query is capped at (env: MAX_LIMIT)")
	defaultLimit := fs.Int64("default-limit", 0, "LIMIT injected when a query has none (env: DEFAULT_LIMIT)")
	nonLiteral := fs.String("non-literal-limit", "", "reject or allow a LIMIT that is not an integer literal (env: NON_LITERAL_LIMIT)")
	policyFile := fs.String("policy-file", "", "policy YAML with guardrail overrides and column descriptions (env: POLICY_FILE)")
	metaDB := fs.String("meta-db", "", "SQLite file for datasets and query history (env: META_DB_PATH)")
	uploadDir := fs.String("upload-dir", "", "directory for uploaded CSV files (env: UPLOAD_DIR)")
	transport := fs.String("transport", "stdio", "MCP transport: stdio or http (env: TRANSPORT)")
	httpAddr := fs.String("http-addr", ":8080", "listen address for the http transport (env: HTTP_ADDR)")
	bearer := fs.String("http-bearer-token", "", "bearer token required by the http transport (env: HTTP_BEARER_TOKEN)")
	auditLog := fs.String("audit-log", "", "append an NDJSON audit trail to this file (env: AUDIT_LOG)")
	otelEnabled := fs.Bool("otel", false, "enable OpenTelemetry tracing and metrics (env: OTEL_ENABLED)")
	explainOnly := fs.Bool("explain-only", false, "return query plans instead of rows (env: EXPLAIN_ONLY)")
	poolMax := fs.Int32("pool-max-conns", 5, "maximum pool connections (env: POOL_MAX_CONNS)")
	poolMin := fs.Int32("pool-min-conns", 1, "minimum idle pool connections (env: POOL_MIN_CONNS)")
	poolLifetime := fs.Duration("pool-max-conn-lifetime", 30*time.Minute, "maximum connection lifetime (env: POOL_MAX_CONN_LIFETIME)")

	return func() config.Overrides {
		o := config.Overrides{
			OTelEnabled: *otelEnabled,
			ExplainOnly: *explainOnly,
		}
		if fs.Changed("env-file") {
			o.EnvFile = envFile
		}
		if fs.Changed("database-url") {
			o.DatabaseURL = databaseURL
		}
		if fs.Changed("log-level") {
			o.LogLevel = logLevel
		}
		if fs.Changed("query-timeout") {
			o.QueryTimeout = queryTimeout
		}
		if fs.Changed("max-limit") {
			o.MaxLimit = maxLimit
		}
		if fs.Changed("default-limit") {
			o.DefaultLimit = defaultLimit
		}
		if fs.Changed("non-literal-limit") {
			o.NonLiteralLimit = nonLiteral
		}
		if fs.Changed("policy-file") {
			o.PolicyFile = policyFile
		}
		if fs.Changed("meta-db") {
			o.MetaDBPath = metaDB
		}
		if fs.Changed("upload-dir") {
			o.UploadDir = uploadDir
		}
		if fs.Changed("transport") {
			o.Transport = transport
		}
		if fs.Changed("http-addr") {
			o.HTTPAddr = httpAddr
		}
		if fs.Changed("http-bearer-token") {
			o.HTTPBearerToken = bearer
		}
		if fs.Changed("audit-log") {
			o.AuditLog = auditLog
		}
		if fs.Changed("pool-max-conns") {
			o.PoolMaxConns = poolMax
		}
		if fs.Changed("pool-min-conns") {
			o.PoolMinConns = poolMin
		}
		if fs.Changed("pool-max-conn-lifetime") {
			o.PoolMaxConnLifetime = poolLifetime
		}
		return o
	}
}

// parseFlags parses args against the configuration flags.
func parseFlags(args []string) (config.Overrides, error) {
	fs := pflag.NewFlagSet("quackquery", pflag.ContinueOnError)
	overrides := bindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}
	return overrides(), nil
}
