package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/guillermoBallester/quackquery/internal/adapter/mcp"
	"github.com/guillermoBallester/quackquery/internal/adapter/policy"
	"github.com/guillermoBallester/quackquery/internal/adapter/postgres"
	"github.com/guillermoBallester/quackquery/internal/adapter/sqlite"
	"github.com/guillermoBallester/quackquery/internal/audit"
	"github.com/guillermoBallester/quackquery/internal/config"
	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/guillermoBallester/quackquery/internal/core/port"
	"github.com/guillermoBallester/quackquery/internal/core/service"
	"github.com/guillermoBallester/quackquery/internal/storage"
	"github.com/guillermoBallester/quackquery/internal/telemetry"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/guillermoBallester/quackquery"

func newServeCmd(overrides func() config.Overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(overrides())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	guardrails, pol, err := loadPolicy(cfg)
	if err != nil {
		return err
	}
	gate, err := domain.NewGate(guardrails)
	if err != nil {
		return err
	}

	logger.Info("starting quackquery",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("database", redactDSN(cfg.DatabaseURL)),
		slog.Bool("read_only", cfg.ReadOnly),
		slog.Int64("max_limit", guardrails.MaxLimit),
		slog.Int64("default_limit", guardrails.EffectiveDefault()),
		slog.String("non_literal_limit", string(guardrails.NonLiteralLimit)),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.String("transport", cfg.Transport),
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var (
		tracer trace.Tracer
		inst   port.Instrumentation
	)
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, telemetry.Settings{
			ServiceName: "quackquery",
			Version:     version,
			Guardrails:  guardrails,
		})
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logger.Error("telemetry shutdown", slog.String("error.message", err.Error()))
			}
		}()
		tracer = otel.Tracer(instrumentationName)
		inst = telemetry.NewInstruments()
		logger.Info("telemetry enabled")
	} else {
		tracer = telemetry.NoopTracer()
		inst = telemetry.NoopInstruments()
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DatabaseURL:     cfg.DatabaseURL,
		MaxConns:        cfg.PoolMaxConns,
		MinConns:        cfg.PoolMinConns,
		MaxConnLifetime: cfg.PoolMaxConnLifetime,
		ApplicationName: "quackquery",
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	logger.Info("database pool connected", slog.String("db.system", "postgresql"))

	store, err := sqlite.Open(ctx, cfg.MetaDBPath, logger)
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	defer func() { _ = store.Close() }()

	uploads, err := storage.NewUploadDir(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("preparing upload directory: %w", err)
	}

	// Adapters
	var ingestor port.DatasetIngestor = postgres.NewIngestor(pool)
	if pol != nil {
		ingestor = policy.NewPolicyIngestor(ingestor, pol)
		logger.Info("policy loaded", slog.String("file", cfg.PolicyFile))
	}

	var executor port.QueryExecutor = postgres.NewExecutor(pool, postgres.ExecutorConfig{
		ReadOnly:     cfg.ReadOnly,
		QueryTimeout: cfg.QueryTimeout,
		MaxRows:      guardrails.MaxLimit,
	})
	if cfg.ExplainOnly {
		executor = postgres.NewExplainOnlyExecutor(executor)
		logger.Info("explain-only mode: queries return plans, not rows")
	}

	auditor := audit.MultiAuditor{store}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() { _ = fa.Close() }()
		auditor = append(auditor, fa)
	}

	// Services
	querySvc := service.NewQueryService(gate, executor, store, ingestor, auditor, logger, tracer, inst)
	datasetSvc := service.NewDatasetService(store, ingestor, uploads, logger)

	mcpServer := mcp.NewServer(version, datasetSvc, querySvc, logger, tracer, inst)

	if cfg.Transport == "http" {
		if err := serveHTTP(ctx, mcpServer, cfg.HTTPAddr, cfg.HTTPBearerToken, logger); err != nil {
			return err
		}
	} else {
		logger.Info("serving MCP over stdio")
		if err := mcpserver.NewStdioServer(mcpServer).Listen(ctx, os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("stdio server: %w", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// redactDSN masks the password in a connection URL for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
