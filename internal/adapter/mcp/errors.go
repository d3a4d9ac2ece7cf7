package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/guillermoBallester/quackquery/internal/core/service"
	"github.com/jackc/pgx/v5/pgconn"
)

// sanitizeError turns err into a message safe to show the MCP client.
// Guardrail rejections and user mistakes pass through so the caller can fix
// the request; everything else is logged and replaced by a generic message.
func sanitizeError(logger *slog.Logger, err error, op string) string {
	var gErr *domain.GuardrailError
	if errors.As(err, &gErr) {
		return gErr.Error()
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Sprintf("%s: not found", op)
	case errors.Is(err, service.ErrMissingFilename), errors.Is(err, service.ErrNotCSV):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "query timed out"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "57014" {
			return "query timed out"
		}
		// Class 42: syntax error or access rule violation in the user's SQL.
		if strings.HasPrefix(pgErr.Code, "42") {
			return fmt.Sprintf("%s failed: %s", op, pgErr.Message)
		}
	}

	logger.Error("tool error",
		slog.String("quackquery.operation", op),
		slog.String("error.message", err.Error()),
	)
	return fmt.Sprintf("internal error during %s; check server logs", op)
}
