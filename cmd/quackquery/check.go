package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/guillermoBallester/quackquery/internal/adapter/policy"
	"github.com/guillermoBallester/quackquery/internal/config"
	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/spf13/cobra"
)

func newCheckCmd(overrides func() config.Overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "check [SQL]",
		Short: "Run a statement through the guardrails without executing it",
		Long: `Run a statement through the guardrails and print the SQL that would be
executed. Reads the statement from standard input when no argument is given.
Exits non-zero with the rejection reason when the statement is refused.`,
		Example: `  quackquery check "SELECT * FROM sales"
  echo "SELECT 1; DROP TABLE sales" | quackquery check
  quackquery check --max-limit 50 "SELECT * FROM sales LIMIT 500"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := overrides()
			o.Offline = true
			cfg, err := config.Load(o)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			guardrails, _, err := loadPolicy(cfg)
			if err != nil {
				return err
			}
			gate, err := domain.NewGate(guardrails)
			if err != nil {
				return err
			}

			var sql string
			if len(args) == 1 {
				sql = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading statement: %w", err)
				}
				sql = string(data)
			}

			out, err := gate.ValidateAndRewrite(sql)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newIdentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ident NAME...",
		Short: "Check that names are safe SQL identifiers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, name := range args {
				ident, err := domain.SanitizeIdentifier(name)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), ident)
			}
			return errors.Join(errs...)
		},
	}
}

// loadPolicy returns the effective guardrail policy: the configured one with
// the policy file's overrides applied. The parsed file is nil when none is
// configured.
func loadPolicy(cfg *config.Config) (domain.GuardrailPolicy, *policy.Policy, error) {
	if strings.TrimSpace(cfg.PolicyFile) == "" {
		return cfg.Guardrails, nil, nil
	}
	pol, err := policy.LoadFromFile(cfg.PolicyFile)
	if err != nil {
		return domain.GuardrailPolicy{}, nil, fmt.Errorf("loading policy: %w", err)
	}
	return pol.Guardrails.Apply(cfg.Guardrails), pol, nil
}
