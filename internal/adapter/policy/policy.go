package policy

import (
	"github.com/guillermoBallester/quackquery/internal/core/domain"
)

// Policy holds operator-controlled configuration loaded from a YAML file:
// guardrail overrides and a data dictionary for dataset columns.
type Policy struct {
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Context    ContextConfig    `yaml:"context"`
}

// GuardrailsConfig overrides fields of the configured GuardrailPolicy. Unset
// fields keep the configured value.
type GuardrailsConfig struct {
	MaxLimit        *int64                      `yaml:"max_limit"`
	DefaultLimit    *int64                      `yaml:"default_limit"`
	NonLiteralLimit *domain.NonLiteralLimitMode `yaml:"non_literal_limit"`
}

// ContextConfig maps column names to business descriptions. Keys match
// dataset columns case-insensitively.
type ContextConfig struct {
	Columns map[string]string `yaml:"columns"`
}

// Apply returns base with every field set in the policy file replaced.
func (g GuardrailsConfig) Apply(base domain.GuardrailPolicy) domain.GuardrailPolicy {
	if g.MaxLimit != nil {
		base.MaxLimit = *g.MaxLimit
	}
	if g.DefaultLimit != nil {
		base.DefaultLimit = *g.DefaultLimit
	}
	if g.NonLiteralLimit != nil {
		base.NonLiteralLimit = *g.NonLiteralLimit
	}
	return base
}
