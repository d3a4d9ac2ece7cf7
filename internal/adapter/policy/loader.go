package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML policy file and returns a validated Policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}

	return &pol, nil
}

func validate(pol *Policy) error {
	g := pol.Guardrails
	if g.MaxLimit != nil && *g.MaxLimit <= 0 {
		return fmt.Errorf("guardrails.max_limit must be positive, got %d", *g.MaxLimit)
	}
	if g.DefaultLimit != nil && *g.DefaultLimit <= 0 {
		return fmt.Errorf("guardrails.default_limit must be positive, got %d", *g.DefaultLimit)
	}
	if g.NonLiteralLimit != nil && !g.NonLiteralLimit.Valid() {
		return fmt.Errorf("guardrails.non_literal_limit: invalid value %q (allowed: reject, allow)", *g.NonLiteralLimit)
	}
	for col := range pol.Context.Columns {
		if col == "" {
			return fmt.Errorf("context.columns contains an empty key")
		}
	}
	return nil
}
