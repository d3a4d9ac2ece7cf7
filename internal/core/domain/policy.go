package domain

import (
	"fmt"
	"math"
)

// NonLiteralLimitMode decides what the gate does with a LIMIT it cannot read
// as a literal integer (an expression, a parameter, a negative value, or
// FETCH ... WITH TIES).
type NonLiteralLimitMode string

const (
	// NonLiteralLimitReject rejects the statement outright.
	NonLiteralLimitReject NonLiteralLimitMode = "reject"
	// NonLiteralLimitAllow leaves the clause untouched. The row ceiling is
	// then not enforced for that statement.
	NonLiteralLimitAllow NonLiteralLimitMode = "allow"
)

func (m NonLiteralLimitMode) Valid() bool {
	switch m {
	case NonLiteralLimitReject, NonLiteralLimitAllow:
		return true
	}
	return false
}

// GuardrailPolicy bounds the rows a vetted query may return.
type GuardrailPolicy struct {
	MaxLimit        int64
	DefaultLimit    int64
	NonLiteralLimit NonLiteralLimitMode
}

// DefaultGuardrailPolicy is the only place the gate's defaults are spelled out.
func DefaultGuardrailPolicy() GuardrailPolicy {
	return GuardrailPolicy{
		MaxLimit:        1000,
		DefaultLimit:    200,
		NonLiteralLimit: NonLiteralLimitReject,
	}
}

// EffectiveDefault is the limit injected when a query has none.
func (p GuardrailPolicy) EffectiveDefault() int64 {
	return min(p.DefaultLimit, p.MaxLimit)
}

func (p GuardrailPolicy) Validate() error {
	if p.MaxLimit <= 0 {
		return fmt.Errorf("max_limit must be a positive integer, got %d", p.MaxLimit)
	}
	if p.DefaultLimit <= 0 {
		return fmt.Errorf("default_limit must be a positive integer, got %d", p.DefaultLimit)
	}
	if p.MaxLimit == math.MaxInt64 {
		return fmt.Errorf("max_limit must be below %d", int64(math.MaxInt64))
	}
	if !p.NonLiteralLimit.Valid() {
		return fmt.Errorf("non_literal_limit: invalid value %q (allowed: reject, allow)", p.NonLiteralLimit)
	}
	return nil
}
