package domain

import (
	"errors"
)

var (
	ErrParseFailed      = errors.New("failed to parse SQL")
	ErrMultiStatement   = errors.New("only one SQL statement is allowed")
	ErrNotASelect       = errors.New("only SELECT queries are allowed")
	ErrUnsafeIdentifier = errors.New("unsafe identifier")
	ErrNonLiteralLimit  = errors.New("LIMIT must be a literal non-negative integer")
	ErrNotFound         = errors.New("not found")
)

// ErrorKind names a class of policy rejection.
type ErrorKind string

const (
	KindParseError       ErrorKind = "parse_error"
	KindMultiStatement   ErrorKind = "multi_statement"
	KindNotASelect       ErrorKind = "not_a_select"
	KindUnsafeIdentifier ErrorKind = "unsafe_identifier"
	KindNonLiteralLimit  ErrorKind = "non_literal_limit"
)

// GuardrailError is a deterministic, user-triggerable rejection. It matches
// its kind's sentinel (and the underlying parser error, if any) via errors.Is.
type GuardrailError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *GuardrailError) Error() string {
	msg := e.sentinel().Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *GuardrailError) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *GuardrailError) sentinel() error {
	switch e.Kind {
	case KindParseError:
		return ErrParseFailed
	case KindMultiStatement:
		return ErrMultiStatement
	case KindNotASelect:
		return ErrNotASelect
	case KindUnsafeIdentifier:
		return ErrUnsafeIdentifier
	case KindNonLiteralLimit:
		return ErrNonLiteralLimit
	default:
		return errors.New(string(e.Kind))
	}
}

// RejectionKind reports the kind of a guardrail rejection wrapped anywhere in
// err's chain.
func RejectionKind(err error) (ErrorKind, bool) {
	var gerr *GuardrailError
	if errors.As(err, &gerr) {
		return gerr.Kind, true
	}
	return "", false
}

func parseError(detail string, err error) *GuardrailError {
	return &GuardrailError{Kind: KindParseError, Detail: detail, Err: err}
}
