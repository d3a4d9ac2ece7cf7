package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// identifierPattern is the whole grammar for names spliced into SQL text.
// Go's $ matches only at end of input, so a trailing newline is rejected.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SanitizeIdentifier returns name unchanged if it is a bare SQL identifier.
// It is the only sanctioned way to splice a caller-controlled string into
// SQL structure (CREATE TABLE <name>, DESCRIBE <name>) instead of binding it
// as a parameter.
func SanitizeIdentifier(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", &GuardrailError{Kind: KindUnsafeIdentifier, Detail: fmt.Sprintf("%q", name)}
	}
	return name, nil
}

// NewTableName returns "<prefix>_<10 hex chars>" after running it through
// SanitizeIdentifier.
func NewTableName(prefix string) (string, error) {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return SanitizeIdentifier(prefix + "_" + suffix)
}
