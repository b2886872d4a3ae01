package db

import (
	"fmt"
	"regexp"
	"strings"
)

// writeKeywords matches statement keywords that modify data or schema,
// as whole words, case-insensitively. Column names like "updated_at" do
// not match because underscores extend the word.
var writeKeywords = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE|CREATE|REPLACE|MERGE|GRANT|REVOKE|ATTACH|DETACH|VACUUM|PRAGMA|SET|CALL|EXEC|EXECUTE)\b`)

// identPattern matches a plain unquoted SQL identifier.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EnsureReadOnly rejects any statement that is not a plain read. The model
// is instructed never to emit writes; this guard holds regardless of model
// compliance. Returns ErrUnsafeStatement on rejection.
func EnsureReadOnly(query string) error {
	trimmed := strings.TrimSpace(stripLineComments(query))
	if trimmed == "" {
		return fmt.Errorf("%w: empty statement", ErrUnsafeStatement)
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("%w: statement must start with SELECT or WITH", ErrUnsafeStatement)
	}

	if m := writeKeywords.FindString(trimmed); m != "" {
		return fmt.Errorf("%w: contains %s", ErrUnsafeStatement, strings.ToUpper(m))
	}

	// One statement at a time; a trailing semicolon is tolerated.
	if strings.Contains(strings.TrimSuffix(trimmed, ";"), ";") {
		return fmt.Errorf("%w: multiple statements", ErrUnsafeStatement)
	}

	return nil
}

// ensureIdentifier refuses table names that are not plain identifiers, so
// model-chosen names are never interpolated into SQL unchecked.
func ensureIdentifier(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrBadIdentifier, name)
	}
	return nil
}

func stripLineComments(query string) string {
	var b strings.Builder
	for line := range strings.Lines(query) {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx] + "\n"
		}
		b.WriteString(line)
	}
	return b.String()
}
