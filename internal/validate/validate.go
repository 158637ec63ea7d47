// Package validate checks attribute and table names for the control
// characters and injection-style patterns that have no business in a
// DynamoDB-style identifier, before those names ever reach a generated
// expression or a provider's native name validation. Grounded on the
// teacher's pkg/validation/field_validator.go, trimmed to the two checks
// that still have a target in this abstraction: attribute names (every
// condition/update operates on one) and table names (every Service call
// takes one). The teacher's ValidateOperator/ValidateValue/
// ValidateExpression have no surface here — operators are a closed
// condition.LeafKind enum rather than a free-form string, and values are
// typed primitive.Primitive rather than interpolated text, so neither can
// carry an injection payload the way a raw SQL/expression string could.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	maxAttributeNameLength = 255
	maxTableNameLength     = 255
)

var dangerousSubstrings = []string{
	"'", "\"", ";", "--", "/*", "*/",
	"<script", "</script", "eval(", "expression(",
}

var attributeSegmentPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\[[0-9]+\])?$`)
var tableNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// AttributeName checks a single dotted/bracket-indexed attribute path
// segment the way internal/compiler callers split it: each "."-separated
// part must start with a letter or underscore, contain only
// alphanumerics/underscores, and may carry one trailing "[N]" index.
func AttributeName(segment string) error {
	if segment == "" {
		return fmt.Errorf("validate: attribute name must not be empty")
	}
	if len(segment) > maxAttributeNameLength {
		return fmt.Errorf("validate: attribute name %q exceeds maximum length", segment)
	}
	if containsControlCharacter(segment) {
		return fmt.Errorf("validate: attribute name %q contains control characters", segment)
	}
	lower := strings.ToLower(segment)
	if containsAny(lower, dangerousSubstrings) {
		return fmt.Errorf("validate: attribute name %q contains a disallowed character sequence", segment)
	}
	if !attributeSegmentPattern.MatchString(segment) {
		return fmt.Errorf("validate: attribute name %q must start with a letter or underscore and contain only alphanumerics, underscores, or a trailing [index]", segment)
	}
	return nil
}

// TableName checks a table identifier against AWS's DynamoDB table-name
// rules (3-255 chars, alphanumerics/underscore/dot/hyphen) plus the same
// dangerous-substring guard AttributeName applies.
func TableName(name string) error {
	if len(name) < 3 || len(name) > maxTableNameLength {
		return fmt.Errorf("validate: table name %q must be between 3 and %d characters", name, maxTableNameLength)
	}
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("validate: table name %q contains invalid characters", name)
	}
	lower := strings.ToLower(name)
	if containsAny(lower, dangerousSubstrings) {
		return fmt.Errorf("validate: table name %q contains a disallowed character sequence", name)
	}
	return nil
}

func containsControlCharacter(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
