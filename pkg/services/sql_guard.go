package services

import (
	"fmt"
	"strings"

	"github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/models"
)

// DestructiveKeywords are rejected anywhere in a statement, including inside
// identifiers and string literals.
var DestructiveKeywords = []string{"DROP", "DELETE", "UPDATE", "INSERT", "ALTER"}

// Fixed no-op statements returned in place of unusable SQL.
const (
	GenerativeUnavailableSQL = "SELECT 'LLM failed to generate valid SQL. LLM unavailable or returned nothing.' as error_message;"
	GenerativeInvalidSQL     = "SELECT 'LLM failed to generate valid SQL. Please rephrase your question.' as error_message;"
	SafetyViolationSQL       = "SELECT 'Query rejected: only read-only SELECT statements are allowed.' as error_message;"
)

// NoOpStatement returns a statement whose only row reports message.
func NoOpStatement(backend models.BackendID, text string) models.SQLStatement {
	return models.SQLStatement{Backend: backend, Text: text, Step: models.StepNoOp}
}

// CheckSafety rejects statements that contain a destructive keyword or do not
// begin with SELECT or WITH.
func CheckSafety(sql string) error {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	for _, kw := range DestructiveKeywords {
		if strings.Contains(upper, kw) {
			return errors.New(errors.CodeValidationFailed, fmt.Sprintf("statement contains forbidden keyword %s", kw)).WithSQL(sql)
		}
	}
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return errors.New(errors.CodeValidationFailed, "only SELECT or WITH statements are allowed").WithSQL(sql)
	}
	return nil
}

// HasQueryShape reports whether sql, upper-cased with whitespace collapsed,
// begins with SELECT or WITH and contains a FROM clause.
func HasQueryShape(sql string) bool {
	collapsed := " " + strings.Join(strings.Fields(strings.ToUpper(sql)), " ") + " "
	trimmed := strings.TrimSpace(collapsed)
	if !strings.HasPrefix(trimmed, "SELECT") && !strings.HasPrefix(trimmed, "WITH") {
		return false
	}
	return strings.Contains(collapsed, " FROM ")
}

// CleanGeneratedSQL extracts a single statement from raw model output: code
// fences are removed, lines before the first line starting with SELECT or
// WITH are discarded, and the text is cut at the first semicolon with exactly
// one semicolon re-appended. ok is false when the result lacks a
// SELECT/WITH ... FROM shape.
func CleanGeneratedSQL(raw string) (sql string, ok bool) {
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(raw, "```", ""), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	for i, l := range lines {
		upper := strings.ToUpper(l)
		if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
			lines = lines[i:]
			break
		}
	}

	sql = strings.Join(lines, "\n")
	if i := strings.Index(sql, ";"); i >= 0 {
		sql = sql[:i]
	}
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return "", false
	}
	sql += ";"
	return sql, HasQueryShape(sql)
}
