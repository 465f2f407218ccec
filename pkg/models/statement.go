package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SynthesisStep records which path produced a statement.
type SynthesisStep string

const (
	StepPattern    SynthesisStep = "pattern"
	StepGenerative SynthesisStep = "generative"
	StepTemplate   SynthesisStep = "template"
	StepNoOp       SynthesisStep = "noop"
)

// SQLStatement is a single semicolon-terminated read-only statement bound to
// the backend it targets. Text may contain ? placeholders that are bound
// from Args.
type SQLStatement struct {
	Backend BackendID     `json:"backend"`
	Text    string        `json:"text"`
	Args    []interface{} `json:"args,omitempty"`
	Step    SynthesisStep `json:"step"`
}

// Render returns Text with every placeholder outside string literals replaced
// by the matching argument as a SQL literal. It is used for display and for
// backends whose wire protocol carries no parameters.
func (s SQLStatement) Render() string {
	if len(s.Args) == 0 {
		return s.Text
	}

	var b strings.Builder
	b.Grow(len(s.Text) + 16*len(s.Args))

	next := 0
	inQuote := false
	for _, r := range s.Text {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote && next < len(s.Args):
			b.WriteString(SQLLiteral(s.Args[next]))
			next++
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// String implements fmt.Stringer.
func (s SQLStatement) String() string {
	return s.Render()
}

// SQLLiteral formats a value as a SQL literal, doubling single quotes in strings.
func SQLLiteral(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(val), "'", "''") + "'"
	}
}
