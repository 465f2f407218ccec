package models

import (
	"github.com/TFMV/fedquery/pkg/errors"
)

// Row maps column names to scalar values.
type Row map[string]interface{}

// ResultSet is an ordered column list plus ordered rows. It is not mutated
// after construction.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewResultSet copies columns and rows into a new ResultSet.
func NewResultSet(columns []string, rows []Row) *ResultSet {
	cols := make([]string, len(columns))
	copy(cols, columns)

	out := make([]Row, len(rows))
	for i, row := range rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[i] = cp
	}
	return &ResultSet{Columns: cols, Rows: out}
}

// Len returns the number of rows.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Outcome is the final answer to a question as returned to the caller and as
// stored in the cache. Failures are outcomes too.
type Outcome struct {
	RequestID string               `json:"request_id,omitempty"`
	Kind      PlanKind             `json:"type"`
	Backends  []BackendID          `json:"sources,omitempty"`
	Success   bool                 `json:"success"`
	Columns   []string             `json:"columns,omitempty"`
	Rows      []Row                `json:"rows,omitempty"`
	Message   string               `json:"message,omitempty"`
	Answer    string               `json:"answer,omitempty"`
	SQL       string               `json:"sql,omitempty"`
	Federated bool                 `json:"federated,omitempty"`
	Error     *errors.BackendError `json:"error,omitempty"`
}

// NewResultOutcome wraps a successful result set.
func NewResultOutcome(kind PlanKind, rs *ResultSet, sql string) *Outcome {
	o := &Outcome{Kind: kind, Success: true, SQL: sql}
	if rs != nil {
		o.Columns = rs.Columns
		o.Rows = rs.Rows
	}
	return o
}

// NewFailureOutcome wraps a structured failure.
func NewFailureOutcome(kind PlanKind, err *errors.BackendError) *Outcome {
	o := &Outcome{Kind: kind, Success: false, Error: err}
	if err != nil {
		o.SQL = err.SQL
	}
	return o
}

// NewAnswerOutcome wraps a narrative answer from the generative service.
func NewAnswerOutcome(answer string) *Outcome {
	return &Outcome{Kind: PlanGenerative, Success: true, Answer: answer}
}

// ResultSet returns the tabular part of the outcome.
func (o *Outcome) ResultSet() *ResultSet {
	return &ResultSet{Columns: o.Columns, Rows: o.Rows}
}
