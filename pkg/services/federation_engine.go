package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/TFMV/fedquery/pkg/models"
	"github.com/TFMV/fedquery/pkg/repositories"
)

// JoinKey is the column shared by both backends.
const JoinKey = "course_id"

// NoMatchingCoursesMessage is reported when the secondary backend yields no
// join keys.
const NoMatchingCoursesMessage = "No matching courses found in the secondary backend"

const federatedCourseColumns = "c.course_id, c.course_name, f.name as faculty_name"

// FederatedResult is the joined answer plus the statements that produced it,
// secondary first.
type FederatedResult struct {
	ResultSet  *models.ResultSet
	Message    string
	Statements []models.SQLStatement
}

// SQL returns the executed statements rendered and joined for display.
func (r *FederatedResult) SQL() string {
	parts := make([]string, len(r.Statements))
	for i, s := range r.Statements {
		parts[i] = s.Render()
	}
	return strings.Join(parts, "\n")
}

// FederationEngine resolves courses on the secondary backend, then fetches
// the students enrolled in them from the primary backend and joins the two in
// memory.
type FederationEngine struct {
	synth Synthesizer
	exec  *sourceExecutor
}

// NewFederationEngine creates a federation engine. sources must hold clients
// for both backends.
func NewFederationEngine(synth Synthesizer, sources repositories.Registry, logger Logger, metrics MetricsCollector) *FederationEngine {
	if logger == nil {
		logger = NopLogger()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &FederationEngine{
		synth: synth,
		exec:  &sourceExecutor{sources: sources, logger: logger, metrics: metrics},
	}
}

// Resolve runs the secondary query, then the primary query filtered by the
// secondary's course ids, and joins them. The first failing backend call ends
// resolution with its error.
func (f *FederationEngine) Resolve(ctx context.Context, q models.Question) (*FederatedResult, error) {
	secondaryStmt := f.secondaryStatement(ctx, q)
	result := &FederatedResult{Statements: []models.SQLStatement{secondaryStmt}}

	courses, err := f.exec.execute(ctx, secondaryStmt)
	if err != nil {
		return nil, err
	}

	keys := JoinKeys(courses.Rows, JoinKey)
	if len(keys) == 0 {
		result.ResultSet = &models.ResultSet{Columns: []string{}, Rows: []models.Row{}}
		result.Message = NoMatchingCoursesMessage
		return result, nil
	}

	primaryStmt := StudentsInCoursesStatement(keys)
	result.Statements = append(result.Statements, primaryStmt)

	students, err := f.exec.execute(ctx, primaryStmt)
	if err != nil {
		return nil, err
	}

	result.ResultSet = Join(students, courses, JoinKey)
	return result, nil
}

// secondaryStatement uses the faculty template only for teaching-relation
// questions. Everything else goes through the synthesizer.
func (f *FederationEngine) secondaryStatement(ctx context.Context, q models.Question) models.SQLStatement {
	if !containsAny(q.Lower(), TeachingPhrases) {
		return f.synth.Synthesize(ctx, q, models.BackendSecondary)
	}
	if filter, ok := ExtractFacultyFilter(q); ok {
		text, args := filter.CoursesSQL(federatedCourseColumns)
		if CheckSafety(text) == nil {
			return models.SQLStatement{Backend: models.BackendSecondary, Text: text, Args: args, Step: models.StepTemplate}
		}
	}
	return f.synth.Synthesize(ctx, q, models.BackendSecondary)
}

// JoinKeys returns the distinct string forms of column across rows, in first
// appearance order. Rows without the column or with a NULL value are skipped.
func JoinKeys(rows []models.Row, column string) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, row := range rows {
		v, ok := row[column]
		if !ok || v == nil {
			continue
		}
		k := keyString(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// StudentsInCoursesStatement selects the students enrolled in any of the
// given courses, one bind argument per course id.
func StudentsInCoursesStatement(courseIDs []string) models.SQLStatement {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(courseIDs)), ", ")
	args := make([]interface{}, len(courseIDs))
	for i, id := range courseIDs {
		args[i] = id
	}

	text := fmt.Sprintf(`SELECT s.student_id, s.name, s.email, s.program, e.course_id
FROM Students s
JOIN Enrollment e ON s.student_id = e.student_id
WHERE e.course_id IN (%s)
ORDER BY s.student_id;`, placeholders)

	return models.SQLStatement{Backend: models.BackendPrimary, Text: text, Args: args, Step: models.StepTemplate}
}

// Join is an inner equi-join on key with primary rows as the outer loop and
// secondary rows as the inner loop. Key values are compared as strings.
// Columns are the primary columns followed by secondary-only columns.
func Join(primary, secondary *models.ResultSet, key string) *models.ResultSet {
	out := &models.ResultSet{Columns: []string{}, Rows: []models.Row{}}
	for _, p := range primary.Rows {
		pk, ok := p[key]
		if !ok {
			continue
		}
		for _, s := range secondary.Rows {
			sk, ok := s[key]
			if !ok || keyString(pk) != keyString(sk) {
				continue
			}
			out.Rows = append(out.Rows, MergeRows(p, s, key))
		}
	}

	if len(out.Rows) > 0 {
		out.Columns = mergeColumns(primary.Columns, secondary.Columns, out.Rows[0])
	}
	return out
}

// MergeRows combines a primary and a secondary row. Primary values win on
// name collisions, except for key which takes the secondary value.
func MergeRows(primary, secondary models.Row, key string) models.Row {
	merged := make(models.Row, len(primary)+len(secondary))
	for k, v := range primary {
		merged[k] = v
	}
	for k, v := range secondary {
		if _, exists := merged[k]; !exists || k == key {
			merged[k] = v
		}
	}
	return merged
}

func mergeColumns(primary, secondary []string, row models.Row) []string {
	seen := make(map[string]struct{}, len(row))
	cols := make([]string, 0, len(row))
	for _, c := range append(append([]string(nil), primary...), secondary...) {
		if _, dup := seen[c]; dup {
			continue
		}
		if _, ok := row[c]; !ok {
			continue
		}
		seen[c] = struct{}{}
		cols = append(cols, c)
	}
	return cols
}

func keyString(v interface{}) string {
	return fmt.Sprint(v)
}
