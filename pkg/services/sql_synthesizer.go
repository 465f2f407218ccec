package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/TFMV/fedquery/pkg/generative"
	"github.com/TFMV/fedquery/pkg/infrastructure/metrics"
	"github.com/TFMV/fedquery/pkg/models"
)

// SchemaHint describes a backend to the generative model.
type SchemaHint struct {
	Schema   string
	Examples string
}

// DefaultSchemaHints returns the schema descriptions and worked examples for
// both backends.
func DefaultSchemaHints() map[models.BackendID]SchemaHint {
	return map[models.BackendID]SchemaHint{
		models.BackendPrimary: {
			Schema: `Database: SQLite (student records)
Tables:
Students(student_id TEXT PRIMARY KEY, name TEXT, email TEXT, program TEXT, year INTEGER)
Enrollment(enrollment_id INTEGER PRIMARY KEY, student_id TEXT, course_id TEXT, semester TEXT, enrollment_date DATE)
Attendance(attendance_id INTEGER PRIMARY KEY, student_id TEXT, course_id TEXT, date DATE, status TEXT)`,
			Examples: `Q: Get all students
A: SELECT * FROM Students;

Q: Students with more than 75% attendance
A: SELECT DISTINCT s.student_id, s.name, s.email
   FROM Students s
   JOIN Attendance a ON s.student_id = a.student_id
   GROUP BY s.student_id
   HAVING (CAST(SUM(CASE WHEN LOWER(a.status) = 'present' THEN 1 ELSE 0 END) AS FLOAT) / COUNT(*)) > 0.75;`,
		},
		models.BackendSecondary: {
			Schema: `Database: MySQL (academic records)
Tables:
Faculty(faculty_id INT PRIMARY KEY, name VARCHAR(100), department VARCHAR(50), email VARCHAR(100))
Courses(course_id INT PRIMARY KEY, course_name VARCHAR(100), faculty_id INT, credits INT)
Exams(exam_id INT PRIMARY KEY, course_id INT, exam_date DATE, eligibility_criteria TEXT)
Remedial_Resources(resource_id INT PRIMARY KEY, course_id INT, type VARCHAR(50), description TEXT)`,
			Examples: `Q: All courses taught by Dr. Smith
A: SELECT c.* FROM Courses c JOIN Faculty f ON c.faculty_id = f.faculty_id WHERE f.name LIKE '%Smith%';

Q: Get all faculty in Computer Science
A: SELECT * FROM Faculty WHERE department = 'Computer Science';`,
		},
	}
}

const sqlPromptTemplate = `Convert this question to a VALID SQL query. You MUST return a complete, executable SQL query.

%s

%s

Question: %s

CRITICAL REQUIREMENTS:
1. Return ONLY a complete SQL query - NO explanations, NO markdown
2. Query must start with SELECT (or WITH ...) and include a FROM clause
3. Use proper table names from the schema above
4. For percentages, use: CAST(numerator AS FLOAT) / denominator
5. End with a semicolon

SQL Query (complete and ready to execute):`

// SynthesizerConfig configures SQLSynthesizer.
type SynthesizerConfig struct {
	// MaxTokens bounds the generative fallback response.
	MaxTokens int
	// Timeout bounds a single generative call.
	Timeout time.Duration
}

// SQLSynthesizer produces statements from pattern rules, falling back to the
// generative service.
type SQLSynthesizer struct {
	rules   []PatternRule
	hints   map[models.BackendID]SchemaHint
	gen     generative.Service
	cfg     SynthesizerConfig
	logger  Logger
	metrics MetricsCollector
}

// NewSQLSynthesizer creates a synthesizer with the default rules and schema
// hints. A nil gen behaves as an unconfigured generative service.
func NewSQLSynthesizer(gen generative.Service, cfg SynthesizerConfig, logger Logger, metrics MetricsCollector) *SQLSynthesizer {
	if gen == nil {
		gen = generative.UnavailableService{}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = NopLogger()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &SQLSynthesizer{
		rules:   DefaultPatternRules(),
		hints:   DefaultSchemaHints(),
		gen:     gen,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Synthesize returns a statement for backend. Every returned statement has
// passed CheckSafety; anything else is replaced by a no-op statement.
func (s *SQLSynthesizer) Synthesize(ctx context.Context, q models.Question, backend models.BackendID) models.SQLStatement {
	stmt := s.synthesize(ctx, q, backend)

	if err := CheckSafety(stmt.Text); err != nil {
		s.logger.Warn("Rejected synthesized statement", "backend", backend, "sql", stmt.Text, "error", err)
		stmt = NoOpStatement(backend, SafetyViolationSQL)
	}

	s.metrics.IncrementCounter(metrics.SynthesisTotal, "backend", string(backend), "step", string(stmt.Step))
	return stmt
}

func (s *SQLSynthesizer) synthesize(ctx context.Context, q models.Question, backend models.BackendID) models.SQLStatement {
	if stmt, ok := s.MatchPattern(q, backend); ok {
		return stmt
	}

	s.logger.Debug("No pattern matched, using generative fallback", "backend", backend)
	return s.generate(ctx, q, backend)
}

// MatchPattern evaluates the pattern rules for backend in order.
func (s *SQLSynthesizer) MatchPattern(q models.Question, backend models.BackendID) (models.SQLStatement, bool) {
	for _, rule := range s.rules {
		if rule.Backend != backend {
			continue
		}
		text, args, ok := rule.Build(q)
		if !ok {
			continue
		}
		s.logger.Debug("Pattern matched", "backend", backend, "rule", rule.Name)
		return models.SQLStatement{
			Backend: backend,
			Text:    ensureTerminated(text),
			Args:    args,
			Step:    models.StepPattern,
		}, true
	}
	return models.SQLStatement{}, false
}

func (s *SQLSynthesizer) generate(ctx context.Context, q models.Question, backend models.BackendID) models.SQLStatement {
	hint := s.hints[backend]
	prompt := fmt.Sprintf(sqlPromptTemplate, hint.Schema, hint.Examples, string(q))

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	raw, err := s.gen.Generate(genCtx, prompt, s.cfg.MaxTokens)
	if err != nil || raw == "" {
		s.logger.Warn("Generative SQL fallback failed", "backend", backend, "error", generative.Describe(err))
		return NoOpStatement(backend, GenerativeUnavailableSQL)
	}

	sql, ok := CleanGeneratedSQL(raw)
	if !ok {
		s.logger.Warn("Generative SQL fallback returned unusable SQL", "backend", backend, "raw", raw)
		return NoOpStatement(backend, GenerativeInvalidSQL)
	}
	return models.SQLStatement{Backend: backend, Text: sql, Step: models.StepGenerative}
}

func ensureTerminated(sql string) string {
	sql = strings.TrimSpace(sql)
	if sql != "" && !strings.HasSuffix(sql, ";") {
		sql += ";"
	}
	return sql
}
