package local

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/infrastructure/pool"
)

// TableSpec describes one table loaded from a CSV file.
type TableSpec struct {
	Name string
	File string
	DDL  string
	// Columns lists the accepted CSV header names.
	Columns []string
	// Normalize maps a column to a function applied to each of its values.
	Normalize map[string]func(string) string
}

var (
	upper      = strings.ToUpper
	lower      = strings.ToLower
	capitalize = func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	}
)

// StudentTables are the primary backend tables.
var StudentTables = []TableSpec{
	{
		Name: "Students",
		File: "students.csv",
		DDL: `CREATE TABLE Students (
    student_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT,
    program TEXT,
    year INTEGER
)`,
		Columns:   []string{"student_id", "name", "email", "program", "year"},
		Normalize: map[string]func(string) string{"student_id": upper, "email": lower},
	},
	{
		Name: "Enrollment",
		File: "Enrollment.csv",
		DDL: `CREATE TABLE Enrollment (
    enrollment_id INTEGER PRIMARY KEY,
    student_id TEXT NOT NULL,
    course_id TEXT NOT NULL,
    semester TEXT,
    enrollment_date DATE
)`,
		Columns:   []string{"enrollment_id", "student_id", "course_id", "semester", "enrollment_date"},
		Normalize: map[string]func(string) string{"student_id": upper, "course_id": upper},
	},
	{
		Name: "Attendance",
		File: "Attendance.csv",
		DDL: `CREATE TABLE Attendance (
    attendance_id INTEGER PRIMARY KEY,
    student_id TEXT NOT NULL,
    course_id TEXT NOT NULL,
    date DATE,
    status TEXT CHECK (status IN ('Present', 'Absent', 'Late'))
)`,
		Columns:   []string{"attendance_id", "student_id", "course_id", "date", "status"},
		Normalize: map[string]func(string) string{"student_id": upper, "course_id": upper, "status": capitalize},
	},
}

// CourseTables are the secondary backend tables.
var CourseTables = []TableSpec{
	{
		Name: "Faculty",
		File: "Faculty.csv",
		DDL: `CREATE TABLE Faculty (
    faculty_id INTEGER PRIMARY KEY,
    name VARCHAR(100),
    department VARCHAR(50),
    email VARCHAR(100)
)`,
		Columns:   []string{"faculty_id", "name", "department", "email"},
		Normalize: map[string]func(string) string{"email": lower},
	},
	{
		Name: "Courses",
		File: "Courses.csv",
		DDL: `CREATE TABLE Courses (
    course_id VARCHAR(20) PRIMARY KEY,
    course_name VARCHAR(100),
    faculty_id INTEGER,
    credits INTEGER
)`,
		Columns:   []string{"course_id", "course_name", "faculty_id", "credits"},
		Normalize: map[string]func(string) string{"course_id": upper},
	},
	{
		Name: "Exams",
		File: "Exams.csv",
		DDL: `CREATE TABLE Exams (
    exam_id INTEGER PRIMARY KEY,
    course_id VARCHAR(20),
    exam_date DATE,
    eligibility_criteria TEXT
)`,
		Columns:   []string{"exam_id", "course_id", "exam_date", "eligibility_criteria"},
		Normalize: map[string]func(string) string{"course_id": upper},
	},
	{
		Name: "Remedial_Resources",
		File: "Remedial_Resources.csv",
		DDL: `CREATE TABLE Remedial_Resources (
    resource_id INTEGER PRIMARY KEY,
    course_id VARCHAR(20),
    type VARCHAR(50),
    description TEXT
)`,
		Columns:   []string{"resource_id", "course_id", "type", "description"},
		Normalize: map[string]func(string) string{"course_id": upper},
	},
}

// Importer recreates tables and loads them from CSV files.
type Importer struct {
	pool   pool.ConnectionPool
	logger zerolog.Logger
}

// NewImporter creates an importer writing through p.
func NewImporter(p pool.ConnectionPool, logger zerolog.Logger) *Importer {
	return &Importer{
		pool:   p,
		logger: logger.With().Str("component", "importer").Logger(),
	}
}

// ImportDir loads every table in tables from dir/<File>. Existing tables are
// dropped first. It returns the number of rows loaded per table.
func (im *Importer) ImportDir(ctx context.Context, dir string, tables []TableSpec) (map[string]int, error) {
	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		f, err := os.Open(filepath.Join(dir, table.File))
		if err != nil {
			return counts, errors.Wrapf(err, errors.CodeInvalidRequest, "failed to open %s", table.File)
		}
		n, err := im.Import(ctx, table, f)
		f.Close()
		if err != nil {
			return counts, err
		}
		counts[table.Name] = n
	}
	return counts, nil
}

// Import recreates table and inserts every record read from r in a
// single transaction. The first CSV record is the header.
func (im *Importer) Import(ctx context.Context, table TableSpec, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeInvalidRequest, "%s: failed to read header", table.File)
	}
	columns, err := table.headerColumns(header)
	if err != nil {
		return 0, err
	}

	db, err := im.pool.Get(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeConnectionFailed, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table.Name); err != nil {
		return 0, errors.Wrap(err, errors.CodeQueryFailed, err.Error())
	}
	if _, err := tx.ExecContext(ctx, table.DDL); err != nil {
		return 0, errors.Wrap(err, errors.CodeQueryFailed, err.Error()).WithSQL(table.DDL)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.Name,
		strings.Join(columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeQueryFailed, err.Error()).WithSQL(insert)
	}
	defer stmt.Close()

	n := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, errors.Wrapf(err, errors.CodeInvalidRequest, "%s: malformed record", table.File)
		}

		args := make([]interface{}, len(columns))
		for i, col := range columns {
			v := strings.TrimSpace(record[i])
			if fn, ok := table.Normalize[col]; ok {
				v = fn(v)
			}
			if v == "" {
				args[i] = nil
			} else {
				args[i] = v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, errors.Wrapf(err, errors.CodeQueryFailed, "%s line %d: %v", table.File, n+2, err).WithSQL(insert)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, errors.CodeQueryFailed, "failed to commit import")
	}

	im.logger.Info().Str("table", table.Name).Int("rows", n).Msg("Imported table")
	return n, nil
}

// headerColumns validates header against the accepted columns. Column names
// are spliced into the INSERT, so unknown names are rejected.
func (t TableSpec) headerColumns(header []string) ([]string, error) {
	allowed := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		allowed[c] = struct{}{}
	}

	columns := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, ok := allowed[h]; !ok {
			return nil, errors.New(errors.CodeValidationFailed,
				fmt.Sprintf("%s: unexpected column %q", t.File, h))
		}
		columns[i] = h
	}
	return columns, nil
}
