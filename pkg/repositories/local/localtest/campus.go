// Package localtest provides seeded in-memory campus databases for tests.
package localtest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/fedquery/pkg/infrastructure/pool"
)

// StudentSchema creates the primary backend tables. Courses is included so
// the course-name pattern query can run locally.
const StudentSchema = `
CREATE TABLE Students (student_id TEXT PRIMARY KEY, name TEXT, email TEXT, program TEXT, year INTEGER);
CREATE TABLE Enrollment (enrollment_id INTEGER PRIMARY KEY, student_id TEXT, course_id TEXT, semester TEXT, enrollment_date TEXT);
CREATE TABLE Attendance (attendance_id INTEGER PRIMARY KEY, student_id TEXT, course_id TEXT, date TEXT, status TEXT);
CREATE TABLE Courses (course_id TEXT PRIMARY KEY, course_name TEXT, faculty_id INTEGER, credits INTEGER);

INSERT INTO Students VALUES
	('S001', 'Alice Kumar', 'alice@campus.edu', 'CS', 2),
	('S002', 'Bob Lee', 'bob@campus.edu', 'EE', 3),
	('S003', 'Chen Wu', 'chen@campus.edu', 'CS', 1);

INSERT INTO Enrollment VALUES
	(1, 'S001', 'C101', 'Fall', '2025-09-01'),
	(2, 'S002', 'C102', 'Fall', '2025-09-01'),
	(3, 'S003', 'C101', 'Fall', '2025-09-02');

INSERT INTO Attendance VALUES
	(1, 'S001', 'C101', '2025-09-10', 'Present'),
	(2, 'S001', 'C101', '2025-09-11', 'Present'),
	(3, 'S001', 'C101', '2025-09-12', 'Present'),
	(4, 'S001', 'C101', '2025-09-13', 'Present'),
	(5, 'S002', 'C102', '2025-09-10', 'Absent'),
	(6, 'S002', 'C102', '2025-09-11', 'Present'),
	(7, 'S003', 'C101', '2025-09-10', 'present'),
	(8, 'S003', 'C101', '2025-09-11', 'Absent');

INSERT INTO Courses VALUES
	('C101', 'Databases', 1, 4),
	('C102', 'Signals', 2, 3);
`

// CourseSchema creates the secondary backend tables.
const CourseSchema = `
CREATE TABLE Faculty (faculty_id INTEGER PRIMARY KEY, name TEXT, department TEXT, email TEXT);
CREATE TABLE Courses (course_id TEXT PRIMARY KEY, course_name TEXT, faculty_id INTEGER, credits INTEGER);
CREATE TABLE Exams (exam_id INTEGER PRIMARY KEY, course_id TEXT, exam_date TEXT, eligibility_criteria TEXT);
CREATE TABLE Remedial_Resources (resource_id INTEGER PRIMARY KEY, course_id TEXT, type TEXT, description TEXT);

INSERT INTO Faculty VALUES
	(1, 'Dr. Smith', 'Computer Science', 'smith@campus.edu'),
	(2, 'Dr. Jones', 'Electrical', 'jones@campus.edu');

INSERT INTO Courses VALUES
	('C101', 'Databases', 1, 4),
	('C102', 'Signals', 2, 3);
`

// Open returns an in-memory SQLite pool seeded with schema. The pool is closed
// when the test ends.
func Open(t testing.TB, schema string) pool.ConnectionPool {
	t.Helper()

	p, err := pool.New(pool.Config{Driver: pool.DriverSQLite, DSN: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	db, err := p.Get(context.Background())
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return p
}

// SeedFile creates a SQLite database file at path seeded with schema and
// returns path. The file is left closed for another pool to open.
func SeedFile(t testing.TB, path, schema string) string {
	t.Helper()

	p, err := pool.New(pool.Config{Driver: pool.DriverSQLite, DSN: path}, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()

	db, err := p.Get(context.Background())
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return path
}
