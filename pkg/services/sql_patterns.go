package services

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/TFMV/fedquery/pkg/models"
)

// PatternRule produces a statement for questions it recognizes. Extracted
// values are returned as bind arguments, never spliced into the text.
type PatternRule struct {
	Name    string
	Backend models.BackendID
	Build   func(q models.Question) (text string, args []interface{}, ok bool)
}

var (
	thresholdPattern = regexp.MustCompile(`(\d+)\s*(%|percent)?`)
	studentIDPattern = regexp.MustCompile(`(?i)\bS(\d{3})\b`)
	takingPattern    = regexp.MustCompile(`taking\s+([a-zA-Z\s]+)`)
	studentsPattern  = regexp.MustCompile(`\bstudent'?s?\b`)
	facultyPattern   = regexp.MustCompile(`(?i)\b(?:taught by|by|faculty|professor)\s+([a-zA-Z][a-zA-Z\s.'-]*)`)
)

var (
	displayVerbs    = []string{"show", "list", "get", "display", "all", "data", "info"}
	ownershipTerms  = []string{"taught by", "faculty", "professor", "by"}
	thresholdTerms  = []string{"greater", "more than", ">"}
	honorifics      = []string{"professor ", "prof. ", "prof ", "dr. ", "dr ", "mrs. ", "mr. ", "ms. "}
	allFacultyForms = []string{"all faculty", "show all faculty", "list all faculty"}
	allCourseForms  = []string{"all courses", "show all courses", "list all courses"}
)

const attendanceThresholdSQL = `SELECT DISTINCT s.student_id, s.name, s.email, s.program, s.year,
    ROUND(100.0 * SUM(CASE WHEN LOWER(a.status) = 'present' THEN 1 ELSE 0 END) / COUNT(*), 2) as attendance_percentage
FROM Students s
JOIN Attendance a ON s.student_id = a.student_id
GROUP BY s.student_id, s.name, s.email, s.program, s.year
HAVING (CAST(SUM(CASE WHEN LOWER(a.status) = 'present' THEN 1 ELSE 0 END) AS FLOAT) / COUNT(*)) > ?;`

const studentAttendanceSQL = `SELECT a.course_id,
       COUNT(*) as total_classes,
       SUM(CASE WHEN LOWER(a.status) = 'present' THEN 1 ELSE 0 END) as present_count,
       ROUND(100.0 * SUM(CASE WHEN LOWER(a.status) = 'present' THEN 1 ELSE 0 END) / COUNT(*), 2) as percentage
FROM Attendance a
WHERE a.student_id = ?
GROUP BY a.course_id;`

const studentsTakingSQL = `SELECT s.student_id, s.name, s.email, s.program, s.year, c.course_id, c.course_name
FROM Students s
JOIN Enrollment e ON s.student_id = e.student_id
JOIN Courses c ON e.course_id = c.course_id
WHERE c.course_name LIKE ?;`

// DefaultPatternRules returns the rule list in evaluation order.
func DefaultPatternRules() []PatternRule {
	return []PatternRule{
		{Name: "attendance threshold", Backend: models.BackendPrimary, Build: buildAttendanceThreshold},
		{Name: "student attendance", Backend: models.BackendPrimary, Build: buildStudentAttendance},
		{Name: "students taking course", Backend: models.BackendPrimary, Build: buildStudentsTaking},
		{Name: "all students", Backend: models.BackendPrimary, Build: buildAllStudents},
		{Name: "courses by faculty", Backend: models.BackendSecondary, Build: buildCoursesByFaculty},
		{Name: "all faculty", Backend: models.BackendSecondary, Build: exactForms(allFacultyForms, "SELECT * FROM Faculty;")},
		{Name: "all courses", Backend: models.BackendSecondary, Build: exactForms(allCourseForms, "SELECT * FROM Courses;")},
	}
}

func buildAttendanceThreshold(q models.Question) (string, []interface{}, bool) {
	text := q.Lower()
	if !strings.Contains(text, "student") || !strings.Contains(text, "attendance") || !containsAny(text, thresholdTerms) {
		return "", nil, false
	}
	m := thresholdPattern.FindStringSubmatch(text)
	if m == nil {
		return "", nil, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "", nil, false
	}
	return attendanceThresholdSQL, []interface{}{n / 100.0}, true
}

func buildStudentAttendance(q models.Question) (string, []interface{}, bool) {
	if !strings.Contains(q.Lower(), "student") {
		return "", nil, false
	}
	m := studentIDPattern.FindStringSubmatch(string(q))
	if m == nil {
		return "", nil, false
	}
	return studentAttendanceSQL, []interface{}{"S" + m[1]}, true
}

func buildStudentsTaking(q models.Question) (string, []interface{}, bool) {
	text := q.Lower()
	if !strings.Contains(text, "student") {
		return "", nil, false
	}
	m := takingPattern.FindStringSubmatch(text)
	if m == nil {
		return "", nil, false
	}
	course := strings.TrimSpace(m[1])
	if course == "" {
		return "", nil, false
	}
	return studentsTakingSQL, []interface{}{likeArg(course)}, true
}

func buildAllStudents(q models.Question) (string, []interface{}, bool) {
	text := q.Lower()
	if studentsPattern.MatchString(text) && containsAny(text, displayVerbs) {
		return "SELECT * FROM Students;", nil, true
	}
	return "", nil, false
}

func buildCoursesByFaculty(q models.Question) (string, []interface{}, bool) {
	text := q.Lower()
	if !strings.Contains(text, "course") || !containsAny(text, ownershipTerms) {
		return "", nil, false
	}
	filter, ok := ExtractFacultyFilter(q)
	if !ok {
		return "", nil, false
	}
	text, args := filter.CoursesSQL("c.*, f.name as faculty_name")
	return text, args, true
}

func exactForms(forms []string, sql string) func(models.Question) (string, []interface{}, bool) {
	return func(q models.Question) (string, []interface{}, bool) {
		text := strings.TrimSpace(q.Lower())
		for _, f := range forms {
			if text == f {
				return sql, nil, true
			}
		}
		return "", nil, false
	}
}

// FacultyFilter narrows courses by teaching faculty name and department.
type FacultyFilter struct {
	Name       string
	Department string
}

// ExtractFacultyFilter finds a faculty name following "taught by", "by",
// "faculty" or "professor", with an optional trailing "from <department>".
// Honorifics are dropped from the name.
func ExtractFacultyFilter(q models.Question) (FacultyFilter, bool) {
	m := facultyPattern.FindStringSubmatch(string(q))
	if m == nil {
		return FacultyFilter{}, false
	}

	phrase := strings.ToLower(strings.TrimSpace(m[1]))
	var f FacultyFilter
	if i := strings.Index(phrase, " from "); i >= 0 {
		f.Department = strings.TrimSpace(phrase[i+len(" from "):])
		phrase = phrase[:i]
	}
	f.Name = stripHonorific(strings.TrimSpace(phrase))
	f.Name = strings.Trim(f.Name, " .'-")
	f.Department = strings.Trim(f.Department, " .'-")

	if f.Name == "" && f.Department == "" {
		return FacultyFilter{}, false
	}
	return f, true
}

// CoursesSQL builds the Courses/Faculty join selecting selectList, filtered by
// whichever of name and department are set.
func (f FacultyFilter) CoursesSQL(selectList string) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(selectList)
	b.WriteString("\nFROM Courses c\nJOIN Faculty f ON c.faculty_id = f.faculty_id\nWHERE 1=1")

	var args []interface{}
	if f.Name != "" {
		b.WriteString(" AND f.name LIKE ?")
		args = append(args, likeArg(f.Name))
	}
	if f.Department != "" {
		b.WriteString(" AND f.department LIKE ?")
		args = append(args, likeArg(f.Department))
	}
	b.WriteString(";")
	return b.String(), args
}

func stripHonorific(name string) string {
	for _, h := range honorifics {
		if strings.HasPrefix(name, h) {
			return strings.TrimSpace(name[len(h):])
		}
	}
	return name
}

func likeArg(s string) string {
	return "%" + s + "%"
}
