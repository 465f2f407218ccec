package app

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"

	"github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/models"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

func render(o *models.Outcome, cached bool) string {
	var buf bytes.Buffer
	NewRenderer(&buf).Outcome(o, cached)
	return buf.String()
}

func TestRenderer_TableTruncates(t *testing.T) {
	rows := make([]models.Row, 25)
	for i := range rows {
		rows[i] = models.Row{
			"student_id": fmt.Sprintf("S%03d", i+1),
			"name":       "abcdefghijklmnopqrstuvwxyz",
		}
	}
	o := models.NewResultOutcome(models.PlanSQLSingle, &models.ResultSet{
		Columns: []string{"student_id", "name"},
		Rows:    rows,
	}, "SELECT * FROM Students;")
	o.Backends = []models.BackendID{models.BackendPrimary}

	out := render(o, false)
	assert.Contains(t, out, "Plan: sql (primary)")
	assert.Contains(t, out, "S020")
	assert.NotContains(t, out, "S021")
	assert.Contains(t, out, "abcdefghijklmnopqrst")
	assert.NotContains(t, out, "abcdefghijklmnopqrstu")
	assert.Contains(t, out, "... and 5 more rows")
	assert.Contains(t, out, "Total: 25 rows")
	assert.NotContains(t, out, "CACHED")
}

func TestRenderer_SmallTable(t *testing.T) {
	o := models.NewResultOutcome(models.PlanSQLSingle, &models.ResultSet{
		Rows: []models.Row{{"year": int64(2), "email": nil}},
	}, "")

	out := render(o, true)
	assert.Contains(t, out, "CACHED Plan: sql")
	assert.Contains(t, out, "email")
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "Total: 1 rows")
	assert.NotContains(t, out, "more rows")

	// columns fall back to sorted keys
	assert.Less(t, strings.Index(out, "email"), strings.Index(out, "year"))
}

func TestRenderer_Failure(t *testing.T) {
	o := models.NewFailureOutcome(models.PlanSQLSingle,
		errors.New(errors.CodeConnectionFailed, "Cannot connect to remote backend at http://pc1:5001").
			WithSQL("SELECT * FROM Faculty;"))
	o.Backends = []models.BackendID{models.BackendSecondary}

	out := render(o, false)
	assert.Contains(t, out, "Plan: sql (secondary)")
	assert.Contains(t, out, "Error: Cannot connect to remote backend at http://pc1:5001")
	assert.Contains(t, out, "SQL: SELECT * FROM Faculty;")
}

func TestRenderer_Narrative(t *testing.T) {
	out := render(models.NewAnswerOutcome("Attendance keeps students on track."), false)
	assert.Contains(t, out, "Plan: llm")
	assert.Contains(t, out, "Attendance keeps students on track.")
	assert.NotContains(t, out, "Total:")
}

func TestRenderer_EmptyResults(t *testing.T) {
	o := models.NewResultOutcome(models.PlanFederated, &models.ResultSet{}, "")
	o.Message = "No courses found for Dr. Nobody"
	o.Backends = []models.BackendID{models.BackendPrimary, models.BackendSecondary}

	out := render(o, false)
	assert.Contains(t, out, "Plan: federated (primary + secondary)")
	assert.Contains(t, out, "No courses found for Dr. Nobody")

	out = render(models.NewResultOutcome(models.PlanSQLSingle, &models.ResultSet{}, ""), false)
	assert.Contains(t, out, "No results found.")
}

func TestRenderer_Banner(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf).Banner(
		map[models.BackendID]string{
			models.BackendPrimary:   "sqlite3:student.db",
			models.BackendSecondary: "http://pc1:5001",
		},
		map[models.BackendID]error{
			models.BackendPrimary:   nil,
			models.BackendSecondary: errors.New(errors.CodeConnectionFailed, "Cannot connect to remote backend"),
		},
	)

	out := buf.String()
	assert.Contains(t, out, "primary: sqlite3:student.db connected")
	assert.Contains(t, out, "secondary: http://pc1:5001 unreachable: Cannot connect to remote backend")
	assert.Contains(t, out, "Show all students")
	assert.Contains(t, out, "'exit'")
}
