package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TFMV/fedquery/pkg/models"
)

func TestQueryClassifier_Classify(t *testing.T) {
	primary := []models.BackendID{models.BackendPrimary}
	secondary := []models.BackendID{models.BackendSecondary}
	both := []models.BackendID{models.BackendPrimary, models.BackendSecondary}

	tests := []struct {
		question    string
		wantKind    models.PlanKind
		wantTargets []models.BackendID
		wantRule    string
	}{
		{"Show all students", models.PlanSQLSingle, primary, "student domain"},
		{"Explain why attendance matters", models.PlanGenerative, nil, "explanatory"},
		{"List students in courses taught by Dr. Smith", models.PlanFederated, both, "students by teaching relation"},
		{"What is a remedial resource?", models.PlanGenerative, nil, "explanatory"},
		{"How many students are enrolled?", models.PlanSQLSingle, primary, "student domain"},
		{"Students with more than 75% attendance", models.PlanSQLSingle, primary, "attendance"},
		{"Attendance of students in courses taught by Dr. Smith", models.PlanFederated, both, "students by teaching relation"},
		{"Student attendance for course C101", models.PlanSQLSingle, primary, "attendance"},
		{"Which students take the exam for each course", models.PlanFederated, both, "both domains"},
		{"Show all faculty", models.PlanSQLSingle, secondary, "course domain"},
		{"list all courses", models.PlanSQLSingle, secondary, "course domain"},
		{"Weather today", models.PlanSQLSingle, primary, "default"},
		{"", models.PlanSQLSingle, primary, "default"},
		// substring matching: "discourse" contains "course"
		{"Show discourse records", models.PlanSQLSingle, secondary, "course domain"},
	}

	classifier := NewQueryClassifier()
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			plan := classifier.Classify(models.Question(tt.question))
			assert.Equal(t, tt.wantKind, plan.Kind)
			assert.Equal(t, tt.wantTargets, plan.Targets)
			assert.Equal(t, tt.wantRule, plan.Reason)
		})
	}
}

func TestQueryClassifier_Deterministic(t *testing.T) {
	classifier := NewQueryClassifier()
	q := models.Question("List students in courses taught by Dr. Smith")

	first := classifier.Classify(q)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, classifier.Classify(q))
	}
}

func TestQueryClassifier_TargetsAreCopies(t *testing.T) {
	classifier := NewQueryClassifier()
	plan := classifier.Classify("Show all students")
	plan.Targets[0] = models.BackendSecondary

	assert.Equal(t, models.BackendPrimary, classifier.Classify("Show all students").Target())
}

func TestQueryClassifier_CustomRules(t *testing.T) {
	classifier := NewQueryClassifier(ClassificationRule{
		Name:    "everything secondary",
		Match:   func(string) bool { return true },
		Kind:    models.PlanSQLSingle,
		Targets: []models.BackendID{models.BackendSecondary},
	})

	plan := classifier.Classify("Explain attendance")
	assert.Equal(t, models.BackendSecondary, plan.Target())
	assert.Equal(t, "everything secondary", plan.Reason)
}
