package services

import (
	"strings"

	"github.com/TFMV/fedquery/pkg/models"
)

// Keyword sets used by the classification rules. Matching is plain substring
// containment on the lower-cased question, so "course" also matches
// "discourse".
var (
	ExplanatoryKeywords = []string{
		"explain", "why", "how", "summarize", "suggest", "recommend",
		"describe", "importance", "tell me about", "what is", "define",
	}
	RetrievalKeywords = []string{
		"show", "list", "get", "select", "find", "display", "count", "how many", "give me", "all",
	}
	AttendanceExclusions = []string{"course name", "taught by", "professor", "faculty"}
	StudentKeywords      = []string{"student", "enrollment", "enroll", "attendance", "attend", "students", "enrolled"}
	CourseKeywords       = []string{
		"faculty", "professor", "teacher", "course", "course name", "exam", "remedial", "resource", "courses",
	}
	TeachingPhrases = []string{"taught by", "teaching", "taught"}
)

// ClassificationRule is one row of the ordered rule table. The first rule
// whose Match returns true decides the plan.
type ClassificationRule struct {
	Name    string
	Match   func(q string) bool
	Kind    models.PlanKind
	Targets []models.BackendID
}

// DefaultRules returns the standard rule table.
func DefaultRules() []ClassificationRule {
	federated := []models.BackendID{models.BackendPrimary, models.BackendSecondary}
	primary := []models.BackendID{models.BackendPrimary}
	secondary := []models.BackendID{models.BackendSecondary}

	return []ClassificationRule{
		{
			Name: "explanatory",
			Match: func(q string) bool {
				return containsAny(q, ExplanatoryKeywords) && !containsAny(q, RetrievalKeywords)
			},
			Kind: models.PlanGenerative,
		},
		{
			Name: "attendance",
			Match: func(q string) bool {
				return strings.Contains(q, "attendance") && !containsAny(q, AttendanceExclusions)
			},
			Kind:    models.PlanSQLSingle,
			Targets: primary,
		},
		{
			Name: "students by teaching relation",
			Match: func(q string) bool {
				return containsAny(q, StudentKeywords) && containsAny(q, CourseKeywords) && containsAny(q, TeachingPhrases)
			},
			Kind:    models.PlanFederated,
			Targets: federated,
		},
		{
			Name: "both domains",
			Match: func(q string) bool {
				return containsAny(q, StudentKeywords) && containsAny(q, CourseKeywords)
			},
			Kind:    models.PlanFederated,
			Targets: federated,
		},
		{
			Name:    "student domain",
			Match:   func(q string) bool { return containsAny(q, StudentKeywords) },
			Kind:    models.PlanSQLSingle,
			Targets: primary,
		},
		{
			Name:    "course domain",
			Match:   func(q string) bool { return containsAny(q, CourseKeywords) },
			Kind:    models.PlanSQLSingle,
			Targets: secondary,
		},
	}
}

// QueryClassifier applies an ordered rule table. It is stateless and safe for
// concurrent use.
type QueryClassifier struct {
	rules []ClassificationRule
}

// NewQueryClassifier creates a classifier over rules, or DefaultRules when
// rules is empty.
func NewQueryClassifier(rules ...ClassificationRule) *QueryClassifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &QueryClassifier{rules: rules}
}

// Classify returns the plan of the first matching rule. Questions matching no
// rule go to the primary backend as a single SQL query.
func (c *QueryClassifier) Classify(q models.Question) models.QueryPlan {
	text := q.Lower()
	for _, rule := range c.rules {
		if rule.Match(text) {
			return models.QueryPlan{
				Kind:    rule.Kind,
				Targets: append([]models.BackendID(nil), rule.Targets...),
				Reason:  rule.Name,
			}
		}
	}
	return models.QueryPlan{
		Kind:    models.PlanSQLSingle,
		Targets: []models.BackendID{models.BackendPrimary},
		Reason:  "default",
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
