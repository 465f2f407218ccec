package models

// BackendID identifies one of the data backends a question can be routed to.
type BackendID string

const (
	// BackendPrimary owns students, enrollment and attendance.
	BackendPrimary BackendID = "primary"
	// BackendSecondary owns faculty, courses, exams and remedial resources.
	BackendSecondary BackendID = "secondary"
)

// PlanKind is the classification tag of a question.
type PlanKind string

const (
	PlanSQLSingle  PlanKind = "sql"
	PlanFederated  PlanKind = "federated"
	PlanGenerative PlanKind = "llm"
)

// QueryPlan is the output of classification.
//
// Targets is empty for PlanGenerative, holds one backend for PlanSQLSingle and
// exactly two for PlanFederated, the join-row supplier (primary) first.
type QueryPlan struct {
	Kind    PlanKind    `json:"kind"`
	Targets []BackendID `json:"targets,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// Target returns the first target backend, or "" for generative plans.
func (p QueryPlan) Target() BackendID {
	if len(p.Targets) == 0 {
		return ""
	}
	return p.Targets[0]
}
