package policy

import (
	"time"

	"github.com/layerwave/layerwave/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that block an enforced plan.
	SeverityError Severity = "error"

	// SeverityCritical is for findings that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a finding of this severity denies a plan.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`

	// UpdatedAt is when the policy was last loaded.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy finding on a plan.
type Violation struct {
	// Policy is the name of the policy that produced the finding.
	Policy string `json:"policy"`

	// Layer is the layer the finding is about, if any.
	Layer string `json:"layer,omitempty"`

	// Wave is the wave number the finding is about, 0 for plan-wide findings.
	Wave int `json:"wave,omitempty"`

	// Message is a human-readable message.
	Message string `json:"message"`

	// Severity is the finding severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of evaluating all enabled policies on a plan.
type Result struct {
	// Allowed is false when any finding is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists all findings in policy name order.
	Violations []Violation `json:"violations,omitempty"`

	// Failures lists policies that could not be evaluated.
	Failures []string `json:"failures,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation finished.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// BySeverity returns the findings with the given severity.
func (r *Result) BySeverity(sev Severity) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == sev {
			out = append(out, v)
		}
	}
	return out
}

// Blocking returns the findings that deny the plan.
func (r *Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity.Blocking() {
			out = append(out, v)
		}
	}
	return out
}

// Input is the document policies are evaluated against, available as
// `input` in Rego.
type Input struct {
	Plan    PlanInput `json:"plan"`
	Context Context   `json:"context"`
}

// PlanInput is the plan as seen by policies. Waves use the API wire form.
type PlanInput struct {
	ID          string                `json:"id"`
	Target      string                `json:"target"`
	Ceiling     string                `json:"ceiling"`
	Bucket      string                `json:"bucket,omitempty"`
	Waves       []engine.WaveDocument `json:"waves"`
	Unreachable []string              `json:"unreachable"`
	Skipped     []string              `json:"skipped"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Operation is the command being run (e.g., "plan", "validate", "serve").
	Operation string `json:"operation,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// NewInput builds the policy input for a plan.
func NewInput(plan *engine.Plan, operation string, now time.Time) *Input {
	in := &Input{
		Plan: PlanInput{
			ID:          plan.ID,
			Target:      plan.Target.String(),
			Ceiling:     plan.Ceiling.String(),
			Bucket:      plan.Bucket,
			Waves:       plan.Documents(),
			Unreachable: plan.Unreachable,
			Skipped:     plan.Skipped,
		},
		Context: Context{
			Operation: operation,
			Timestamp: now,
		},
	}
	if in.Plan.Unreachable == nil {
		in.Plan.Unreachable = []string{}
	}
	if in.Plan.Skipped == nil {
		in.Plan.Skipped = []string{}
	}
	return in
}
