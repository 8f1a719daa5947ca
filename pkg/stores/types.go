package stores

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/layerwave/layerwave/pkg/engine"
)

// ReportStore archives computed plans.
type ReportStore interface {
	// SaveReport stores a report. With replace set, reports for the same
	// target are removed in the same transaction.
	SaveReport(ctx context.Context, report *PlanReport, replace bool) error

	// GetReport returns a single report by ID.
	GetReport(ctx context.Context, id string) (*PlanReport, error)

	// ListReports returns reports newest first, optionally for one target.
	ListReports(ctx context.Context, target string) ([]*PlanReport, error)

	// DeleteReports removes every report for a target and returns the count.
	DeleteReports(ctx context.Context, target string) (int64, error)

	Close() error
}

// PlanReport is an archived plan.
type PlanReport struct {
	ID          string                `json:"id"`
	Target      string                `json:"target"`
	PlanID      string                `json:"planId"`
	Ceiling     string                `json:"ceiling"`
	Bucket      string                `json:"bucket,omitempty"`
	Waves       []engine.WaveDocument `json:"waves"`
	Unreachable []string              `json:"unreachable,omitempty"`
	LayerCount  int                   `json:"layerCount"`
	WaveCount   int                   `json:"waveCount"`
	ManualCount int                   `json:"manualCount"`
	CreatedAt   time.Time             `json:"createdAt"`
}

// NewReport builds a report from a computed plan.
func NewReport(plan *engine.Plan) *PlanReport {
	return &PlanReport{
		ID:          uuid.New().String(),
		Target:      plan.Target.String(),
		PlanID:      plan.ID,
		Ceiling:     plan.Ceiling.String(),
		Bucket:      plan.Bucket,
		Waves:       plan.Documents(),
		Unreachable: plan.Unreachable,
		LayerCount:  plan.LayerCount(),
		WaveCount:   len(plan.Waves),
		ManualCount: plan.ManualActionCount(),
		CreatedAt:   plan.CreatedAt,
	}
}
