package engine

import (
	"fmt"

	"github.com/layerwave/layerwave/pkg/version"
)

// ValidatePlan checks a computed plan for internal consistency against the
// layers it was planned from: contiguous wave numbers starting at 1, at most
// one action per layer per wave, strictly increasing versions, actions that
// start where the previous wave left the layer, and no version past the
// plan's ceiling. A plan without a bucket may cross its target only in the
// trailing manual wave.
func ValidatePlan(plan *Plan, layers []Layer) error {
	if plan == nil {
		return NewValidationError("plan is nil", nil)
	}

	tracked := make(map[string]version.Version, len(layers))
	for _, l := range layers {
		if l.Version != nil {
			tracked[l.Name] = *l.Version
		}
	}

	for i, w := range plan.Waves {
		if err := validateWave(plan, i, w, tracked); err != nil {
			return err
		}
		for _, a := range w.Actions {
			tracked[a.Layer] = a.Next
		}
	}

	return nil
}

// validateWave validates a single wave against the tracked layer versions.
func validateWave(plan *Plan, idx int, w Wave, tracked map[string]version.Version) error {
	field := fmt.Sprintf("waves[%d]", idx)

	if w.Number != idx+1 {
		return NewValidationError(
			fmt.Sprintf("wave number %d out of sequence, expected %d", w.Number, idx+1), nil).
			WithField(field)
	}

	if len(w.Actions) == 0 {
		return NewValidationError("wave has no actions", nil).WithField(field)
	}

	seen := make(map[string]bool, len(w.Actions))
	for j, a := range w.Actions {
		actionField := fmt.Sprintf("%s.actions[%d]", field, j)

		if seen[a.Layer] {
			return NewValidationError("layer appears twice in one wave", nil).
				WithField(actionField).
				WithLayer(a.Layer)
		}
		seen[a.Layer] = true

		if !a.Current.LT(a.Next) {
			return NewValidationError(
				fmt.Sprintf("version does not increase: %s -> %s", a.Current, a.Next), nil).
				WithField(actionField).
				WithLayer(a.Layer)
		}

		if prev, ok := tracked[a.Layer]; !ok || prev != a.Current {
			return NewValidationError(
				fmt.Sprintf("action starts at %s but layer is at %s", a.Current, prev), nil).
				WithField(actionField).
				WithLayer(a.Layer)
		}

		if a.Next.GT(plan.Ceiling) && !trailingSweep(plan, idx, w) {
			return NewValidationError(
				fmt.Sprintf("action moves past ceiling %s", plan.Ceiling), nil).
				WithField(actionField).
				WithLayer(a.Layer)
		}

		if a.RequiresManual && a.GuideID == "" {
			return NewValidationError("manual action has no migration guide", nil).
				WithField(actionField).
				WithLayer(a.Layer)
		}
	}

	return nil
}

// trailingSweep reports whether wave idx is the consolidated manual wave of a
// plan whose ceiling is the target rather than a bucket bound.
func trailingSweep(plan *Plan, idx int, w Wave) bool {
	return plan.Bucket == "" && w.Manual && idx == len(plan.Waves)-1
}
