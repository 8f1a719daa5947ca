package engine

import (
	"time"

	"github.com/layerwave/layerwave/pkg/catalog"
	"github.com/layerwave/layerwave/pkg/version"
)

// Layer is a named, independently versioned infrastructure component.
type Layer struct {
	// Name identifies the layer, e.g. "prod-base".
	Name string

	// Version is the layer's current version. Layers without one take no
	// part in planning.
	Version *version.Version
}

// Request carries the inputs of one planning run. All of it is treated as
// read-only for the duration of the call.
type Request struct {
	Layers  []Layer
	Recipes *catalog.RecipeCatalog
	Buckets *catalog.BucketCatalog

	// Target is the global maximum version. It caps the run when no bucket
	// contains the lowest layer version.
	Target version.Version
}

// Plan is the result of one planning run.
type Plan struct {
	// ID is a unique identifier for this plan.
	ID string

	// Target is the requested global maximum version.
	Target version.Version

	// Ceiling is the fixed upper bound for the whole run.
	Ceiling version.Version

	// Bucket is the ID of the bucket the ceiling came from, empty when the
	// target was used.
	Bucket string

	// Waves are the ordered upgrade waves.
	Waves []Wave

	// Unreachable lists versioned layers that received no action and still sit
	// below the ceiling.
	Unreachable []string

	// Skipped lists layers without a version.
	Skipped []string

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time
}

// Wave is one batch of layer upgrade actions sharing a recipe.
type Wave struct {
	Number      int
	Description string
	From        version.Version
	To          version.Version

	// Manual is set for waves built from a Manual recipe or by the trailing
	// manual sweep.
	Manual  bool
	Actions []LayerUpgradeAction
}

// LayerUpgradeAction moves one layer from its current version to the next.
type LayerUpgradeAction struct {
	Layer          string
	Current        version.Version
	Next           version.Version
	RecipeID       string
	RequiresManual bool
	GuideID        string
	Precheck       *Precheck
}

// Precheck asks an operator to confirm that an earlier manual gate on the
// same minor line was already applied.
type Precheck struct {
	From    string
	To      string
	Message string
}

// ManualActionCount returns the number of actions across all waves that
// require human intervention.
func (p *Plan) ManualActionCount() int {
	n := 0
	for _, w := range p.Waves {
		for _, a := range w.Actions {
			if a.RequiresManual {
				n++
			}
		}
	}
	return n
}

// LayerCount returns the number of distinct layers acted on by the plan.
func (p *Plan) LayerCount() int {
	seen := make(map[string]struct{})
	for _, w := range p.Waves {
		for _, a := range w.Actions {
			seen[a.Layer] = struct{}{}
		}
	}
	return len(seen)
}

// FinalVersions returns each acted layer's version after the last wave.
func (p *Plan) FinalVersions() map[string]version.Version {
	out := make(map[string]version.Version)
	for _, w := range p.Waves {
		for _, a := range w.Actions {
			out[a.Layer] = a.Next
		}
	}
	return out
}
