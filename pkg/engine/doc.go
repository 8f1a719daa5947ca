// Package engine computes upgrade waves for versioned infrastructure layers.
//
// # Overview
//
// A run takes a set of layers, a recipe catalog, a bucket catalog and a
// target version, and produces an ordered list of waves:
//
//  1. Ceiling - The bucket containing the lowest layer version caps the run;
//     without one the target is the ceiling
//  2. Recipes - Recipes are visited once in ascending target order, and every
//     layer a recipe applies to joins that recipe's wave
//  3. Manual - Layers still below the ceiling are offered manual recipes in a
//     single trailing wave
//
// Layers without a version are skipped. Versioned layers that no recipe can
// move while below the ceiling are reported as unreachable.
//
// # Core Domain Types
//
//   - Layer: A named, optionally versioned unit of infrastructure
//   - Request: The inputs of one run
//   - Plan: The ordered waves plus the ceiling, bucket and unreachable layers
//   - Wave: One step of the run, bound to a single recipe
//   - LayerUpgradeAction: The move of one layer within a wave
//   - Precheck: A manual gate to confirm before the first wave
//
// Plans serialize through Documents, which yields the camelCase wire form
// shared by the CLI, the HTTP API and the report archive.
//
// # Error Classification
//
// Errors carry a class and a code:
//
//   - Input: Malformed documents, invalid versions, duplicate layers, and
//     plans that break their own ordering rules (code VALIDATION_ERROR)
//   - Policy: A plan denied by an enforced policy
//   - NotFound: A lookup for something that does not exist
//   - Internal: Failures of collaborators such as storage
//
// Use the helpers to inspect them:
//
//	if IsInput(err) {
//	    // the caller must fix the documents
//	}
//
// # Example Usage
//
//	planner := NewPlanner(WithLogger(logger))
//	plan, err := planner.Plan(ctx, Request{
//	    Layers:  layers,
//	    Recipes: recipes,
//	    Buckets: buckets,
//	    Target:  target,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := ValidatePlan(plan, layers); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// A Planner holds no per-run state and may be shared between goroutines.
package engine
