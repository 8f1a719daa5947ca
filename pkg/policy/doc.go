// Package policy provides Open Policy Agent (OPA) checks for computed
// upgrade plans.
//
// Policies are Rego modules that define a `deny` set. Each member is either
// a string or an object with message, severity, layer and wave keys. The
// plan is available to policies as `input.plan`, with waves in the same wire
// form the API returns:
//
//	input.plan.waves[_].waveNumber
//	input.plan.waves[_].layers[_].requiresManual
//	input.plan.waves[_].layers[_].migrationGuide
//	input.plan.waves[_].layers[_].precheck.fromVersion
//	input.plan.unreachable[_]
//
// # Built-in Policies
//
//   - manual-guide-required (error): manual actions must name a migration guide
//   - unreachable-layers (warning): layers below the ceiling no recipe can move
//   - wave-fanout (warning): waves that upgrade more than 10 layers
//   - precheck-review (info): prechecks operators must confirm
//
// Findings with error or critical severity deny the plan; Enforce turns a
// denied result into an engine policy error.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"./policies"}); err != nil {
//	    return err
//	}
//
//	result, err := eng.EvaluatePlan(ctx, plan, "plan")
//	if err != nil {
//	    return err
//	}
//	if err := policy.Enforce(result); err != nil {
//	    return err
//	}
//
// # Custom Policies
//
// A .rego file becomes a policy named after the file. Its leading comment
// block is the description and may contain a "# severity: error" line; the
// default severity for user policies is warning. JSON files hold a full
// Policy object. Loader.Watch reloads user policies on change and
// Engine.ReplacePolicies swaps them in without touching the built-ins.
package policy
