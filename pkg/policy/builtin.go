package policy

import (
	"time"
)

// MaxLayersPerWave is the wave size above which wave-fanout warns.
const MaxLayersPerWave = 10

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		manualGuidePolicy(),
		unreachableLayersPolicy(),
		waveFanoutPolicy(),
		precheckReviewPolicy(),
	}
}

// manualGuidePolicy requires every manual action to point at a migration guide.
func manualGuidePolicy() Policy {
	return Policy{
		Name:        "manual-guide-required",
		Description: "Every action that requires manual changes must reference a migration guide",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"manual", "guides"},
		UpdatedAt:   time.Now(),
		Rego: `package layerwave.policies.manual_guide

import rego.v1

deny contains violation if {
	some wave in input.plan.waves
	some action in wave.layers
	action.requiresManual
	not action.migrationGuide
	violation := {
		"message": sprintf("Layer %s requires manual changes in wave %v but has no migration guide", [action.name, wave.waveNumber]),
		"severity": "error",
		"layer": action.name,
		"wave": wave.waveNumber,
	}
}
`,
	}
}

// unreachableLayersPolicy surfaces layers the plan could not move.
func unreachableLayersPolicy() Policy {
	return Policy{
		Name:        "unreachable-layers",
		Description: "Warns about versioned layers below the ceiling that no recipe can move",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"coverage"},
		UpdatedAt:   time.Now(),
		Rego: `package layerwave.policies.unreachable

import rego.v1

deny contains violation if {
	some layer in input.plan.unreachable
	violation := {
		"message": sprintf("Layer %s is below ceiling %s but no recipe applies to its version", [layer, input.plan.ceiling]),
		"severity": "warning",
		"layer": layer,
	}
}
`,
	}
}

// waveFanoutPolicy warns when one wave touches many layers at once.
func waveFanoutPolicy() Policy {
	return Policy{
		Name:        "wave-fanout",
		Description: "Warns when a single wave upgrades more than 10 layers",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"blast-radius"},
		UpdatedAt:   time.Now(),
		Rego: `package layerwave.policies.fanout

import rego.v1

max_layers_per_wave := 10

deny contains violation if {
	some wave in input.plan.waves
	count(wave.layers) > max_layers_per_wave
	violation := {
		"message": sprintf("Wave %v upgrades %v layers (limit %v); consider splitting it", [wave.waveNumber, count(wave.layers), max_layers_per_wave]),
		"severity": "warning",
		"wave": wave.waveNumber,
	}
}
`,
	}
}

// precheckReviewPolicy lists every precheck an operator must confirm.
func precheckReviewPolicy() Policy {
	return Policy{
		Name:        "precheck-review",
		Description: "Lists the manual prechecks operators must confirm before the first wave",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"manual", "prechecks"},
		UpdatedAt:   time.Now(),
		Rego: `package layerwave.policies.precheck

import rego.v1

deny contains violation if {
	some wave in input.plan.waves
	some action in wave.layers
	action.precheck
	violation := {
		"message": sprintf("Confirm the %s to %s manual gate on layer %s before wave %v", [action.precheck.fromVersion, action.precheck.toVersion, action.name, wave.waveNumber]),
		"severity": "info",
		"layer": action.name,
		"wave": wave.waveNumber,
	}
}
`,
	}
}
