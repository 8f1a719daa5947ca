package config

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// RecipeType is the discriminator of a recipe descriptor.
type RecipeType string

const (
	// RecipeTypeAutomated marks a recipe run by tooling.
	RecipeTypeAutomated RecipeType = "recipe"

	// RecipeTypeManual marks a recipe that is a human-only step.
	RecipeTypeManual RecipeType = "manual"
)

// AllLayersKeyword selects every layer in a manualChanges.layers field.
const AllLayersKeyword = "all"

// LayerDescriptor is a layer as it appears in a layers document.
type LayerDescriptor struct {
	// Name identifies the layer (e.g., "prod-base").
	Name string `json:"name" yaml:"name" validate:"required"`

	// Version is the current version. Empty means the layer is not versioned.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// RecipeDescriptor is a recipe as it appears in a catalog document.
type RecipeDescriptor struct {
	// Type is "recipe" for automated recipes or "manual".
	Type RecipeType `json:"type" yaml:"type" validate:"required,oneof=recipe manual"`

	// Recipe is the automated recipe identifier. Required for type "recipe".
	Recipe string `json:"recipe,omitempty" yaml:"recipe,omitempty" validate:"required_if=Type recipe"`

	// From lists the exact versions the recipe upgrades from.
	From []string `json:"from" yaml:"from" validate:"min=1,dive,required"`

	// To is the exact version the recipe upgrades to.
	To string `json:"to" yaml:"to" validate:"required"`

	// ManualChanges names the layer suffixes needing human intervention.
	ManualChanges *ManualChanges `json:"manualChanges,omitempty" yaml:"manualChanges,omitempty"`
}

// ManualChanges is the manual gate of a recipe descriptor.
type ManualChanges struct {
	Layers LayerList `json:"layers,omitempty" yaml:"layers,omitempty"`
}

// BucketDescriptor is a bucket as it appears in a catalog document. Bounds
// use the "M.m.x" convention.
type BucketDescriptor struct {
	ID          string `json:"id" yaml:"id" validate:"required"`
	FromVersion string `json:"fromVersion" yaml:"fromVersion" validate:"required"`
	ToVersion   string `json:"toVersion" yaml:"toVersion" validate:"required"`
}

// CatalogDocument is the top-level shape of a catalog file.
type CatalogDocument struct {
	// Target is the default global maximum version.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	Recipes []RecipeDescriptor `json:"recipes" yaml:"recipes" validate:"dive"`
	Buckets []BucketDescriptor `json:"buckets,omitempty" yaml:"buckets,omitempty" validate:"dive"`
}

// LayersDocument is the top-level shape of a layers file and of a plan
// request body.
type LayersDocument struct {
	// Target overrides the catalog's target when set.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	Layers []LayerDescriptor `json:"layers" yaml:"layers" validate:"dive"`
}

// LayerList is either a list of layer suffixes or the keyword "all".
type LayerList struct {
	All   bool
	Names []string
}

// UnmarshalJSON accepts a string array or the string "all".
func (l *LayerList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var keyword string
	if err := json.Unmarshal(data, &keyword); err == nil {
		return l.setKeyword(keyword)
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("layers must be a list of names or %q: %w", AllLayersKeyword, err)
	}
	l.All = false
	l.Names = names
	return nil
}

// MarshalJSON writes "all" or the name list.
func (l LayerList) MarshalJSON() ([]byte, error) {
	if l.All {
		return json.Marshal(AllLayersKeyword)
	}
	if l.Names == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.Names)
}

// UnmarshalYAML accepts a sequence of names or the scalar "all".
func (l *LayerList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return l.setKeyword(node.Value)
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return fmt.Errorf("layers must be a list of names: %w", err)
		}
		l.All = false
		l.Names = names
		return nil
	default:
		return fmt.Errorf("layers must be a list of names or %q (line %d)", AllLayersKeyword, node.Line)
	}
}

func (l *LayerList) setKeyword(s string) error {
	if s != AllLayersKeyword {
		return fmt.Errorf("layers must be a list of names or %q, got %q", AllLayersKeyword, s)
	}
	l.All = true
	l.Names = nil
	return nil
}
