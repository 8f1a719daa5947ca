package catalog

import (
	"sort"

	"github.com/layerwave/layerwave/pkg/version"
)

// Kind distinguishes the two recipe variants.
type Kind int

const (
	// KindAutomated recipes are applied by an upgrade tool, identified by RecipeID.
	KindAutomated Kind = iota
	// KindManual recipes describe a step a human performs.
	KindManual
)

// String returns the descriptor spelling of the kind.
func (k Kind) String() string {
	if k == KindManual {
		return "manual"
	}
	return "recipe"
}

// LayerSelector names the layers a recipe's manual changes apply to.
// The zero value selects no layer.
type LayerSelector struct {
	all   bool
	names map[string]struct{}
}

// AllLayers selects every layer.
func AllLayers() LayerSelector {
	return LayerSelector{all: true}
}

// SelectLayers selects the named layer suffixes.
func SelectLayers(names ...string) LayerSelector {
	s := LayerSelector{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.names[n] = struct{}{}
	}
	return s
}

// All reports whether every layer is selected.
func (s LayerSelector) All() bool { return s.all }

// Includes reports whether suffix is selected, explicitly or through "all".
func (s LayerSelector) Includes(suffix string) bool {
	if s.all {
		return true
	}
	_, ok := s.names[suffix]
	return ok
}

// Names returns the explicitly selected suffixes in sorted order.
func (s LayerSelector) Names() []string {
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Recipe is a version transition rule. It is either Automated, carrying the
// identifier of the tool recipe that performs it, or Manual.
type Recipe struct {
	kind         Kind
	id           string
	from         version.Set
	to           version.Version
	manualLayers LayerSelector
}

// Automated builds a tool-applied recipe.
func Automated(id string, from []version.Version, to version.Version, manual LayerSelector) Recipe {
	return Recipe{kind: KindAutomated, id: id, from: version.NewSet(from...), to: to, manualLayers: manual}
}

// Manual builds a human-applied recipe.
func Manual(from []version.Version, to version.Version, manual LayerSelector) Recipe {
	return Recipe{kind: KindManual, from: version.NewSet(from...), to: to, manualLayers: manual}
}

// Kind returns the recipe variant.
func (r Recipe) Kind() Kind { return r.kind }

// IsManual reports whether the recipe is the Manual variant.
func (r Recipe) IsManual() bool { return r.kind == KindManual }

// ID returns the tool recipe identifier; it is empty for Manual recipes.
func (r Recipe) ID() string { return r.id }

// To returns the target version.
func (r Recipe) To() version.Version { return r.to }

// From returns the set of versions the recipe upgrades from.
func (r Recipe) From() version.Set { return r.from }

// AppliesFrom reports whether v is one of the recipe's source versions.
func (r Recipe) AppliesFrom(v version.Version) bool { return r.from.Contains(v) }

// ManualLayers returns the layer selector of the recipe's manual changes.
func (r Recipe) ManualLayers() LayerSelector { return r.manualLayers }

// GatesLayer reports whether upgrading the layer with this suffix through the
// recipe needs human action: the recipe is Manual, or its manual changes name
// the suffix or "all".
func (r Recipe) GatesLayer(suffix string) bool {
	return r.IsManual() || r.manualLayers.Includes(suffix)
}
