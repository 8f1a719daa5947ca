package config

import (
	"errors"
	"fmt"

	"github.com/layerwave/layerwave/pkg/catalog"
	"github.com/layerwave/layerwave/pkg/engine"
	"github.com/layerwave/layerwave/pkg/version"
)

// Catalog is the typed form of a catalog document.
type Catalog struct {
	Recipes *catalog.RecipeCatalog
	Buckets *catalog.BucketCatalog

	// Target is the catalog's default global maximum, nil when unset.
	Target *version.Version

	// Source is the file the catalog was read from, if any.
	Source string
}

// Decode converts the document into typed recipe and bucket catalogs.
// Any malformed entry fails the whole document with an input format error
// naming the offending field.
func (d *CatalogDocument) Decode() (*Catalog, error) {
	recipes := make([]catalog.Recipe, 0, len(d.Recipes))
	for i, rd := range d.Recipes {
		r, err := DecodeRecipe(rd)
		if err != nil {
			return nil, withFieldPrefix(err, fmt.Sprintf("recipes[%d]", i))
		}
		recipes = append(recipes, r)
	}

	buckets := make([]catalog.Bucket, 0, len(d.Buckets))
	for i, bd := range d.Buckets {
		b, err := DecodeBucket(bd)
		if err != nil {
			return nil, withFieldPrefix(err, fmt.Sprintf("buckets[%d]", i))
		}
		buckets = append(buckets, b)
	}

	cat := &Catalog{
		Recipes: catalog.NewRecipeCatalog(recipes),
		Buckets: catalog.NewBucketCatalog(buckets),
	}

	if d.Target != "" {
		t, err := version.Parse(d.Target)
		if err != nil {
			return nil, engine.NewInputFormatError("invalid target version", err).WithField("target")
		}
		cat.Target = &t
	}

	return cat, nil
}

// DecodeRecipe converts a single recipe descriptor.
func DecodeRecipe(d RecipeDescriptor) (catalog.Recipe, error) {
	if len(d.From) == 0 {
		return catalog.Recipe{}, engine.NewInputFormatError("recipe has no source versions", nil).WithField("from")
	}

	from := make([]version.Version, 0, len(d.From))
	for i, s := range d.From {
		v, err := version.Parse(s)
		if err != nil {
			return catalog.Recipe{}, engine.NewInputFormatError("invalid source version", err).
				WithField(fmt.Sprintf("from[%d]", i))
		}
		from = append(from, v)
	}

	to, err := version.Parse(d.To)
	if err != nil {
		return catalog.Recipe{}, engine.NewInputFormatError("invalid target version", err).WithField("to")
	}

	manual := catalog.LayerSelector{}
	if d.ManualChanges != nil {
		if d.ManualChanges.Layers.All {
			manual = catalog.AllLayers()
		} else {
			manual = catalog.SelectLayers(d.ManualChanges.Layers.Names...)
		}
	}

	switch d.Type {
	case RecipeTypeAutomated:
		if d.Recipe == "" {
			return catalog.Recipe{}, engine.NewInputFormatError("automated recipe has no identifier", nil).WithField("recipe")
		}
		return catalog.Automated(d.Recipe, from, to, manual), nil
	case RecipeTypeManual:
		return catalog.Manual(from, to, manual), nil
	default:
		return catalog.Recipe{}, engine.NewInputFormatError(
			fmt.Sprintf("unknown recipe type %q", d.Type), nil).WithField("type")
	}
}

// DecodeBucket converts a single bucket descriptor. The lower bound's patch
// becomes 0 and the upper bound's patch becomes the bucket patch ceiling.
func DecodeBucket(d BucketDescriptor) (catalog.Bucket, error) {
	if d.ID == "" {
		return catalog.Bucket{}, engine.NewInputFormatError("bucket has no id", nil).WithField("id")
	}

	from, err := version.ParseBound(d.FromVersion, 0)
	if err != nil {
		return catalog.Bucket{}, engine.NewInputFormatError("invalid bucket lower bound", err).WithField("fromVersion")
	}

	to, err := version.ParseBound(d.ToVersion, version.BucketPatchCeiling)
	if err != nil {
		return catalog.Bucket{}, engine.NewInputFormatError("invalid bucket upper bound", err).WithField("toVersion")
	}

	return catalog.NewBucket(d.ID, from, to), nil
}

// Decode converts the document into planner layers and the optional target
// override.
func (d *LayersDocument) Decode() ([]engine.Layer, *version.Version, error) {
	layers := make([]engine.Layer, 0, len(d.Layers))
	seen := make(map[string]struct{}, len(d.Layers))

	for i, ld := range d.Layers {
		field := fmt.Sprintf("layers[%d]", i)

		if ld.Name == "" {
			return nil, nil, engine.NewInputFormatError("layer has no name", nil).WithField(field + ".name")
		}
		if _, dup := seen[ld.Name]; dup {
			return nil, nil, engine.NewInputFormatError("duplicate layer name", nil).
				WithField(field + ".name").
				WithLayer(ld.Name)
		}
		seen[ld.Name] = struct{}{}

		layer := engine.Layer{Name: ld.Name}
		if ld.Version != "" {
			v, err := version.Parse(ld.Version)
			if err != nil {
				return nil, nil, engine.NewInputFormatError("invalid layer version", err).
					WithField(field + ".version").
					WithLayer(ld.Name)
			}
			layer.Version = &v
		}
		layers = append(layers, layer)
	}

	if d.Target == "" {
		return layers, nil, nil
	}

	t, err := version.Parse(d.Target)
	if err != nil {
		return nil, nil, engine.NewInputFormatError("invalid target version", err).WithField("target")
	}
	return layers, &t, nil
}

// ResolveTarget picks the global maximum for a run: an explicit override
// wins, then the catalog default. A run without either is rejected.
func ResolveTarget(override string, fromLayers *version.Version, cat *Catalog) (version.Version, error) {
	if override != "" {
		v, err := version.Parse(override)
		if err != nil {
			return version.Version{}, engine.NewInputFormatError("invalid target version", err).WithField("target")
		}
		return v, nil
	}
	if fromLayers != nil {
		return *fromLayers, nil
	}
	if cat != nil && cat.Target != nil {
		return *cat.Target, nil
	}
	return version.Version{}, engine.NewInputFormatError("no target version given", nil).WithField("target")
}

// withFieldPrefix prefixes the field path of an engine error.
func withFieldPrefix(err error, prefix string) error {
	var ee *engine.EngineError
	if !errors.As(err, &ee) {
		return err
	}
	if ee.Field == "" {
		ee.Field = prefix
	} else {
		ee.Field = prefix + "." + ee.Field
	}
	return ee
}
