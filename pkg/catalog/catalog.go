// Package catalog holds the read-only recipe and bucket catalogs a planning
// run consults.
package catalog

import (
	"sort"

	"github.com/layerwave/layerwave/pkg/version"
)

// RecipeCatalog is an immutable set of recipes kept in ascending target order.
type RecipeCatalog struct {
	sorted []Recipe
}

// NewRecipeCatalog sorts recipes by target version. Recipes with equal targets
// keep their input order.
func NewRecipeCatalog(recipes []Recipe) *RecipeCatalog {
	sorted := make([]Recipe, len(recipes))
	copy(sorted, recipes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].To().LT(sorted[j].To())
	})
	return &RecipeCatalog{sorted: sorted}
}

// Len returns the number of recipes.
func (c *RecipeCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.sorted)
}

// Sorted returns the recipes in ascending target order. The returned slice
// is a copy.
func (c *RecipeCatalog) Sorted() []Recipe {
	if c == nil {
		return nil
	}
	out := make([]Recipe, len(c.sorted))
	copy(out, c.sorted)
	return out
}

// From returns, in ascending target order, the recipes that upgrade from v.
func (c *RecipeCatalog) From(v version.Version) []Recipe {
	return c.filter(func(r Recipe) bool { return r.AppliesFrom(v) })
}

// ManualFor returns, in ascending target order, the recipes whose manual gate
// applies to the layer with the given suffix.
func (c *RecipeCatalog) ManualFor(suffix string) []Recipe {
	return c.filter(func(r Recipe) bool { return r.GatesLayer(suffix) })
}

// Manual returns the Manual-variant recipes in ascending target order.
func (c *RecipeCatalog) Manual() []Recipe {
	return c.filter(Recipe.IsManual)
}

func (c *RecipeCatalog) filter(keep func(Recipe) bool) []Recipe {
	if c == nil {
		return nil
	}
	var out []Recipe
	for _, r := range c.sorted {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Bucket is a version range that caps how far one planning run may progress.
type Bucket struct {
	ID   string
	From version.Version
	To   version.Version
}

// NewBucket builds a bucket whose bounds are expanded for containment checks:
// the lower bound's patch is forced to 0 and the upper bound's to
// version.BucketPatchCeiling.
func NewBucket(id string, from, to version.Version) Bucket {
	return Bucket{
		ID:   id,
		From: from.WithPatch(0),
		To:   to.WithPatch(version.BucketPatchCeiling),
	}
}

// Contains reports whether v lies within the expanded bounds.
func (b Bucket) Contains(v version.Version) bool {
	return v.GTE(b.From) && v.LTE(b.To)
}

// BucketCatalog is an immutable ordered list of buckets.
type BucketCatalog struct {
	buckets []Bucket
}

// NewBucketCatalog copies buckets into a catalog.
func NewBucketCatalog(buckets []Bucket) *BucketCatalog {
	cp := make([]Bucket, len(buckets))
	copy(cp, buckets)
	return &BucketCatalog{buckets: cp}
}

// Len returns the number of buckets.
func (c *BucketCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.buckets)
}

// Buckets returns a copy of the buckets in input order.
func (c *BucketCatalog) Buckets() []Bucket {
	if c == nil {
		return nil
	}
	out := make([]Bucket, len(c.buckets))
	copy(out, c.buckets)
	return out
}

// FindContaining returns the first bucket, in input order, containing v.
func (c *BucketCatalog) FindContaining(v version.Version) (Bucket, bool) {
	if c == nil {
		return Bucket{}, false
	}
	for _, b := range c.buckets {
		if b.Contains(v) {
			return b, true
		}
	}
	return Bucket{}, false
}
