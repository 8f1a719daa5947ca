// Package config loads the documents a planning run is built from: the
// recipe catalog (recipes, buckets and an optional default target) and the
// list of layers with their current versions.
//
// # Formats
//
// Documents can be written in YAML, JSON or CUE; the format is chosen by
// file extension. CUE documents are additionally unified with the built-in
// #Catalog or #Layers schema before they are decoded, so CUE users get
// positioned diagnostics.
//
// # Validation
//
// Every document passes struct-tag validation and a typed decode step.
// Any problem (unknown recipe type, missing recipe identifier, empty source
// list, unparseable version, duplicate layer name) is reported as an
// engine input format error naming the document path of the field, e.g.
// "recipes[2].from[0]". Nothing reaches the planner until the whole document
// is valid.
//
// # Usage Example
//
//	parser := config.NewParser(config.WithParserLogger(logger))
//
//	cat, err := parser.LoadCatalog(ctx, "catalog.yaml")
//	if err != nil {
//	    return err
//	}
//
//	doc, err := parser.LoadLayers(ctx, "layers.yaml")
//	if err != nil {
//	    return err
//	}
//	layers, target, err := doc.Decode()
//
// # Hot Reload
//
// CatalogWatcher watches a catalog file with fsnotify and hands every
// successfully parsed revision to a callback. A revision that fails to parse
// is logged and dropped; callers keep serving the previous catalog.
package config
