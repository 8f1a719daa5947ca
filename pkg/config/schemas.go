package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Schema names registered by default.
const (
	SchemaCatalog = "catalog"
	SchemaLayers  = "layers"
)

// SchemaRegistry manages CUE schemas for document validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	// Built-in schemas are constants; a compile failure is a programming error.
	for name, src := range map[string]string{
		SchemaCatalog: builtinDefinitions + "\n#Catalog\n",
		SchemaLayers:  builtinDefinitions + "\n#Layers\n",
	} {
		if err := sr.RegisterSchema(name, src); err != nil {
			panic(err)
		}
	}

	return sr
}

// RegisterSchema registers a CUE schema with the given name. The value of the
// compiled source is the constraint documents are unified with.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Compile compiles CUE document bytes in the registry's context so the
// result can be unified with registered schemas.
func (sr *SchemaRegistry) Compile(data []byte, filename string) cue.Value {
	return sr.ctx.CompileBytes(data, cue.Filename(filename))
}

// Validate unifies a value with a named schema and requires the result to be
// concrete.
func (sr *SchemaRegistry) Validate(schemaName string, data cue.Value) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version strings are checked by the decoder so that malformed versions
// report the field they came from; the schema only constrains shape.
const builtinDefinitions = `
#Layer: {
	name:     string & !=""
	version?: string
}

#ManualChanges: {
	layers?: [...string] | "all"
}

#Recipe: {
	type:           "recipe" | "manual"
	recipe?:        string
	from:           [string, ...string]
	to:             string
	manualChanges?: #ManualChanges

	if type == "recipe" {
		recipe: string & !=""
	}
}

#Bucket: {
	id:          string & !=""
	fromVersion: string
	toVersion:   string
}

#Catalog: {
	target?:  string
	recipes:  [...#Recipe]
	buckets?: [...#Bucket]
}

#Layers: {
	target?: string
	layers:  [...#Layer]
}
`
