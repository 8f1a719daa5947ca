package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/layerwave/layerwave/pkg/engine"
)

// Format is the encoding of a planning document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// FormatFromPath infers the document format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", engine.NewInputFormatError(
			fmt.Sprintf("unsupported document extension %q (want .yaml, .yml, .json or .cue)", filepath.Ext(path)), nil)
	}
}

// Parser reads catalog and layer documents in any supported format and
// validates them before they reach the planner.
type Parser struct {
	schemas   *SchemaRegistry
	validator *validator.Validate
	logger    zerolog.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithParserLogger sets the logger used by the parser.
func WithParserLogger(logger zerolog.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logger.With().Str("component", "config").Logger()
	}
}

// WithSchemaRegistry replaces the built-in schema registry.
func WithSchemaRegistry(sr *SchemaRegistry) ParserOption {
	return func(p *Parser) {
		p.schemas = sr
	}
}

// NewParser creates a new document parser.
func NewParser(opts ...ParserOption) *Parser {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	p := &Parser{
		schemas:   NewSchemaRegistry(),
		validator: v,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Schemas returns the parser's schema registry.
func (p *Parser) Schemas() *SchemaRegistry {
	return p.schemas
}

// LoadCatalog reads and decodes a catalog file.
func (p *Parser) LoadCatalog(ctx context.Context, path string) (*Catalog, error) {
	data, format, err := p.read(ctx, path)
	if err != nil {
		return nil, err
	}

	cat, err := p.ParseCatalog(data, format, path)
	if err != nil {
		return nil, err
	}
	cat.Source = path

	p.logger.Debug().
		Str("path", path).
		Int("recipes", cat.Recipes.Len()).
		Int("buckets", cat.Buckets.Len()).
		Msg("Catalog loaded")

	return cat, nil
}

// ParseCatalog decodes catalog document bytes. The name is used in CUE
// diagnostics only.
func (p *Parser) ParseCatalog(data []byte, format Format, name string) (*Catalog, error) {
	var doc CatalogDocument
	if err := p.unmarshal(data, format, name, SchemaCatalog, &doc); err != nil {
		return nil, err
	}
	if err := p.validateStruct(&doc); err != nil {
		return nil, err
	}
	return doc.Decode()
}

// LoadLayers reads and validates a layers file.
func (p *Parser) LoadLayers(ctx context.Context, path string) (*LayersDocument, error) {
	data, format, err := p.read(ctx, path)
	if err != nil {
		return nil, err
	}
	return p.ParseLayers(data, format, path)
}

// ParseLayers decodes layers document bytes.
func (p *Parser) ParseLayers(data []byte, format Format, name string) (*LayersDocument, error) {
	var doc LayersDocument
	if err := p.unmarshal(data, format, name, SchemaLayers, &doc); err != nil {
		return nil, err
	}
	if err := p.validateStruct(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (p *Parser) read(ctx context.Context, path string) ([]byte, Format, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("loading %s aborted: %w", path, err)
	}

	format, err := FormatFromPath(path)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, format, nil
}

// unmarshal decodes data into out. CUE sources are first checked against
// the named schema and then exported as JSON.
func (p *Parser) unmarshal(data []byte, format Format, name, schema string, out interface{}) error {
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, out); err != nil {
			return engine.NewInputFormatError("malformed YAML document", err).WithDetail("source", name)
		}
		return nil

	case FormatJSON:
		if err := json.Unmarshal(data, out); err != nil {
			return engine.NewInputFormatError("malformed JSON document", err).WithDetail("source", name)
		}
		return nil

	case FormatCUE:
		val := p.schemas.Compile(data, name)
		if err := val.Err(); err != nil {
			return engine.NewInputFormatError("malformed CUE document", err).
				WithDetail("source", name).
				WithDetail("diagnostics", diagnostics(err))
		}
		if err := p.schemas.Validate(schema, val); err != nil {
			return engine.NewInputFormatError("document does not match the "+schema+" schema", err).
				WithDetail("source", name).
				WithDetail("diagnostics", diagnostics(err))
		}

		raw, err := val.MarshalJSON()
		if err != nil {
			return engine.NewInputFormatError("CUE document is not exportable", err).WithDetail("source", name)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return engine.NewInputFormatError("malformed CUE document", err).WithDetail("source", name)
		}
		return nil

	default:
		return engine.NewInputFormatError(fmt.Sprintf("unsupported document format %q", format), nil)
	}
}

// validateStruct runs struct-tag validation and reports the first failing
// field by its document path.
func (p *Parser) validateStruct(doc interface{}) error {
	err := p.validator.Struct(doc)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return engine.NewInputFormatError("document validation failed", err)
	}

	fe := verrs[0]
	return engine.NewInputFormatError(describeFieldError(fe), err).WithField(documentPath(fe.Namespace()))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
	}
}

// documentPath drops the Go root type from a validator namespace.
func documentPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// diagnostics converts CUE errors to "file:line:col: message" strings.
func diagnostics(err error) []string {
	var out []string
	for _, e := range cueerrors.Errors(err) {
		msg := cueerrors.Details(e, nil)
		pos := cueerrors.Positions(e)
		if len(pos) == 0 {
			out = append(out, strings.TrimSpace(msg))
			continue
		}
		out = append(out, fmt.Sprintf("%s:%d:%d: %s",
			pos[0].Filename(), pos[0].Line(), pos[0].Column(), strings.TrimSpace(msg)))
	}
	return out
}
