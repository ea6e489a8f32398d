// Package record builds the JSON payloads published for each scraped
// bill or gazette item. A Builder accumulates untyped fields, and
// Validate is the single source of truth for whether the payload
// matches the extractor's declared schema.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Violation is one schema failure, located by JSON path.
type Violation struct {
	// Path is the JSON pointer into the instance, "" for the root.
	Path    string
	Message string
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Factory compiles record schemas once and hands out Builders bound
// to them. Compilation is expensive enough that a run over thousands
// of bills must not repeat it per record.
type Factory struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewFactory creates an empty Factory.
func NewFactory() *Factory {
	return &Factory{compiled: make(map[string]*jsonschema.Schema)}
}

// Builder accumulates one record's fields against a schema.
type Builder struct {
	schema     *jsonschema.Schema
	languages  []string
	fields     map[string]any
	violations []Violation
}

// NewBuilder returns a Builder bound to the schema at path. The
// languages list feeds localized date parsing via ParseDate.
func (f *Factory) NewBuilder(schemaPath string, languages []string) (*Builder, error) {
	f.mu.Lock()
	schema, ok := f.compiled[schemaPath]
	f.mu.Unlock()
	if !ok {
		compiler := jsonschema.NewCompiler()
		var err error
		schema, err = compiler.Compile(schemaPath)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", schemaPath, err)
		}
		f.mu.Lock()
		f.compiled[schemaPath] = schema
		f.mu.Unlock()
	}
	return &Builder{
		schema:    schema,
		languages: languages,
		fields:    make(map[string]any),
	}, nil
}

// Set stores a field. Values are accepted untyped; only Validate
// decides whether the record is acceptable.
func (b *Builder) Set(key string, value any) {
	b.fields[key] = value
}

// Append adds a value to a list field, creating the list on first use.
func (b *Builder) Append(key string, value any) {
	list, _ := b.fields[key].([]any)
	b.fields[key] = append(list, value)
}

// Get returns a previously set field.
func (b *Builder) Get(key string) (any, bool) {
	v, ok := b.fields[key]
	return v, ok
}

// ParseDate resolves a localized date string under the builder's
// language list and stores it, so it serializes as YYYY-MM-DD.
func (b *Builder) ParseDate(key, raw string) error {
	d, err := ParseLocalizedDate(raw, b.languages)
	if err != nil {
		return err
	}
	b.fields[key] = d
	return nil
}

// Validate serializes the record canonically and checks it against
// the schema. It reports every violating path, not just the first.
func (b *Builder) Validate() (bool, error) {
	payload, err := MarshalCanonical(b.fields)
	if err != nil {
		return false, err
	}
	var instance any
	if err := json.Unmarshal(payload, &instance); err != nil {
		return false, fmt.Errorf("reparse record: %w", err)
	}

	b.violations = nil
	if err := b.schema.Validate(instance); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return false, fmt.Errorf("validate record: %w", err)
		}
		b.violations = collectViolations(ve)
		return false, nil
	}
	return true, nil
}

// Violations returns the failures from the last Validate call.
func (b *Builder) Violations() []Violation {
	return append([]Violation(nil), b.violations...)
}

// ToJSON returns the canonical payload bytes.
func (b *Builder) ToJSON() ([]byte, error) {
	return MarshalCanonical(b.fields)
}

// collectViolations walks the validation error tree and keeps the
// leaves, which carry the concrete instance locations.
func collectViolations(ve *jsonschema.ValidationError) []Violation {
	if len(ve.Causes) == 0 {
		return []Violation{{Path: ve.InstanceLocation, Message: ve.Message}}
	}
	var out []Violation
	for _, cause := range ve.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
