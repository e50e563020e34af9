// Package forms enforces per-form-type field constraints before a captured
// record is queued or transmitted.
//
// Each form type in the closed set carries a schema declared in YAML and
// embedded into the binary. Validation is pure and synchronous; it never
// touches the network or the local queue.
package forms

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Field Kinds
// =============================================================================

// FieldKind is the declared value type of a schema field.
type FieldKind string

const (
	FieldBool      FieldKind = "bool"
	FieldNumber    FieldKind = "number"
	FieldText      FieldKind = "text"
	FieldDate      FieldKind = "date"
	FieldPhoto     FieldKind = "photo"
	FieldSignature FieldKind = "signature"
)

// IsValid returns true if the kind is a recognized value.
func (k FieldKind) IsValid() bool {
	switch k {
	case FieldBool, FieldNumber, FieldText, FieldDate, FieldPhoto, FieldSignature:
		return true
	}
	return false
}

// =============================================================================
// Schema Types
// =============================================================================

// FieldSpec declares the constraints on a single named field.
type FieldSpec struct {
	Name     string    `yaml:"name"`
	Label    string    `yaml:"label"`
	Kind     FieldKind `yaml:"kind"`
	Required bool      `yaml:"required"`

	// Numeric range, meaningful only for number fields. A nil bound is
	// unconstrained.
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`

	// MaxLen limits text fields; 0 means the package default applies.
	MaxLen int `yaml:"max_len"`
}

// Schema is the full field contract for one form type.
type Schema struct {
	FormType string      `yaml:"form_type"`
	Title    string      `yaml:"title"`
	Fields   []FieldSpec `yaml:"fields"`

	// Extras is the allow-list of additional untyped key/value entries
	// permitted alongside the declared fields. Anything else is rejected.
	Extras []string `yaml:"extras"`
}

// Field returns the spec for the named field, if declared.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// allowsExtra reports whether the named key is on the extras allow-list.
func (s *Schema) allowsExtra(name string) bool {
	for _, e := range s.Extras {
		if e == name {
			return true
		}
	}
	return false
}

// parseSchema decodes and sanity-checks a single YAML schema document.
func parseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if s.FormType == "" {
		return nil, fmt.Errorf("schema missing form_type")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema %s: field with empty name", s.FormType)
		}
		if !f.Kind.IsValid() {
			return nil, fmt.Errorf("schema %s: field %s has unknown kind %q", s.FormType, f.Name, f.Kind)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("schema %s: duplicate field %s", s.FormType, f.Name)
		}
		seen[f.Name] = true
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return nil, fmt.Errorf("schema %s: field %s has min > max", s.FormType, f.Name)
		}
	}
	return &s, nil
}
