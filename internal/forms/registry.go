package forms

import (
	"embed"
	"errors"
	"fmt"
	"sort"

	"github.com/conformly/fieldsync/internal/domain"
)

//go:embed schemas/*.yaml
var schemaFS embed.FS

// ErrUnsupportedFormType is returned when no schema is registered for a
// form type.
var ErrUnsupportedFormType = errors.New("unsupported form type")

// Registry holds the schema for every supported form type.
//
// The registry is immutable after construction, so it is safe for
// concurrent use.
type Registry struct {
	byType map[domain.FormType]*Schema
}

// NewRegistry loads the embedded schema set.
//
// Every form type in domain.FormTypes must have a schema; a missing or
// malformed schema file is a programming error and fails construction.
func NewRegistry() (*Registry, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}

	byType := make(map[domain.FormType]*Schema, len(entries))
	for _, entry := range entries {
		data, err := schemaFS.ReadFile("schemas/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		schema, err := parseSchema(data)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", entry.Name(), err)
		}
		ft := domain.FormType(schema.FormType)
		if !ft.IsValid() {
			return nil, fmt.Errorf("schema %s: unknown form type %q", entry.Name(), schema.FormType)
		}
		if _, dup := byType[ft]; dup {
			return nil, fmt.Errorf("schema %s: duplicate schema for %q", entry.Name(), schema.FormType)
		}
		byType[ft] = schema
	}

	for _, ft := range domain.FormTypes() {
		if _, ok := byType[ft]; !ok {
			return nil, fmt.Errorf("no schema for form type %q", ft)
		}
	}

	return &Registry{byType: byType}, nil
}

// Get returns the schema for a form type.
// Returns ErrUnsupportedFormType if no schema is registered.
func (r *Registry) Get(formType domain.FormType) (*Schema, error) {
	schema, ok := r.byType[formType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormType, formType)
	}
	return schema, nil
}

// Types returns the registered form types in a stable order.
func (r *Registry) Types() []domain.FormType {
	out := make([]domain.FormType, 0, len(r.byType))
	for ft := range r.byType {
		out = append(out, ft)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
