package forms

import (
	"fmt"
	"strings"
	"time"

	"github.com/conformly/fieldsync/internal/domain"
)

// defaultMaxTextLen bounds free-text fields whose schema does not set max_len.
const defaultMaxTextLen = 2000

// dateLayouts are the accepted encodings for date fields.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// Validate checks raw field values against the schema for the given form
// type and returns the validated field map.
//
// Every violation found is collected into a single domain.ValidationError so
// the caller can present a complete correction list. Unknown form types fail
// with ErrUnsupportedFormType.
func (r *Registry) Validate(formType domain.FormType, raw map[string]any) (map[string]any, error) {
	const op = "forms.validate"

	schema, err := r.Get(formType)
	if err != nil {
		return nil, err
	}

	ve := &domain.ValidationError{Op: op, Fields: map[string]string{}}
	out := make(map[string]any, len(raw))

	for _, spec := range schema.Fields {
		value, present := raw[spec.Name]
		if !present || value == nil {
			if spec.Required {
				ve.Fields[spec.Name] = "is required"
			}
			continue
		}
		normalized, reason := checkField(spec, value)
		if reason != "" {
			ve.Fields[spec.Name] = reason
			continue
		}
		out[spec.Name] = normalized
	}

	// Anything not declared must be on the extras allow-list.
	for name, value := range raw {
		if _, declared := schema.Field(name); declared {
			continue
		}
		if schema.allowsExtra(name) {
			out[name] = value
			continue
		}
		ve.Fields[name] = "is not a recognized field for this form type"
	}

	if len(ve.Fields) > 0 {
		return nil, ve
	}
	return out, nil
}

// checkField validates one value against its spec. Returns the normalized
// value and an empty reason on success.
func checkField(spec FieldSpec, value any) (any, string) {
	switch spec.Kind {
	case FieldBool:
		b, ok := value.(bool)
		if !ok {
			return nil, "must be true or false"
		}
		return b, ""

	case FieldNumber:
		n, ok := toFloat(value)
		if !ok {
			return nil, "must be a number"
		}
		if spec.Min != nil && n < *spec.Min {
			return nil, fmt.Sprintf("must be at least %v", *spec.Min)
		}
		if spec.Max != nil && n > *spec.Max {
			return nil, fmt.Sprintf("must be at most %v", *spec.Max)
		}
		return n, ""

	case FieldText:
		s, ok := value.(string)
		if !ok {
			return nil, "must be text"
		}
		maxLen := spec.MaxLen
		if maxLen == 0 {
			maxLen = defaultMaxTextLen
		}
		if len(s) > maxLen {
			return nil, fmt.Sprintf("must be %d characters or less", maxLen)
		}
		return s, ""

	case FieldDate:
		s, ok := value.(string)
		if !ok {
			return nil, "must be a date string"
		}
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, s); err == nil {
				return s, ""
			}
		}
		return nil, "must be an RFC 3339 timestamp or YYYY-MM-DD date"

	case FieldPhoto, FieldSignature:
		// Stored as a file reference: either a local evidence name or an
		// already-uploaded URL.
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, "must be a file reference"
		}
		return s, ""
	}

	return nil, fmt.Sprintf("has unsupported field kind %q", spec.Kind)
}

// toFloat accepts the numeric shapes JSON decoding and Go callers produce.
func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
