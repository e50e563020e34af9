package forms

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conformly/fieldsync/internal/domain"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	require.NoError(t, err)
	return r
}

func TestNewRegistryCoversAllFormTypes(t *testing.T) {
	r := newTestRegistry(t)
	for _, ft := range domain.FormTypes() {
		schema, err := r.Get(ft)
		require.NoError(t, err)
		assert.Equal(t, string(ft), schema.FormType)
		assert.NotEmpty(t, schema.Fields)
	}
}

func TestValidateUnsupportedFormType(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Validate(domain.FormType("asphalt_paving"), map[string]any{})
	assert.True(t, errors.Is(err, ErrUnsupportedFormType))
}

func TestValidateCollectsAllViolations(t *testing.T) {
	r := newTestRegistry(t)

	// Missing two required fields, one out-of-range number, one unknown key.
	_, err := r.Validate(domain.FormTypeEarthworksSubgrade, map[string]any{
		"compaction_percent": 120.0,
		"paint_color":        "blue",
	})

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "proof_roll_completed")
	assert.Contains(t, ve.Fields, "level_survey_conforms")
	assert.Contains(t, ve.Fields, "compaction_percent")
	assert.Contains(t, ve.Fields, "paint_color")
	assert.Len(t, ve.Fields, 4)
}

func TestValidateFieldKinds(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name      string
		fields    map[string]any
		wantField string
	}{
		{
			name: "bool field rejects string",
			fields: map[string]any{
				"proof_roll_completed":  "yes",
				"compaction_percent":    95.0,
				"level_survey_conforms": true,
			},
			wantField: "proof_roll_completed",
		},
		{
			name: "number field rejects bool",
			fields: map[string]any{
				"proof_roll_completed":  true,
				"compaction_percent":    true,
				"level_survey_conforms": true,
			},
			wantField: "compaction_percent",
		},
		{
			name: "number below minimum",
			fields: map[string]any{
				"proof_roll_completed":  true,
				"compaction_percent":    -1.0,
				"level_survey_conforms": true,
			},
			wantField: "compaction_percent",
		},
		{
			name: "bad date encoding",
			fields: map[string]any{
				"proof_roll_completed":  true,
				"compaction_percent":    95.0,
				"level_survey_conforms": true,
				"test_date":             "26/08/2026",
			},
			wantField: "test_date",
		},
		{
			name: "empty photo reference",
			fields: map[string]any{
				"proof_roll_completed":  true,
				"compaction_percent":    95.0,
				"level_survey_conforms": true,
				"test_certificate":      "  ",
			},
			wantField: "test_certificate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Validate(domain.FormTypeEarthworksSubgrade, tt.fields)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Fields, tt.wantField)
			assert.Len(t, ve.Fields, 1)
		})
	}
}

func TestValidateAcceptsCompleteForm(t *testing.T) {
	r := newTestRegistry(t)

	validated, err := r.Validate(domain.FormTypeEarthworksSubgrade, map[string]any{
		"proof_roll_completed":     true,
		"compaction_percent":       98, // ints are accepted for number fields
		"moisture_content_percent": 11.5,
		"level_survey_conforms":    true,
		"test_date":                "2026-08-26",
		"notes":                    "NDM tests at chainage 450",
		"lab_reference":            "GEO-2217", // on the extras allow-list
	})

	require.NoError(t, err)
	assert.Equal(t, 98.0, validated["compaction_percent"])
	assert.Equal(t, "GEO-2217", validated["lab_reference"])
	assert.Equal(t, true, validated["proof_roll_completed"])
}

func TestValidateOptionalFieldsMayBeAbsent(t *testing.T) {
	r := newTestRegistry(t)

	validated, err := r.Validate(domain.FormTypeEarthworksPreconstruction, map[string]any{
		"survey_control_established": true,
		"erosion_controls_in_place":  true,
		"services_located":           true,
	})

	require.NoError(t, err)
	assert.NotContains(t, validated, "topsoil_strip_depth_mm")
}
