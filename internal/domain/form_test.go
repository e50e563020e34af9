package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLocalID(t *testing.T) {
	id := NewLocalID(FormTypeEarthworksSubgrade)

	assert.True(t, strings.HasPrefix(id, "earthworks_subgrade_"))

	// A UUID suffix makes collisions negligible.
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		next := NewLocalID(FormTypeEarthworksSubgrade)
		assert.False(t, seen[next], "duplicate local ID generated: %s", next)
		seen[next] = true
	}
}

func TestFormTypeIsValid(t *testing.T) {
	for _, ft := range FormTypes() {
		assert.True(t, ft.IsValid(), "form type %q should be valid", ft)
	}
	assert.False(t, FormType("earthworks").IsValid())
	assert.False(t, FormType("").IsValid())
}

func TestSyncStatusIsValid(t *testing.T) {
	assert.True(t, SyncStatusPending.IsValid())
	assert.True(t, SyncStatusSynced.IsValid())
	assert.True(t, SyncStatusFailed.IsValid())
	assert.False(t, SyncStatus("in-flight").IsValid())
}

func TestCapturedFormClone(t *testing.T) {
	form := &CapturedForm{
		LocalID:  "concrete_placement_1_abc",
		FormType: FormTypeConcretePlacement,
		Fields:   map[string]any{"slump_mm": 80.0},
		Results: InspectionResultSet{
			"placement": {"item-1": {Result: ItemResultPass}},
		},
		Evidence: []EvidenceFile{{Name: "pour.jpg", Data: []byte{1, 2, 3}}},
	}

	clone := form.Clone()
	clone.Fields["slump_mm"] = 95.0
	clone.Results["placement"]["item-1"] = ItemRecord{Result: ItemResultFail}
	clone.Evidence[0].Data[0] = 9

	assert.Equal(t, 80.0, form.Fields["slump_mm"])
	assert.Equal(t, ItemResultPass, form.Results["placement"]["item-1"].Result)
	assert.Equal(t, byte(1), form.Evidence[0].Data[0])
}

func TestPendingEvidence(t *testing.T) {
	form := &CapturedForm{
		Evidence: []EvidenceFile{
			{Name: "a.jpg", URL: "https://files.example.com/a.jpg"},
		},
	}
	assert.False(t, form.PendingEvidence())

	form.Evidence = append(form.Evidence, EvidenceFile{Name: "b.jpg", Data: []byte{1}})
	assert.True(t, form.PendingEvidence())
}
