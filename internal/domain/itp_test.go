package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCompletion(t *testing.T) {
	tests := []struct {
		name    string
		results InspectionResultSet
		want    int
	}{
		{
			name:    "nil result set",
			results: nil,
			want:    0,
		},
		{
			name:    "empty result set",
			results: InspectionResultSet{},
			want:    0,
		},
		{
			name: "section with no items",
			results: InspectionResultSet{
				"earthworks": {},
			},
			want: 0,
		},
		{
			name: "all items assessed",
			results: InspectionResultSet{
				"earthworks": {
					"item-1": {Result: ItemResultPass},
					"item-2": {Result: ItemResultFail},
					"item-3": {Result: ItemResultNA},
				},
			},
			want: 100,
		},
		{
			name: "half assessed",
			results: InspectionResultSet{
				"earthworks": {
					"item-1": {Result: ItemResultPass},
					"item-2": {Notes: "waiting on survey"},
				},
			},
			want: 50,
		},
		{
			name: "invalid tokens do not count as assessed",
			results: InspectionResultSet{
				"drainage": {
					"item-1": {Result: ItemResult("maybe")},
					"item-2": {Result: ItemResultPass},
					"item-3": {Result: ItemResult("")},
				},
			},
			want: 33,
		},
		{
			name: "rounding to nearest integer",
			results: InspectionResultSet{
				"concrete": {
					"item-1": {Result: ItemResultPass},
					"item-2": {Result: ItemResultPass},
					"item-3": {Notes: "pending pour"},
				},
			},
			want: 67,
		},
		{
			name: "multiple sections",
			results: InspectionResultSet{
				"a": {
					"item-1": {Result: ItemResultPass},
					"item-2": {Result: ItemResultFail},
				},
				"b": {
					"item-1": {Notes: "not started"},
					"item-2": {Result: ItemResultNA},
				},
			},
			want: 75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCompletion(tt.results)
			assert.Equal(t, tt.want, got)

			// Same input must always yield the same output.
			assert.Equal(t, got, CalculateCompletion(tt.results))
		})
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name         string
		isSubmitting bool
		completion   int
		previous     OverallStatus
		want         OverallStatus
	}{
		{
			name:         "submitting always completes",
			isSubmitting: true,
			completion:   0,
			previous:     "",
			want:         OverallStatusCompleted,
		},
		{
			name:         "submitting wins over previous status",
			isSubmitting: true,
			completion:   40,
			previous:     OverallStatus("approved"),
			want:         OverallStatusCompleted,
		},
		{
			name:       "progress yields in_progress",
			completion: 50,
			previous:   OverallStatus("anything"),
			want:       OverallStatusInProgress,
		},
		{
			name:       "no progress keeps previous status",
			completion: 0,
			previous:   OverallStatus("approved"),
			want:       OverallStatus("approved"),
		},
		{
			name:       "no progress and no previous defaults to pending",
			completion: 0,
			previous:   "",
			want:       OverallStatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveStatus(tt.isSubmitting, tt.completion, tt.previous)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestItemResultIsValid(t *testing.T) {
	assert.True(t, ItemResultPass.IsValid())
	assert.True(t, ItemResultFail.IsValid())
	assert.True(t, ItemResultNA.IsValid())
	assert.False(t, ItemResult("").IsValid())
	assert.False(t, ItemResult("passed").IsValid())
}
