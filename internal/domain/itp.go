// Package domain contains core business types for offline inspection capture.
//
// This file implements the derived-state calculation for inspection test
// plan (ITP) result sets: completion percentage and overall status. Both
// functions are pure, deterministic, and safe to call repeatedly on the
// same input.
package domain

import "math"

// =============================================================================
// Inspection Results
// =============================================================================

// ItemResult is the assessment recorded against a single ITP checklist item.
type ItemResult string

const (
	ItemResultPass ItemResult = "pass"
	ItemResultFail ItemResult = "fail"
	ItemResultNA   ItemResult = "na"
)

// IsValid returns true if the result is one of the three assessable tokens.
// Any other value, including empty, means the item has not been assessed.
func (r ItemResult) IsValid() bool {
	switch r {
	case ItemResultPass, ItemResultFail, ItemResultNA:
		return true
	}
	return false
}

// ItemRecord holds everything recorded against one checklist item.
type ItemRecord struct {
	Result ItemResult     `json:"result,omitempty"`
	Notes  string         `json:"notes,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// InspectionResultSet maps section ID -> item ID -> recorded values.
// Absence of an entry means "not yet assessed" and does not count toward
// completion.
type InspectionResultSet map[string]map[string]ItemRecord

func (rs InspectionResultSet) clone() InspectionResultSet {
	out := make(InspectionResultSet, len(rs))
	for section, items := range rs {
		cp := make(map[string]ItemRecord, len(items))
		for id, rec := range items {
			cp[id] = rec
		}
		out[section] = cp
	}
	return out
}

// =============================================================================
// Overall Status
// =============================================================================

// OverallStatus is the derived lifecycle state of an ITP instance.
type OverallStatus string

const (
	OverallStatusPending    OverallStatus = "pending"
	OverallStatusInProgress OverallStatus = "in_progress"
	OverallStatusCompleted  OverallStatus = "completed"
)

// =============================================================================
// Derived-State Calculation
// =============================================================================

// CalculateCompletion computes the completion percentage of a result set.
//
// An item counts as assessed only when its result is one of pass|fail|na.
// The denominator is the number of items with any recorded entry, not the
// full item count of the form template, so an untouched form reads 0/0 and
// yields 0 rather than dividing by zero.
func CalculateCompletion(results InspectionResultSet) int {
	var total, assessed int
	for _, items := range results {
		for _, rec := range items {
			total++
			if rec.Result.IsValid() {
				assessed++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(assessed) / float64(total)))
}

// DeriveStatus computes the overall status of an ITP instance.
//
// An explicit submission always yields completed, regardless of completion
// percentage: a user may deliberately submit an incomplete inspection.
// Otherwise any progress yields in_progress, and a blank instance keeps
// whatever status it already had, defaulting to pending.
func DeriveStatus(isSubmitting bool, completion int, previous OverallStatus) OverallStatus {
	if isSubmitting {
		return OverallStatusCompleted
	}
	if completion > 0 {
		return OverallStatusInProgress
	}
	if previous != "" {
		return previous
	}
	return OverallStatusPending
}
