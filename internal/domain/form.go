// Package domain contains core business types for offline inspection capture.
//
// This file defines the CapturedForm record held in the durable local queue,
// together with the closed set of inspection form types and the sync status
// lifecycle.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Form Types
// =============================================================================

// FormType identifies one of the closed set of inspection form categories.
// The per-type field schema is owned by the forms package.
type FormType string

const (
	FormTypeEarthworksPreconstruction FormType = "earthworks_preconstruction"
	FormTypeEarthworksSubgrade        FormType = "earthworks_subgrade"
	FormTypeDrainageExcavation        FormType = "drainage_excavation"
	FormTypeDrainageBackfill          FormType = "drainage_backfill"
	FormTypeConcreteFormwork          FormType = "concrete_formwork"
	FormTypeConcretePlacement         FormType = "concrete_placement"
)

// FormTypes returns all recognized form types in a stable order.
func FormTypes() []FormType {
	return []FormType{
		FormTypeEarthworksPreconstruction,
		FormTypeEarthworksSubgrade,
		FormTypeDrainageExcavation,
		FormTypeDrainageBackfill,
		FormTypeConcreteFormwork,
		FormTypeConcretePlacement,
	}
}

// String returns the string representation of the form type.
func (t FormType) String() string {
	return string(t)
}

// IsValid returns true if the form type is a recognized value.
func (t FormType) IsValid() bool {
	for _, known := range FormTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// =============================================================================
// Sync Status
// =============================================================================

// SyncStatus is the durable transmission state of a captured form.
//
// A record starts pending, becomes synced only after a confirmed remote
// write, and becomes failed on a remote write error. Failed records move
// back to pending on retry; the in-flight state during transmission is
// transient and never persisted.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// String returns the string representation of the status.
func (s SyncStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSynced, SyncStatusFailed:
		return true
	}
	return false
}

// =============================================================================
// Inspection Status
// =============================================================================

// InspectionStatus is the inspector's verdict on a captured form.
type InspectionStatus string

const (
	InspectionStatusPending  InspectionStatus = "pending"
	InspectionStatusApproved InspectionStatus = "approved"
	InspectionStatusRejected InspectionStatus = "rejected"
)

// IsValid returns true if the status is a recognized value.
func (s InspectionStatus) IsValid() bool {
	switch s {
	case InspectionStatusPending, InspectionStatusApproved, InspectionStatusRejected:
		return true
	}
	return false
}

// =============================================================================
// Evidence Files
// =============================================================================

// EvidenceFile is a photo, document, or signature attached to a form.
//
// Before upload it carries raw bytes; after upload the bytes are dropped and
// URL points at object storage. Exactly one of Data/URL is expected to be
// set at any time.
type EvidenceFile struct {
	Name         string `json:"name"`
	ContentType  string `json:"content_type,omitempty"`
	Data         []byte `json:"data,omitempty"`
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Uploaded returns true once the file has a remote URL.
func (f EvidenceFile) Uploaded() bool {
	return f.URL != ""
}

// =============================================================================
// Captured Form
// =============================================================================

// CapturedForm is a single inspection submission captured on a device.
//
// LocalID is the primary key of the durable local queue and is immutable once
// created. ServerID is assigned by the remote backend on the first confirmed
// write and is never cleared afterward.
type CapturedForm struct {
	LocalID          string              `json:"local_id"`
	ServerID         string              `json:"server_id,omitempty"`
	FormType         FormType            `json:"form_type"`
	ProjectID        string              `json:"project_id"`
	OrganizationID   string              `json:"organization_id,omitempty"`
	InspectorName    string              `json:"inspector_name"`
	InspectionDate   time.Time           `json:"inspection_date"`
	InspectionStatus InspectionStatus    `json:"inspection_status"`
	Comments         string              `json:"comments,omitempty"`
	Fields           map[string]any      `json:"fields,omitempty"`
	Results          InspectionResultSet `json:"results,omitempty"`
	CompletionPct    int                 `json:"completion_pct"`
	OverallStatus    OverallStatus       `json:"overall_status"`
	Evidence         []EvidenceFile      `json:"evidence,omitempty"`
	SyncStatus       SyncStatus          `json:"sync_status"`
	LastSyncError    string              `json:"last_sync_error,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// Clone returns a deep copy of the form. Stores hand out clones so callers
// cannot mutate queued records in place.
func (f *CapturedForm) Clone() *CapturedForm {
	out := *f
	if f.Fields != nil {
		out.Fields = make(map[string]any, len(f.Fields))
		for k, v := range f.Fields {
			out.Fields[k] = v
		}
	}
	if f.Results != nil {
		out.Results = f.Results.clone()
	}
	if f.Evidence != nil {
		out.Evidence = make([]EvidenceFile, len(f.Evidence))
		copy(out.Evidence, f.Evidence)
		for i := range f.Evidence {
			if f.Evidence[i].Data != nil {
				out.Evidence[i].Data = append([]byte(nil), f.Evidence[i].Data...)
			}
		}
	}
	return &out
}

// PendingEvidence reports whether any evidence file still holds raw bytes.
func (f *CapturedForm) PendingEvidence() bool {
	for _, ev := range f.Evidence {
		if !ev.Uploaded() && len(ev.Data) > 0 {
			return true
		}
	}
	return false
}

// NewLocalID generates a queue-local identifier for a captured form.
//
// Format: {formType}_{unixMilli}_{uuid}. The UUID suffix makes collisions
// negligible even across devices that share a clock.
func NewLocalID(formType FormType) string {
	return fmt.Sprintf("%s_%d_%s", formType, time.Now().UnixMilli(), uuid.NewString())
}
