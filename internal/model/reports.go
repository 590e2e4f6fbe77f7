package model

import (
	"strings"
	"time"
)

// Status is the stored lifecycle value of a report.
type Status string

// Stored status values. The asymmetric casing is a compatibility quirk:
// existing documents hold "pending" and "in_progress" in lower case while
// dashboard labels for the other states were persisted verbatim.
const (
	StatusPending       Status = "pending"
	StatusInProgress    Status = "in_progress"
	StatusResolved      Status = "Resolved"
	StatusRejected      Status = "Rejected"
	StatusPendingLegacy Status = "Pending"
)

// Administrator-facing labels.
const (
	LabelPending    = "Pending"
	LabelInProgress = "In Progress"
	LabelResolved   = "Resolved"
	LabelRejected   = "Rejected"
)

// StatusFromLabel converts a dashboard label to the value that gets stored.
// "In Progress" is the only label that is rewritten; the other accepted
// labels are stored verbatim.
func StatusFromLabel(label string) (Status, error) {
	switch label {
	case LabelInProgress:
		return StatusInProgress, nil
	case LabelPending, LabelResolved, LabelRejected,
		string(StatusPending), string(StatusInProgress):
		return Status(label), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Canonical folds the stored variants of a status onto one of the four
// lifecycle states.
func (s Status) Canonical() Status {
	switch strings.ToLower(strings.ReplaceAll(string(s), " ", "_")) {
	case "pending", "":
		return StatusPending
	case "in_progress":
		return StatusInProgress
	case "resolved":
		return StatusResolved
	case "rejected":
		return StatusRejected
	default:
		return s
	}
}

// Label is the administrator-facing name of the status.
func (s Status) Label() string {
	switch s.Canonical() {
	case StatusPending:
		return LabelPending
	case StatusInProgress:
		return LabelInProgress
	case StatusResolved:
		return LabelResolved
	case StatusRejected:
		return LabelRejected
	default:
		return string(s)
	}
}

type Report struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	ImageID          string    `json:"image_id"`
	ProcessedImageID *string   `json:"processed_image_id,omitempty"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Timestamp        time.Time `json:"timestamp"`
	Status           Status    `json:"status"`
	Type             *string   `json:"type,omitempty"`
	Severity         *string   `json:"severity,omitempty"`
	Summary          *string   `json:"summary,omitempty"`
	Location         *string   `json:"location,omitempty"`
}

// HasCoordinates mirrors the dashboard check: a zero coordinate counts as missing.
func (r Report) HasCoordinates() bool {
	return r.Latitude != 0 && r.Longitude != 0
}

// ReportQuery selects reports from the document store.
// An empty OwnerID lists every report.
type ReportQuery struct {
	OwnerID string
}

// ReportFilter narrows a fetched list. Empty fields match everything.
type ReportFilter struct {
	Severity string
	Status   string
	Page     int
	PageSize int
}

// Media holds the resolved image URLs for a report.
type Media struct {
	PreviewURL   string `json:"preview_url,omitempty"`
	FullSizeURL  string `json:"full_size_url,omitempty"`
	DisplayURL   string `json:"display_url,omitempty"`
	ProcessedURL string `json:"processed_url,omitempty"`
	Available    bool   `json:"available"`
}

// ReportView is a report decorated for display.
type ReportView struct {
	Report
	StatusLabel string `json:"status_label"`
	Media       Media  `json:"media"`
	Address     string `json:"address"`
}

// ReportStats counts reports per lifecycle state.
type ReportStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
	Rejected   int `json:"rejected"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Detection is what the damage detector reports back once it has
// produced an annotated image for a stored upload.
type Detection struct {
	OriginalImageID  string `json:"original_image_id" validate:"required"`
	ProcessedImageID string `json:"processed_image_id" validate:"required"`
	Type             string `json:"type,omitempty"`
	Severity         string `json:"severity,omitempty"`
	Summary          string `json:"summary,omitempty"`
}

// Address is one reverse-geocoding candidate.
type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`
}
