package model

import "time"

const (
	EventReportCreated       = "report.created"
	EventReportStatusChanged = "report.status_changed"
	EventReportDetected      = "report.detected"
)

type ReportEvent struct {
	Type     string    `json:"type"`
	ReportID string    `json:"report_id"`
	OwnerID  string    `json:"owner_id"`
	Status   Status    `json:"status"`
	At       time.Time `json:"at"`
}
