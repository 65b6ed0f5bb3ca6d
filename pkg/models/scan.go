package models

import "time"

// Scan states. A scan moves idle -> pending -> scanning and terminates
// in completed, error or cancelled.
const (
	ScanStatusIdle      = "idle"
	ScanStatusPending   = "pending"
	ScanStatusScanning  = "scanning"
	ScanStatusCompleted = "completed"
	ScanStatusError     = "error"
	ScanStatusCancelled = "cancelled"
)

// ScanStatus is the singleton progress record for library scans. It is
// the only mutable shared state exposed to callers polling progress.
type ScanStatus struct {
	ID             int        `json:"id"`
	Status         string     `json:"status"`
	CurrentFolder  *string    `json:"current_folder,omitempty"`
	TotalFolders   int        `json:"total_folders"`
	ScannedFolders int        `json:"scanned_folders"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
}

// ScanSchedule is the singleton record driving periodic scans.
type ScanSchedule struct {
	ID            int        `json:"id"`
	Enabled       bool       `json:"enabled"`
	IntervalHours int        `json:"interval_hours"`
	LastScanAt    *time.Time `json:"last_scan_at,omitempty"`
	NextScanAt    *time.Time `json:"next_scan_at,omitempty"`
}
