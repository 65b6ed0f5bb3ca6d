package database

import (
	"database/sql"

	"audiosource/pkg/models"
)

// GetOrCreateScanStatus returns the singleton scan progress record,
// creating it in the idle state on first call.
func (db *Database) GetOrCreateScanStatus() (*models.ScanStatus, error) {
	status, err := db.getScanStatus()
	if err != nil {
		return nil, err
	}
	if status != nil {
		return status, nil
	}

	if _, err := db.conn.Exec(
		"INSERT INTO scan_status (status) VALUES (?)", models.ScanStatusIdle); err != nil {
		return nil, err
	}
	return db.getScanStatus()
}

func (db *Database) getScanStatus() (*models.ScanStatus, error) {
	var s models.ScanStatus
	var currentFolder, errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime
	err := db.conn.QueryRow(`
		SELECT id, status, current_folder, total_folders, scanned_folders,
		       started_at, completed_at, error_message
		FROM scan_status LIMIT 1`).
		Scan(&s.ID, &s.Status, &currentFolder, &s.TotalFolders, &s.ScannedFolders,
			&startedAt, &completedAt, &errorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CurrentFolder = stringPtr(currentFolder)
	s.ErrorMessage = stringPtr(errorMessage)
	s.StartedAt = timePtr(startedAt)
	s.CompletedAt = timePtr(completedAt)
	return &s, nil
}

// UpdateScanStatus persists the whole progress record. Scans commit it
// incrementally so progress is observable mid-run.
func (db *Database) UpdateScanStatus(s *models.ScanStatus) error {
	_, err := db.conn.Exec(`
		UPDATE scan_status SET status = ?, current_folder = ?, total_folders = ?,
		       scanned_folders = ?, started_at = ?, completed_at = ?, error_message = ?
		WHERE id = ?`,
		s.Status, nullString(s.CurrentFolder), s.TotalFolders, s.ScannedFolders,
		nullTime(s.StartedAt), nullTime(s.CompletedAt), nullString(s.ErrorMessage), s.ID)
	return err
}

// GetOrCreateScanSchedule returns the singleton schedule record,
// creating a daily default on first call.
func (db *Database) GetOrCreateScanSchedule() (*models.ScanSchedule, error) {
	schedule, err := db.getScanSchedule()
	if err != nil {
		return nil, err
	}
	if schedule != nil {
		return schedule, nil
	}

	if _, err := db.conn.Exec(
		"INSERT INTO scan_schedule (enabled, interval_hours) VALUES (1, 24)"); err != nil {
		return nil, err
	}
	return db.getScanSchedule()
}

func (db *Database) getScanSchedule() (*models.ScanSchedule, error) {
	var s models.ScanSchedule
	var lastScanAt, nextScanAt sql.NullTime
	err := db.conn.QueryRow(`
		SELECT id, enabled, interval_hours, last_scan_at, next_scan_at
		FROM scan_schedule LIMIT 1`).
		Scan(&s.ID, &s.Enabled, &s.IntervalHours, &lastScanAt, &nextScanAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.LastScanAt = timePtr(lastScanAt)
	s.NextScanAt = timePtr(nextScanAt)
	return &s, nil
}

// UpdateScanSchedule persists the schedule record.
func (db *Database) UpdateScanSchedule(s *models.ScanSchedule) error {
	_, err := db.conn.Exec(`
		UPDATE scan_schedule SET enabled = ?, interval_hours = ?, last_scan_at = ?, next_scan_at = ?
		WHERE id = ?`,
		s.Enabled, s.IntervalHours, nullTime(s.LastScanAt), nullTime(s.NextScanAt), s.ID)
	return err
}
