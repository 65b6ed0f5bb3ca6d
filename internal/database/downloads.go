package database

import (
	"database/sql"
	"fmt"
	"time"

	"audiosource/pkg/models"
)

const downloadSelect = `
	SELECT id, album_id, artist_name, album_title, status, slskd_username,
	       total_files, completed_files, total_bytes, completed_bytes,
	       error_message, created_at, started_at, completed_at
	FROM downloads`

func scanDownload(row interface{ Scan(...any) error }) (*models.Download, error) {
	var d models.Download
	var albumID sql.NullInt64
	var username, errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(&d.ID, &albumID, &d.ArtistName, &d.AlbumTitle, &d.Status,
		&username, &d.TotalFiles, &d.CompletedFiles, &d.TotalBytes, &d.CompletedBytes,
		&errorMessage, &d.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	d.AlbumID = intPtr(albumID)
	d.SlskdUsername = stringPtr(username)
	d.ErrorMessage = stringPtr(errorMessage)
	d.StartedAt = timePtr(startedAt)
	d.CompletedAt = timePtr(completedAt)
	return &d, nil
}

// CreateDownload inserts a new acquisition attempt record.
func (db *Database) CreateDownload(d *models.Download) error {
	_, err := db.conn.Exec(`
		INSERT INTO downloads (id, album_id, artist_name, album_title, status,
		                       slskd_username, total_files, completed_files,
		                       total_bytes, completed_bytes, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, nullInt(d.AlbumID), d.ArtistName, d.AlbumTitle, d.Status,
		nullString(d.SlskdUsername), d.TotalFiles, d.CompletedFiles,
		d.TotalBytes, d.CompletedBytes, nullString(d.ErrorMessage), d.CreatedAt)
	return err
}

// UpdateDownload persists every mutable field of a download record.
func (db *Database) UpdateDownload(d *models.Download) error {
	_, err := db.conn.Exec(`
		UPDATE downloads SET album_id = ?, artist_name = ?, album_title = ?, status = ?,
		       slskd_username = ?, total_files = ?, completed_files = ?,
		       total_bytes = ?, completed_bytes = ?, error_message = ?,
		       started_at = ?, completed_at = ?
		WHERE id = ?`,
		nullInt(d.AlbumID), d.ArtistName, d.AlbumTitle, d.Status,
		nullString(d.SlskdUsername), d.TotalFiles, d.CompletedFiles,
		d.TotalBytes, d.CompletedBytes, nullString(d.ErrorMessage),
		nullTime(d.StartedAt), nullTime(d.CompletedAt), d.ID)
	return err
}

// GetDownload returns a single download by its ID.
func (db *Database) GetDownload(id string) (*models.Download, error) {
	download, err := scanDownload(db.conn.QueryRow(downloadSelect+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("download %s not found", id)
	}
	return download, err
}

// ListDownloads returns all downloads, newest first.
func (db *Database) ListDownloads() ([]models.Download, error) {
	rows, err := db.conn.Query(downloadSelect + " ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDownloadRows(rows)
}

// ActiveDownloadForAlbum returns the album's in-flight attempt
// (pending, searching or downloading), or nil when the slot is free.
func (db *Database) ActiveDownloadForAlbum(albumID int) (*models.Download, error) {
	download, err := scanDownload(db.activeDownloadsStmt.QueryRow(albumID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return download, err
}

// ActiveDownloads returns every download currently searching or
// transferring.
func (db *Database) ActiveDownloads() ([]models.Download, error) {
	rows, err := db.conn.Query(downloadSelect + " WHERE status IN ('searching', 'downloading')")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDownloadRows(rows)
}

// StuckDownloads returns downloads sitting in pending or searching
// since before the cutoff. downloading is excluded: that state means
// the remote client is actively working.
func (db *Database) StuckDownloads(cutoff time.Time) ([]models.Download, error) {
	rows, err := db.conn.Query(downloadSelect+`
		WHERE status IN ('pending', 'searching') AND created_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDownloadRows(rows)
}

// DeleteDownload removes a download record. Records are never removed
// automatically; this backs the user-facing purge only.
func (db *Database) DeleteDownload(id string) error {
	_, err := db.conn.Exec("DELETE FROM downloads WHERE id = ?", id)
	return err
}

func scanDownloadRows(rows *sql.Rows) ([]models.Download, error) {
	var downloads []models.Download
	for rows.Next() {
		download, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, *download)
	}
	return downloads, rows.Err()
}
