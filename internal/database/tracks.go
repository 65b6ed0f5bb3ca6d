package database

import (
	"database/sql"

	"audiosource/pkg/models"
)

// ReplaceAlbumTracks deletes every track of an album and recreates the
// given set in a single transaction. Tracks carry no identity across
// scans, so the cascade is explicit rather than a side effect of some
// other write.
func (db *Database) ReplaceAlbumTracks(albumID int, tracks []models.TrackInfo) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Stmt(db.deleteAlbumTracks).Exec(albumID); err != nil {
		return err
	}

	insert := tx.Stmt(db.insertTrackStmt)
	for _, t := range tracks {
		discNumber := t.DiscNumber
		if discNumber == 0 {
			discNumber = 1
		}
		if _, err := insert.Exec(albumID, t.Title, nullInt(t.TrackNumber), discNumber,
			nullInt(t.DurationSeconds), t.FilePath, t.FileFormat); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetTracksByAlbum returns an album's tracks in disc/track order.
func (db *Database) GetTracksByAlbum(albumID int) ([]models.Track, error) {
	rows, err := db.conn.Query(`
		SELECT id, album_id, title, track_number, disc_number, duration_seconds,
		       file_path, file_format, created_at
		FROM tracks
		WHERE album_id = ?
		ORDER BY disc_number, track_number, title`, albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		var t models.Track
		var trackNumber, duration sql.NullInt64
		if err := rows.Scan(&t.ID, &t.AlbumID, &t.Title, &trackNumber, &t.DiscNumber,
			&duration, &t.FilePath, &t.FileFormat, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.TrackNumber = intPtr(trackNumber)
		t.DurationSeconds = intPtr(duration)
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// CountTracks returns the number of track rows in the store.
func (db *Database) CountTracks() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM tracks").Scan(&count)
	return count, err
}
