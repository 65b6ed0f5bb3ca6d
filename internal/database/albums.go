package database

import (
	"database/sql"
	"fmt"

	"audiosource/pkg/models"
)

const albumSelect = `
	SELECT a.id, a.title, a.musicbrainz_id, a.artist_id, COALESCE(ar.name, ''),
	       a.release_date, a.release_type, a.cover_art_url, a.folder_path,
	       a.track_count, a.is_owned, a.is_wishlisted, a.is_scanned,
	       a.created_at, a.updated_at
	FROM albums a
	LEFT JOIN artists ar ON ar.id = a.artist_id`

func scanAlbum(row interface{ Scan(...any) error }) (*models.Album, error) {
	var a models.Album
	var mbid, releaseDate, releaseType, coverArt, folderPath sql.NullString
	var artistID, trackCount sql.NullInt64
	if err := row.Scan(&a.ID, &a.Title, &mbid, &artistID, &a.ArtistName,
		&releaseDate, &releaseType, &coverArt, &folderPath,
		&trackCount, &a.IsOwned, &a.IsWishlisted, &a.IsScanned,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.MusicBrainzID = stringPtr(mbid)
	a.ArtistID = intPtr(artistID)
	a.ReleaseDate = stringPtr(releaseDate)
	a.ReleaseType = stringPtr(releaseType)
	a.CoverArtURL = stringPtr(coverArt)
	a.FolderPath = stringPtr(folderPath)
	a.TrackCount = intPtr(trackCount)
	return &a, nil
}

func scanAlbumRows(rows *sql.Rows) ([]models.Album, error) {
	var albums []models.Album
	for rows.Next() {
		album, err := scanAlbum(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, *album)
	}
	return albums, rows.Err()
}

// CreateAlbum inserts a new album and returns it with its assigned ID.
func (db *Database) CreateAlbum(a *models.Album) (*models.Album, error) {
	result, err := db.conn.Exec(`
		INSERT INTO albums (title, musicbrainz_id, artist_id, release_date, release_type,
		                    cover_art_url, folder_path, track_count, is_owned, is_wishlisted, is_scanned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Title, nullString(a.MusicBrainzID), nullInt(a.ArtistID),
		nullString(a.ReleaseDate), nullString(a.ReleaseType), nullString(a.CoverArtURL),
		nullString(a.FolderPath), nullInt(a.TrackCount),
		a.IsOwned, a.IsWishlisted, a.IsScanned)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetAlbumByID(int(id))
}

// UpdateAlbum persists every mutable album field.
func (db *Database) UpdateAlbum(a *models.Album) error {
	_, err := db.conn.Exec(`
		UPDATE albums SET title = ?, musicbrainz_id = ?, artist_id = ?, release_date = ?,
		       release_type = ?, cover_art_url = ?, folder_path = ?, track_count = ?,
		       is_owned = ?, is_wishlisted = ?, is_scanned = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		a.Title, nullString(a.MusicBrainzID), nullInt(a.ArtistID),
		nullString(a.ReleaseDate), nullString(a.ReleaseType), nullString(a.CoverArtURL),
		nullString(a.FolderPath), nullInt(a.TrackCount),
		a.IsOwned, a.IsWishlisted, a.IsScanned, a.ID)
	return err
}

// GetAlbumByID returns a single album by its ID.
func (db *Database) GetAlbumByID(id int) (*models.Album, error) {
	album, err := scanAlbum(db.conn.QueryRow(albumSelect+" WHERE a.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("album with ID %d not found", id)
	}
	return album, err
}

// GetAlbumByFolderPath returns the album anchored at a folder, or nil
// when no album owns that path.
func (db *Database) GetAlbumByFolderPath(folderPath string) (*models.Album, error) {
	album, err := scanAlbum(db.albumByFolderStmt.QueryRow(folderPath))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return album, err
}

// GetAlbumByMusicBrainzID returns the album with the given external ID,
// or nil when unknown.
func (db *Database) GetAlbumByMusicBrainzID(mbid string) (*models.Album, error) {
	album, err := scanAlbum(db.conn.QueryRow(albumSelect+" WHERE a.musicbrainz_id = ?", mbid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return album, err
}

// ListAlbums returns albums, optionally restricted to owned ones and
// filtered by a title substring.
func (db *Database) ListAlbums(ownedOnly bool, search string) ([]models.Album, error) {
	query := albumSelect + " WHERE 1=1"
	var args []any
	if ownedOnly {
		query += " AND a.is_owned = 1"
	}
	if search != "" {
		query += " AND a.title LIKE ?"
		args = append(args, "%"+search+"%")
	}
	query += " ORDER BY a.title"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlbumRows(rows)
}

// AlbumsByArtist returns an artist's albums, owned first then newest
// release first. owned filters by ownership when non-nil.
func (db *Database) AlbumsByArtist(artistID int, owned *bool) ([]models.Album, error) {
	query := albumSelect + " WHERE a.artist_id = ?"
	args := []any{artistID}
	if owned != nil {
		query += " AND a.is_owned = ?"
		args = append(args, *owned)
	}
	query += " ORDER BY a.is_owned DESC, a.release_date DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlbumRows(rows)
}

// OwnedAlbums returns every album currently backed by a folder on disk.
func (db *Database) OwnedAlbums() ([]models.Album, error) {
	rows, err := db.conn.Query(albumSelect + " WHERE a.is_owned = 1")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlbumRows(rows)
}

// WishlistedAlbums returns all albums the user wants acquired.
func (db *Database) WishlistedAlbums() ([]models.Album, error) {
	rows, err := db.conn.Query(albumSelect + " WHERE a.is_wishlisted = 1 ORDER BY a.title")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlbumRows(rows)
}

// MarkAlbumUnowned flips an album to unowned, clears its folder path
// and removes its tracks in one transaction. Used by the scanner's
// deletion-reconciliation pass.
func (db *Database) MarkAlbumUnowned(albumID int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE albums SET is_owned = 0, folder_path = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, albumID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM tracks WHERE album_id = ?", albumID); err != nil {
		return err
	}
	return tx.Commit()
}

// SetAlbumOwned marks an album as owned at the given canonical folder.
func (db *Database) SetAlbumOwned(albumID int, folderPath string) error {
	_, err := db.conn.Exec(`
		UPDATE albums SET is_owned = 1, is_wishlisted = 0, folder_path = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, folderPath, albumID)
	return err
}

// SetAlbumWishlisted toggles the wishlist flag.
func (db *Database) SetAlbumWishlisted(albumID int, wishlisted bool) error {
	_, err := db.conn.Exec(`
		UPDATE albums SET is_wishlisted = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, wishlisted, albumID)
	return err
}

// AlbumKeysByArtist returns (musicbrainz_id, title) pairs for one
// artist's albums, the de-duplication inputs for discography
// reconciliation.
func (db *Database) AlbumKeysByArtist(artistID int) (mbids []string, titles []string, err error) {
	rows, err := db.conn.Query(
		"SELECT musicbrainz_id, title FROM albums WHERE artist_id = ?", artistID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var mbid sql.NullString
		var title string
		if err := rows.Scan(&mbid, &title); err != nil {
			return nil, nil, err
		}
		if mbid.Valid && mbid.String != "" {
			mbids = append(mbids, mbid.String)
		}
		titles = append(titles, title)
	}
	return mbids, titles, rows.Err()
}

// LibraryStats holds aggregate library counts.
type LibraryStats struct {
	OwnedAlbums      int `json:"album_count"`
	MissingAlbums    int `json:"missing_album_count"`
	WishlistedAlbums int `json:"wishlist_count"`
	Artists          int `json:"artist_count"`
}

// Stats computes the aggregate library counters.
func (db *Database) Stats() (*LibraryStats, error) {
	var s LibraryStats
	err := db.conn.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM albums WHERE is_owned = 1),
			(SELECT COUNT(*) FROM albums WHERE is_owned = 0),
			(SELECT COUNT(*) FROM albums WHERE is_wishlisted = 1),
			(SELECT COUNT(*) FROM artists)`).
		Scan(&s.OwnedAlbums, &s.MissingAlbums, &s.WishlistedAlbums, &s.Artists)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
