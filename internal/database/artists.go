package database

import (
	"database/sql"
	"fmt"

	"audiosource/pkg/models"
)

const artistSelect = `
	SELECT id, name, musicbrainz_id, sort_name, disambiguation, country,
	       discography_fetched, created_at, updated_at
	FROM artists`

func scanArtist(row interface{ Scan(...any) error }) (*models.Artist, error) {
	var a models.Artist
	var mbid, sortName, disambiguation, country sql.NullString
	if err := row.Scan(&a.ID, &a.Name, &mbid, &sortName, &disambiguation, &country,
		&a.DiscographyFetched, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.MusicBrainzID = stringPtr(mbid)
	a.SortName = stringPtr(sortName)
	a.Disambiguation = stringPtr(disambiguation)
	a.Country = stringPtr(country)
	return &a, nil
}

// GetOrCreateArtist returns an existing artist, matching by
// MusicBrainz ID first and name second, or creates a new one.
func (db *Database) GetOrCreateArtist(name string, mbid *string) (*models.Artist, error) {
	if mbid != nil && *mbid != "" {
		artist, err := scanArtist(db.artistByMBIDStmt.QueryRow(*mbid))
		if err == nil {
			return artist, nil
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}

	artist, err := scanArtist(db.artistByNameStmt.QueryRow(name))
	if err == nil {
		// Backfill the MBID if a later sighting resolved it.
		if artist.MusicBrainzID == nil && mbid != nil && *mbid != "" {
			if _, err := db.conn.Exec(
				"UPDATE artists SET musicbrainz_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
				*mbid, artist.ID); err != nil {
				return nil, err
			}
			artist.MusicBrainzID = mbid
		}
		return artist, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	result, err := db.conn.Exec(
		"INSERT INTO artists (name, musicbrainz_id) VALUES (?, ?)",
		name, nullString(mbid))
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetArtistByID(int(id))
}

// GetArtistByID returns a single artist by its ID.
func (db *Database) GetArtistByID(id int) (*models.Artist, error) {
	artist, err := scanArtist(db.conn.QueryRow(artistSelect+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artist with ID %d not found", id)
	}
	return artist, err
}

// ListArtists returns all artists ordered by name.
func (db *Database) ListArtists() ([]models.Artist, error) {
	rows, err := db.conn.Query(artistSelect + " ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artists []models.Artist
	for rows.Next() {
		artist, err := scanArtist(rows)
		if err != nil {
			return nil, err
		}
		artists = append(artists, *artist)
	}
	return artists, rows.Err()
}

// UpdateArtistSortName fills in the sort name if not already set.
func (db *Database) UpdateArtistSortName(id int, sortName string) error {
	_, err := db.conn.Exec(`
		UPDATE artists SET sort_name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND (sort_name IS NULL OR sort_name = '')`, sortName, id)
	return err
}

// SetDiscographyFetched flips the reconciliation marker for one artist.
func (db *Database) SetDiscographyFetched(id int, fetched bool) error {
	_, err := db.conn.Exec(
		"UPDATE artists SET discography_fetched = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		fetched, id)
	return err
}

// ResetDiscographyFlags clears discography_fetched for every artist so
// a forced rescan re-fetches each catalog.
func (db *Database) ResetDiscographyFlags() error {
	_, err := db.conn.Exec("UPDATE artists SET discography_fetched = 0")
	return err
}

// ArtistAlbumCounts returns owned / missing / wishlisted album counts
// for one artist. Missing excludes wishlisted albums.
func (db *Database) ArtistAlbumCounts(artistID int) (owned, missing, wishlisted int, err error) {
	err = db.conn.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN is_owned THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN NOT is_owned AND NOT is_wishlisted THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN NOT is_owned AND is_wishlisted THEN 1 ELSE 0 END), 0)
		FROM albums WHERE artist_id = ?`, artistID).Scan(&owned, &missing, &wishlisted)
	return owned, missing, wishlisted, err
}
