package models

import "time"

// Artist represents a music artist known to the library. An artist is
// created on first sighting from a scan or acquisition target and is
// never deleted while any album references it.
type Artist struct {
	ID                 int       `json:"id"`
	Name               string    `json:"name"`
	MusicBrainzID      *string   `json:"musicbrainz_id,omitempty"`
	SortName           *string   `json:"sort_name,omitempty"`
	Disambiguation     *string   `json:"disambiguation,omitempty"`
	Country            *string   `json:"country,omitempty"`
	DiscographyFetched bool      `json:"discography_fetched"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Album represents one release in the library. An album may be owned
// (backed by a folder on disk), wishlisted (wanted), both, or neither
// (a plain catalog placeholder created by discography reconciliation).
//
// FolderPath is non-nil only while IsOwned is true.
type Album struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	MusicBrainzID *string `json:"musicbrainz_id,omitempty"`
	ArtistID      *int    `json:"artist_id,omitempty"`
	ArtistName    string  `json:"artist_name,omitempty"`
	ReleaseDate   *string `json:"release_date,omitempty"`
	ReleaseType   *string `json:"release_type,omitempty"`
	CoverArtURL   *string `json:"cover_art_url,omitempty"`
	FolderPath    *string `json:"-"`
	TrackCount    *int    `json:"track_count,omitempty"`
	IsOwned       bool    `json:"is_owned"`
	IsWishlisted  bool    `json:"is_wishlisted"`
	IsScanned     bool    `json:"is_scanned"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Track is a single audio file belonging to exactly one album. Tracks
// carry no identity across scans: every (re)scan of an album replaces
// its track rows wholesale.
type Track struct {
	ID              int       `json:"id"`
	AlbumID         int       `json:"album_id"`
	Title           string    `json:"title"`
	TrackNumber     *int      `json:"track_number,omitempty"`
	DiscNumber      int       `json:"disc_number"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	FilePath        string    `json:"-"`
	FileFormat      string    `json:"file_format"`
	CreatedAt       time.Time `json:"created_at"`
}

// TrackInfo is the raw metadata extracted from one audio file before
// any database record exists. Optional tags are pointers; absent means
// the tag was missing or unreadable.
type TrackInfo struct {
	Title           string  `json:"title"`
	Album           *string `json:"album,omitempty"`
	Artist          *string `json:"artist,omitempty"`
	TrackNumber     *int    `json:"track_number,omitempty"`
	DiscNumber      int     `json:"disc_number"`
	DurationSeconds *int    `json:"duration_seconds,omitempty"`
	FilePath        string  `json:"file_path"`
	FileFormat      string  `json:"file_format"`
}

// ReleaseMatch is the best match returned by the metadata resolver for
// a free-text album+artist query. Every optional field may be absent.
type ReleaseMatch struct {
	MusicBrainzID  string  `json:"musicbrainz_id"`
	Title          string  `json:"title"`
	ArtistName     *string `json:"artist_name,omitempty"`
	ArtistMBID     *string `json:"artist_musicbrainz_id,omitempty"`
	ArtistSortName *string `json:"artist_sort_name,omitempty"`
	ReleaseDate    *string `json:"release_date,omitempty"`
	ReleaseType    *string `json:"release_type,omitempty"`
	TrackCount     *int    `json:"track_count,omitempty"`
	CoverArtURL    *string `json:"cover_art_url,omitempty"`
}

// CatalogRelease is one entry of an artist's full known catalog as
// reported by the metadata resolver.
type CatalogRelease struct {
	MusicBrainzID string  `json:"musicbrainz_id"`
	Title         string  `json:"title"`
	ReleaseType   *string `json:"release_type,omitempty"`
	ReleaseDate   *string `json:"release_date,omitempty"`
}
