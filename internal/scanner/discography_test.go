package scanner

import (
	"testing"

	"audiosource/pkg/models"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Mezzanine", "mezzanine"},
		{"MEZZANINE", "mezzanine"},
		{"Mezzanine (Deluxe Edition)", "mezzanine"},
		{"Mezzanine [2019 Remaster]", "mezzanine"},
		{"In Rainbows: Disk 2", "in rainbows disk 2"},
		{"  spaced   out  ", "spaced out"},
	}
	for _, tt := range tests {
		if got := normalizeTitle(tt.in); got != tt.want {
			t.Errorf("normalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatchesKnownTitle(t *testing.T) {
	known := []string{normalizeTitle("Geogaddi"), normalizeTitle("Music Has the Right to Children")}

	if !matchesKnownTitle(normalizeTitle("geogaddi"), known) {
		t.Error("case-only difference must match")
	}
	if !matchesKnownTitle(normalizeTitle("Geogadi"), known) {
		t.Error("a one-character typo must match within the fuzzy threshold")
	}
	if matchesKnownTitle(normalizeTitle("Tomorrow's Harvest"), known) {
		t.Error("a different title must not match")
	}
}

func TestReconcileArtistCatalog(t *testing.T) {
	albumType := "Album"
	resolver := &fakeResolver{catalog: []models.CatalogRelease{
		{MusicBrainzID: "rg-1", Title: "Geogaddi", ReleaseType: &albumType},
		{MusicBrainzID: "rg-2", Title: "Geogaddi (Deluxe Edition)", ReleaseType: &albumType},
		{MusicBrainzID: "rg-3", Title: "Tomorrow's Harvest", ReleaseType: &albumType},
	}}
	svc, db := testService(t, t.TempDir(), resolver)

	mbid := "artist-mbid"
	artist, err := db.GetOrCreateArtist("Boards of Canada", &mbid)
	if err != nil {
		t.Fatalf("artist: %v", err)
	}
	ownedMBID := "rg-1"
	if _, err := db.CreateAlbum(&models.Album{
		Title:         "Geogaddi",
		MusicBrainzID: &ownedMBID,
		ArtistID:      &artist.ID,
		IsOwned:       true,
	}); err != nil {
		t.Fatalf("album: %v", err)
	}

	svc.reconcileArtistCatalog(artist)

	albums, err := db.AlbumsByArtist(artist.ID, nil)
	if err != nil {
		t.Fatalf("albums: %v", err)
	}
	// rg-1 is owned, rg-2 de-duplicates against it (suffix stripped),
	// only rg-3 becomes a placeholder.
	if len(albums) != 2 {
		t.Fatalf("expected 2 albums after reconciliation, got %d", len(albums))
	}
	var placeholder *models.Album
	for i := range albums {
		if albums[i].Title == "Tomorrow's Harvest" {
			placeholder = &albums[i]
		}
	}
	if placeholder == nil {
		t.Fatal("missing catalog release was not created")
	}
	if placeholder.IsOwned || placeholder.IsWishlisted || placeholder.FolderPath != nil {
		t.Error("placeholder must be unowned, unwishlisted and pathless")
	}

	after, err := db.GetArtistByID(artist.ID)
	if err != nil {
		t.Fatalf("artist reload: %v", err)
	}
	if !after.DiscographyFetched {
		t.Error("discography_fetched must flip after reconciliation")
	}

	// A second pass must not duplicate anything.
	after.DiscographyFetched = false
	svc.reconcileArtistCatalog(after)
	albums, err = db.AlbumsByArtist(artist.ID, nil)
	if err != nil {
		t.Fatalf("albums: %v", err)
	}
	if len(albums) != 2 {
		t.Errorf("reconciliation must be idempotent, got %d albums", len(albums))
	}
}
