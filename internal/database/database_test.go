package database

import (
	"path/filepath"
	"testing"
	"time"

	"audiosource/pkg/models"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

func TestGetOrCreateArtist(t *testing.T) {
	db := testDB(t)

	first, err := db.GetOrCreateArtist("Boards of Canada", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Same name resolves to the same record and backfills the MBID.
	mbid := "some-mbid"
	second, err := db.GetOrCreateArtist("Boards of Canada", &mbid)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same artist, got IDs %d and %d", first.ID, second.ID)
	}
	if second.MusicBrainzID == nil || *second.MusicBrainzID != mbid {
		t.Error("MBID was not backfilled")
	}

	// MBID match wins even under a different spelling.
	third, err := db.GetOrCreateArtist("boards of canada", &mbid)
	if err != nil {
		t.Fatalf("mbid lookup: %v", err)
	}
	if third.ID != first.ID {
		t.Error("MBID lookup should resolve to the existing artist")
	}
}

func TestAlbumOwnershipLifecycle(t *testing.T) {
	db := testDB(t)

	artist, err := db.GetOrCreateArtist("Autechre", nil)
	if err != nil {
		t.Fatalf("artist: %v", err)
	}

	album, err := db.CreateAlbum(&models.Album{
		Title:    "Amber",
		ArtistID: &artist.ID,
	})
	if err != nil {
		t.Fatalf("create album: %v", err)
	}
	if album.IsOwned {
		t.Error("new album should not be owned")
	}
	if album.ArtistName != "Autechre" {
		t.Errorf("artist name not joined, got %q", album.ArtistName)
	}

	if err := db.SetAlbumWishlisted(album.ID, true); err != nil {
		t.Fatalf("wishlist: %v", err)
	}

	folder := "/music/Autechre/Amber"
	if err := db.SetAlbumOwned(album.ID, folder); err != nil {
		t.Fatalf("set owned: %v", err)
	}
	owned, err := db.GetAlbumByFolderPath(folder)
	if err != nil || owned == nil {
		t.Fatalf("lookup by folder: %v", err)
	}
	if !owned.IsOwned || owned.IsWishlisted {
		t.Error("owning an album must set owned and clear the wishlist flag")
	}

	tracks := []models.TrackInfo{
		{Title: "Foil", TrackNumber: intp(1), DiscNumber: 1, FilePath: folder + "/01.mp3", FileFormat: "MP3"},
		{Title: "Montreal", TrackNumber: intp(2), DiscNumber: 1, FilePath: folder + "/02.mp3", FileFormat: "MP3"},
	}
	if err := db.ReplaceAlbumTracks(album.ID, tracks); err != nil {
		t.Fatalf("replace tracks: %v", err)
	}

	if err := db.MarkAlbumUnowned(album.ID); err != nil {
		t.Fatalf("mark unowned: %v", err)
	}
	got, err := db.GetAlbumByID(album.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IsOwned || got.FolderPath != nil {
		t.Error("unowned album should lose ownership and folder path")
	}
	remaining, err := db.GetTracksByAlbum(album.ID)
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected tracks removed with ownership, found %d", len(remaining))
	}
}

func TestReplaceAlbumTracksIsWholesale(t *testing.T) {
	db := testDB(t)

	album, err := db.CreateAlbum(&models.Album{Title: "Selected Ambient Works"})
	if err != nil {
		t.Fatalf("album: %v", err)
	}

	first := []models.TrackInfo{
		{Title: "Xtal", DiscNumber: 1, FilePath: "/a/1.mp3", FileFormat: "MP3"},
		{Title: "Tha", DiscNumber: 1, FilePath: "/a/2.mp3", FileFormat: "MP3"},
		{Title: "Pulsewidth", DiscNumber: 1, FilePath: "/a/3.mp3", FileFormat: "MP3"},
	}
	if err := db.ReplaceAlbumTracks(album.ID, first); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	second := []models.TrackInfo{
		{Title: "Xtal", DiscNumber: 1, FilePath: "/a/1.mp3", FileFormat: "MP3"},
	}
	if err := db.ReplaceAlbumTracks(album.ID, second); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	tracks, err := db.GetTracksByAlbum(album.ID)
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	if len(tracks) != 1 {
		t.Errorf("expected wholesale replacement to leave 1 track, got %d", len(tracks))
	}
}

func TestActiveDownloadPerAlbum(t *testing.T) {
	db := testDB(t)

	album, err := db.CreateAlbum(&models.Album{Title: "Geogaddi"})
	if err != nil {
		t.Fatalf("album: %v", err)
	}

	active, err := db.ActiveDownloadForAlbum(album.ID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active != nil {
		t.Fatal("expected no active download initially")
	}

	d := &models.Download{
		ID:         "dl-1",
		AlbumID:    &album.ID,
		ArtistName: "Boards of Canada",
		AlbumTitle: "Geogaddi",
		Status:     models.DownloadStatusSearching,
		CreatedAt:  time.Now(),
	}
	if err := db.CreateDownload(d); err != nil {
		t.Fatalf("create download: %v", err)
	}

	active, err = db.ActiveDownloadForAlbum(album.ID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil || active.ID != "dl-1" {
		t.Fatal("expected the searching download to occupy the slot")
	}

	d.Status = models.DownloadStatusFailed
	if err := db.UpdateDownload(d); err != nil {
		t.Fatalf("update: %v", err)
	}
	active, err = db.ActiveDownloadForAlbum(album.ID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active != nil {
		t.Error("failed download should free the per-album slot")
	}
}

func TestStuckDownloadsExcludesDownloading(t *testing.T) {
	db := testDB(t)

	old := time.Now().Add(-time.Hour)
	for _, d := range []models.Download{
		{ID: "p", ArtistName: "a", AlbumTitle: "x", Status: models.DownloadStatusPending, CreatedAt: old},
		{ID: "s", ArtistName: "a", AlbumTitle: "y", Status: models.DownloadStatusSearching, CreatedAt: old},
		{ID: "d", ArtistName: "a", AlbumTitle: "z", Status: models.DownloadStatusDownloading, CreatedAt: old},
		{ID: "fresh", ArtistName: "a", AlbumTitle: "w", Status: models.DownloadStatusPending, CreatedAt: time.Now()},
	} {
		rec := d
		if err := db.CreateDownload(&rec); err != nil {
			t.Fatalf("create %s: %v", d.ID, err)
		}
	}

	stuck, err := db.StuckDownloads(time.Now().Add(-5 * time.Minute))
	if err != nil {
		t.Fatalf("stuck: %v", err)
	}
	ids := make(map[string]bool)
	for _, d := range stuck {
		ids[d.ID] = true
	}
	if !ids["p"] || !ids["s"] {
		t.Errorf("expected old pending and searching records, got %v", ids)
	}
	if ids["d"] {
		t.Error("downloading records must never be swept")
	}
	if ids["fresh"] {
		t.Error("records newer than the cutoff must not be swept")
	}
}

func TestScanStatusSingleton(t *testing.T) {
	db := testDB(t)

	status, err := db.GetOrCreateScanStatus()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if status.Status != models.ScanStatusIdle {
		t.Errorf("fresh status should be idle, got %s", status.Status)
	}

	status.Status = models.ScanStatusScanning
	status.TotalFolders = 10
	status.ScannedFolders = 3
	status.CurrentFolder = strp("/music/x")
	if err := db.UpdateScanStatus(status); err != nil {
		t.Fatalf("update: %v", err)
	}

	again, err := db.GetOrCreateScanStatus()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.ID != status.ID {
		t.Error("scan status must stay a singleton")
	}
	if again.ScannedFolders != 3 || again.CurrentFolder == nil {
		t.Error("progress fields did not round-trip")
	}
}

func TestScanScheduleDefaults(t *testing.T) {
	db := testDB(t)

	schedule, err := db.GetOrCreateScanSchedule()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !schedule.Enabled || schedule.IntervalHours != 24 {
		t.Errorf("expected enabled daily default, got enabled=%v interval=%d",
			schedule.Enabled, schedule.IntervalHours)
	}
}

func TestArtistAlbumCounts(t *testing.T) {
	db := testDB(t)

	artist, err := db.GetOrCreateArtist("Aphex Twin", nil)
	if err != nil {
		t.Fatalf("artist: %v", err)
	}

	mk := func(title string, owned, wishlisted bool) {
		t.Helper()
		album, err := db.CreateAlbum(&models.Album{Title: title, ArtistID: &artist.ID, IsWishlisted: wishlisted})
		if err != nil {
			t.Fatalf("album %s: %v", title, err)
		}
		if owned {
			if err := db.SetAlbumOwned(album.ID, "/music/"+title); err != nil {
				t.Fatalf("own %s: %v", title, err)
			}
		}
	}
	mk("Drukqs", true, false)
	mk("Syro", false, true)
	mk("Collapse", false, false)

	owned, missing, wishlisted, err := db.ArtistAlbumCounts(artist.ID)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if owned != 1 || missing != 1 || wishlisted != 1 {
		t.Errorf("got owned=%d missing=%d wishlisted=%d, want 1/1/1", owned, missing, wishlisted)
	}
}
