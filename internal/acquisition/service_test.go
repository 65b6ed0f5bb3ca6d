package acquisition

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"audiosource/internal/config"
	"audiosource/internal/database"
	"audiosource/internal/metadata"
	"audiosource/internal/scanner"
	"audiosource/internal/slskd"
	"audiosource/pkg/models"
)

type fakeClient struct {
	searchErr  error
	state      *slskd.SearchState
	responses  []slskd.PeerResponse
	enqueueErr error
	enqueued   map[string][]slskd.DownloadRequest
	transfer   *slskd.PeerTransfer
	cancelled  []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{enqueued: make(map[string][]slskd.DownloadRequest)}
}

func (f *fakeClient) Probe() error { return nil }

func (f *fakeClient) StartSearch(query string, timeout time.Duration) (string, error) {
	if f.searchErr != nil {
		return "", f.searchErr
	}
	return "search-1", nil
}

func (f *fakeClient) GetSearchState(searchID string) (*slskd.SearchState, error) {
	if f.state != nil {
		return f.state, nil
	}
	return &slskd.SearchState{ID: searchID, IsComplete: true, ResponseCount: len(f.responses)}, nil
}

func (f *fakeClient) GetSearchResponses(searchID string) ([]slskd.PeerResponse, error) {
	return f.responses, nil
}

func (f *fakeClient) StopSearch(searchID string) {}

func (f *fakeClient) EnqueueDownloads(username string, files []slskd.DownloadRequest) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued[username] = files
	return nil
}

func (f *fakeClient) GetDownloadsForUser(username string) (*slskd.PeerTransfer, error) {
	return f.transfer, nil
}

func (f *fakeClient) CancelDownloads(username string) error {
	f.cancelled = append(f.cancelled, username)
	return nil
}

func testAcqService(t *testing.T, client SoulseekClient) (*Service, *database.Database, string) {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	library := t.TempDir()
	downloads := t.TempDir()
	formats := []string{".mp3", ".flac"}
	extractor := metadata.NewExtractor(formats)
	scan := scanner.NewService(db, extractor, nil, library)
	organizer := scanner.NewOrganizer(library, extractor)

	cfg := config.DefaultConfig()
	cfg.Slskd.DownloadDir = downloads
	cfg.Slskd.SearchTimeoutSec = 1
	cfg.Slskd.SearchMinWaitSec = 0

	svc := NewService(db, client, scan, organizer, cfg.Slskd, cfg.Acquisition)
	return svc, db, downloads
}

func unownedAlbum(t *testing.T, db *database.Database, artist, title string) *models.Album {
	t.Helper()
	a, err := db.GetOrCreateArtist(artist, nil)
	if err != nil {
		t.Fatalf("artist: %v", err)
	}
	album, err := db.CreateAlbum(&models.Album{Title: title, ArtistID: &a.ID})
	if err != nil {
		t.Fatalf("album: %v", err)
	}
	return album
}

func TestRequestRejectsConflict(t *testing.T) {
	svc, db, _ := testAcqService(t, newFakeClient())
	album := unownedAlbum(t, db, "Someone", "Wanted")

	existing := &models.Download{
		ID:         "dl-active",
		AlbumID:    &album.ID,
		ArtistName: "Someone",
		AlbumTitle: "Wanted",
		Status:     models.DownloadStatusDownloading,
		CreatedAt:  time.Now(),
	}
	if err := db.CreateDownload(existing); err != nil {
		t.Fatalf("seed download: %v", err)
	}

	_, err := svc.Request(album.ID)
	var conflict *ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if conflict.Existing.ID != "dl-active" {
		t.Error("conflict must reference the in-flight record")
	}

	// The existing record is untouched.
	after, err := db.GetDownload("dl-active")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Status != models.DownloadStatusDownloading {
		t.Errorf("existing record mutated to %s", after.Status)
	}
}

func TestRequestRejectsOwnedAlbum(t *testing.T) {
	svc, db, _ := testAcqService(t, newFakeClient())
	album := unownedAlbum(t, db, "Someone", "Owned Already")
	if err := db.SetAlbumOwned(album.ID, "/music/somewhere"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Request(album.ID); err == nil {
		t.Error("requesting an owned album must fail")
	}
}

func TestRetryOnlyFromFailedOrCancelled(t *testing.T) {
	svc, db, _ := testAcqService(t, newFakeClient())

	seed := func(id, status string) {
		t.Helper()
		d := &models.Download{
			ID: id, ArtistName: "A", AlbumTitle: "B",
			Status: status, CreatedAt: time.Now(),
			TotalFiles: 10, CompletedFiles: 4, TotalBytes: 100, CompletedBytes: 40,
		}
		if err := db.CreateDownload(d); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seed("dl-completed", models.DownloadStatusCompleted)
	seed("dl-moved", models.DownloadStatusMoved)
	seed("dl-downloading", models.DownloadStatusDownloading)
	seed("dl-failed", models.DownloadStatusFailed)

	for _, id := range []string{"dl-completed", "dl-moved", "dl-downloading"} {
		if _, err := svc.Retry(id); err == nil {
			t.Errorf("retry from %s must be rejected", id)
		}
	}

	// Hold the search mutex so the retried record stays observable in
	// its reset state.
	svc.searchMu.Lock()
	t.Cleanup(svc.searchMu.Unlock)

	if _, err := svc.Retry("dl-failed"); err != nil {
		t.Fatalf("retry from failed: %v", err)
	}
	after, err := db.GetDownload("dl-failed")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Status != models.DownloadStatusPending {
		t.Errorf("retried download should be pending, got %s", after.Status)
	}
	if after.TotalFiles != 0 || after.CompletedFiles != 0 || after.TotalBytes != 0 || after.CompletedBytes != 0 {
		t.Error("retry must clear progress counters")
	}
	if after.SlskdUsername != nil {
		t.Error("retry must clear the peer binding")
	}
}

func TestCancelActiveDownload(t *testing.T) {
	client := newFakeClient()
	svc, db, _ := testAcqService(t, client)

	peer := "peer-1"
	d := &models.Download{
		ID: "dl-1", ArtistName: "A", AlbumTitle: "B",
		Status: models.DownloadStatusDownloading, SlskdUsername: &peer,
		CreatedAt: time.Now(),
	}
	if err := db.CreateDownload(d); err != nil {
		t.Fatal(err)
	}

	cancelled, err := svc.Cancel("dl-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.DownloadStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if len(client.cancelled) != 1 || client.cancelled[0] != peer {
		t.Error("remote cancel was not requested for the bound peer")
	}

	// Terminal states cannot be cancelled again.
	if _, err := svc.Cancel("dl-1"); err == nil {
		t.Error("cancelling a cancelled download must fail")
	}
}

func TestDeleteRefusesActive(t *testing.T) {
	svc, db, _ := testAcqService(t, newFakeClient())

	d := &models.Download{
		ID: "dl-1", ArtistName: "A", AlbumTitle: "B",
		Status: models.DownloadStatusSearching, CreatedAt: time.Now(),
	}
	if err := db.CreateDownload(d); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete("dl-1"); err == nil {
		t.Error("deleting an active download must fail")
	}

	d.Status = models.DownloadStatusFailed
	if err := db.UpdateDownload(d); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete("dl-1"); err != nil {
		t.Errorf("deleting a settled download: %v", err)
	}
	if _, err := db.GetDownload("dl-1"); err == nil {
		t.Error("record should be gone")
	}
}

func TestSweepStuck(t *testing.T) {
	svc, db, _ := testAcqService(t, newFakeClient())

	old := time.Now().Add(-time.Hour)
	for _, rec := range []models.Download{
		{ID: "stale-pending", ArtistName: "A", AlbumTitle: "B", Status: models.DownloadStatusPending, CreatedAt: old},
		{ID: "busy", ArtistName: "A", AlbumTitle: "C", Status: models.DownloadStatusDownloading, CreatedAt: old},
		{ID: "fresh", ArtistName: "A", AlbumTitle: "D", Status: models.DownloadStatusPending, CreatedAt: time.Now()},
	} {
		d := rec
		if err := db.CreateDownload(&d); err != nil {
			t.Fatal(err)
		}
	}

	svc.SweepStuck()

	assertStatus := func(id, want string) {
		t.Helper()
		d, err := db.GetDownload(id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if d.Status != want {
			t.Errorf("%s status = %s, want %s", id, d.Status, want)
		}
	}
	assertStatus("stale-pending", models.DownloadStatusFailed)
	assertStatus("busy", models.DownloadStatusDownloading)
	assertStatus("fresh", models.DownloadStatusPending)
}

func TestRunSearchEnqueuesBestCandidate(t *testing.T) {
	client := newFakeClient()
	client.responses = []slskd.PeerResponse{
		{
			Username: "good-peer",
			Files: []slskd.PeerFile{
				{Filename: "Someone\\Wanted\\01 - One.mp3", Size: 8_000_000},
				{Filename: "Someone\\Wanted\\02 - Two.mp3", Size: 8_000_000},
				{Filename: "Someone\\Wanted\\03 - Three.mp3", Size: 8_000_000},
				{Filename: "Someone\\Wanted\\04 - Four.mp3", Size: 8_000_000},
				{Filename: "Someone\\Wanted\\05 - Five.mp3", Size: 8_000_000},
			},
		},
		{
			Username: "sparse-peer",
			Files: []slskd.PeerFile{
				{Filename: "Someone\\Wanted\\01 - One.mp3", Size: 8_000_000},
			},
		},
	}
	svc, db, _ := testAcqService(t, client)

	expected := 5
	d := &models.Download{
		ID: "dl-1", ArtistName: "Someone", AlbumTitle: "Wanted",
		Status: models.DownloadStatusPending, CreatedAt: time.Now(),
	}
	if err := db.CreateDownload(d); err != nil {
		t.Fatal(err)
	}

	svc.runSearch(d, &expected)

	after, err := db.GetDownload("dl-1")
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != models.DownloadStatusDownloading {
		t.Fatalf("status = %s, want downloading", after.Status)
	}
	if after.SlskdUsername == nil || *after.SlskdUsername != "good-peer" {
		t.Error("the higher-scoring peer must win")
	}
	if after.TotalFiles != 5 || after.TotalBytes != 40_000_000 {
		t.Errorf("totals = %d files / %d bytes", after.TotalFiles, after.TotalBytes)
	}
	if _, ok := client.enqueued["sparse-peer"]; ok {
		t.Error("losing candidates must not be queued as fallback")
	}
}

func TestRunSearchNoResultsFails(t *testing.T) {
	client := newFakeClient()
	client.searchErr = fmt.Errorf("network down")
	svc, db, _ := testAcqService(t, client)

	d := &models.Download{
		ID: "dl-1", ArtistName: "Someone", AlbumTitle: "Wanted",
		Status: models.DownloadStatusPending, CreatedAt: time.Now(),
	}
	if err := db.CreateDownload(d); err != nil {
		t.Fatal(err)
	}

	svc.runSearch(d, nil)

	after, err := db.GetDownload("dl-1")
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != models.DownloadStatusFailed {
		t.Errorf("status = %s, want failed", after.Status)
	}
	if after.ErrorMessage == nil {
		t.Error("failure must carry an error message")
	}
}
