package acquisition

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"audiosource/internal/slskd"
	"audiosource/pkg/models"
)

func TestClassifyTransferState(t *testing.T) {
	tests := []struct {
		state string
		want  transferOutcome
	}{
		{"Completed, Succeeded", transferSucceeded},
		{"Completed, Errored", transferFailed},
		{"Completed, TimedOut", transferFailed},
		{"Completed, Cancelled", transferFailed},
		{"Completed, Rejected", transferFailed},
		{"InProgress", transferInProgress},
		{"Queued, Remotely", transferInProgress},
	}
	for _, tt := range tests {
		if got := classifyTransferState(tt.state); got != tt.want {
			t.Errorf("classifyTransferState(%q) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

// transferWith builds a peer transfer with the given numbers of
// succeeded, failed and in-progress files.
func transferWith(succeeded, failed, inProgress int) *slskd.PeerTransfer {
	var files []slskd.TransferFile
	add := func(n int, state string, transferred int64) {
		for i := 0; i < n; i++ {
			files = append(files, slskd.TransferFile{
				Filename: "Someone\\Wanted\\track.mp3",
				Size:     8_000_000,
				State:    state, BytesTransferred: transferred,
			})
		}
	}
	add(succeeded, "Completed, Succeeded", 8_000_000)
	add(failed, "Completed, Errored", 0)
	add(inProgress, "InProgress", 4_000_000)

	return &slskd.PeerTransfer{
		Username:    "peer-1",
		Directories: []slskd.TransferDirectory{{Directory: "Someone\\Wanted", Files: files}},
	}
}

func seedDownloading(t *testing.T, svc *Service, albumID *int, totalFiles int) *models.Download {
	t.Helper()
	peer := "peer-1"
	d := &models.Download{
		ID: "dl-1", AlbumID: albumID, ArtistName: "Someone", AlbumTitle: "Wanted",
		Status: models.DownloadStatusDownloading, SlskdUsername: &peer,
		TotalFiles: totalFiles, TotalBytes: int64(totalFiles) * 8_000_000,
		CreatedAt: time.Now(),
	}
	if err := svc.db.CreateDownload(d); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestSyncProgressPartialTransfer(t *testing.T) {
	client := newFakeClient()
	client.transfer = transferWith(4, 0, 6)
	svc, _, _ := testAcqService(t, client)

	d := seedDownloading(t, svc, nil, 10)
	if err := svc.syncProgress(d); err != nil {
		t.Fatalf("syncProgress: %v", err)
	}

	if d.Status != models.DownloadStatusDownloading {
		t.Errorf("in-flight transfer must stay downloading, got %s", d.Status)
	}
	if d.CompletedFiles != 4 {
		t.Errorf("completed files = %d, want 4", d.CompletedFiles)
	}
	// 4 full files plus 6 half-done ones.
	wantBytes := int64(4*8_000_000 + 6*4_000_000)
	if d.CompletedBytes != wantBytes {
		t.Errorf("completed bytes = %d, want %d", d.CompletedBytes, wantBytes)
	}
}

func TestFullSuccessImportsAutomatically(t *testing.T) {
	client := newFakeClient()
	client.transfer = transferWith(2, 0, 0)
	svc, db, downloads := testAcqService(t, client)

	// The files the peer delivered, waiting in the download area.
	dropDir := filepath.Join(downloads, "Someone - Wanted")
	for _, name := range []string{"01 - One.mp3", "02 - Two.mp3"} {
		if err := os.MkdirAll(dropDir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dropDir, name), []byte("audio"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	album := unownedAlbum(t, db, "Someone", "Wanted")
	d := seedDownloading(t, svc, &album.ID, 2)

	if err := svc.syncProgress(d); err != nil {
		t.Fatalf("syncProgress: %v", err)
	}

	after, err := db.GetDownload("dl-1")
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != models.DownloadStatusMoved {
		t.Fatalf("status = %s, want moved", after.Status)
	}

	albumAfter, err := db.GetAlbumByID(album.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !albumAfter.IsOwned || albumAfter.FolderPath == nil {
		t.Fatal("imported album must be owned with a folder path")
	}
	if _, err := os.Stat(*albumAfter.FolderPath); err != nil {
		t.Errorf("canonical folder missing: %v", err)
	}
}

func TestLowSuccessRateFails(t *testing.T) {
	client := newFakeClient()
	client.transfer = transferWith(3, 7, 0)
	svc, db, _ := testAcqService(t, client)

	album := unownedAlbum(t, db, "Someone", "Wanted")
	d := seedDownloading(t, svc, &album.ID, 10)

	if err := svc.syncProgress(d); err != nil {
		t.Fatalf("syncProgress: %v", err)
	}

	after, err := db.GetDownload("dl-1")
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != models.DownloadStatusFailed {
		t.Errorf("status = %s, want failed", after.Status)
	}

	albumAfter, _ := db.GetAlbumByID(album.ID)
	if albumAfter.IsOwned {
		t.Error("importer must never run below the success threshold")
	}
}

func TestMajoritySuccessCompletesWithoutImport(t *testing.T) {
	client := newFakeClient()
	client.transfer = transferWith(7, 3, 0)
	svc, db, _ := testAcqService(t, client)

	album := unownedAlbum(t, db, "Someone", "Wanted")
	d := seedDownloading(t, svc, &album.ID, 10)

	if err := svc.syncProgress(d); err != nil {
		t.Fatalf("syncProgress: %v", err)
	}

	after, err := db.GetDownload("dl-1")
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != models.DownloadStatusCompleted {
		t.Errorf("status = %s, want completed", after.Status)
	}
	if after.ErrorMessage == nil {
		t.Error("partial success must carry a warning message")
	}

	albumAfter, _ := db.GetAlbumByID(album.ID)
	if albumAfter.IsOwned {
		t.Error("partial success must not auto-import")
	}
}

func TestZeroSuccessFails(t *testing.T) {
	client := newFakeClient()
	client.transfer = transferWith(0, 5, 0)
	svc, db, _ := testAcqService(t, client)

	d := seedDownloading(t, svc, nil, 5)
	if err := svc.syncProgress(d); err != nil {
		t.Fatalf("syncProgress: %v", err)
	}

	after, err := db.GetDownload("dl-1")
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != models.DownloadStatusFailed {
		t.Errorf("status = %s, want failed", after.Status)
	}
}

func TestSyncProgressIgnoresSettledDownloads(t *testing.T) {
	client := newFakeClient()
	client.transfer = transferWith(0, 10, 0)
	svc, db, _ := testAcqService(t, client)

	d := &models.Download{
		ID: "dl-1", ArtistName: "Someone", AlbumTitle: "Wanted",
		Status: models.DownloadStatusCompleted, TotalFiles: 10, CompletedFiles: 10,
		CreatedAt: time.Now(),
	}
	if err := db.CreateDownload(d); err != nil {
		t.Fatal(err)
	}

	if err := svc.syncProgress(d); err != nil {
		t.Fatalf("syncProgress: %v", err)
	}
	after, err := db.GetDownload("dl-1")
	if err != nil {
		t.Fatal(err)
	}
	// Status never regresses from a settled state on a progress poll.
	if after.Status != models.DownloadStatusCompleted {
		t.Errorf("status regressed to %s", after.Status)
	}
}

func TestImportCompletedSafetyCheck(t *testing.T) {
	svc, db, _ := testAcqService(t, newFakeClient())

	d := &models.Download{
		ID: "dl-1", ArtistName: "Someone", AlbumTitle: "Wanted",
		Status: models.DownloadStatusCompleted, TotalFiles: 10, CompletedFiles: 4,
		CreatedAt: time.Now(),
	}
	if err := db.CreateDownload(d); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ImportCompleted("dl-1"); err == nil {
		t.Error("import must refuse a success rate below 50%")
	}
}
