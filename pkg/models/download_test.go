package models

import "testing"

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name string
		d    Download
		want float64
	}{
		{"no totals", Download{}, 0},
		{"bytes preferred", Download{TotalBytes: 2000, CompletedBytes: 500, TotalFiles: 10, CompletedFiles: 9}, 25.0},
		{"files fallback", Download{TotalFiles: 3, CompletedFiles: 1}, 33.3},
		{"complete", Download{TotalBytes: 100, CompletedBytes: 100}, 100.0},
		{"overshoot clamps", Download{TotalBytes: 100, CompletedBytes: 150}, 100.0},
		{"one decimal", Download{TotalBytes: 7, CompletedBytes: 1}, 14.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.ProgressPercent(); got != tt.want {
				t.Errorf("ProgressPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsActive(t *testing.T) {
	active := []string{DownloadStatusPending, DownloadStatusSearching, DownloadStatusDownloading}
	for _, status := range active {
		d := Download{Status: status}
		if !d.IsActive() {
			t.Errorf("expected %s to be active", status)
		}
	}

	settled := []string{DownloadStatusCompleted, DownloadStatusFailed, DownloadStatusCancelled, DownloadStatusMoved}
	for _, status := range settled {
		d := Download{Status: status}
		if d.IsActive() {
			t.Errorf("expected %s to be inactive", status)
		}
	}
}
