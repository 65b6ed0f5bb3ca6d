package models

import (
	"math"
	"time"
)

// Download states. pending -> searching -> downloading ->
// {completed, failed, cancelled}; completed -> moved once imported.
// Retry re-enters pending from failed or cancelled only.
const (
	DownloadStatusPending     = "pending"
	DownloadStatusSearching   = "searching"
	DownloadStatusDownloading = "downloading"
	DownloadStatusCompleted   = "completed"
	DownloadStatusFailed      = "failed"
	DownloadStatusCancelled   = "cancelled"
	DownloadStatusMoved       = "moved"
)

// ActiveDownloadStatuses are the states that count as an in-flight
// acquisition. At most one such record may exist per album.
var ActiveDownloadStatuses = []string{
	DownloadStatusPending,
	DownloadStatusSearching,
	DownloadStatusDownloading,
}

// Download is one acquisition attempt. Artist and album names are
// denormalized so the record survives album deletion. Downloads are
// never auto-deleted; only the user purges them.
type Download struct {
	ID             string     `json:"id"`
	AlbumID        *int       `json:"album_id,omitempty"`
	ArtistName     string     `json:"artist_name"`
	AlbumTitle     string     `json:"album_title"`
	Status         string     `json:"status"`
	SlskdUsername  *string    `json:"slskd_username,omitempty"`
	TotalFiles     int        `json:"total_files"`
	CompletedFiles int        `json:"completed_files"`
	TotalBytes     int64      `json:"total_bytes"`
	CompletedBytes int64      `json:"completed_bytes"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// IsActive reports whether the download occupies the per-album
// in-flight slot.
func (d *Download) IsActive() bool {
	switch d.Status {
	case DownloadStatusPending, DownloadStatusSearching, DownloadStatusDownloading:
		return true
	}
	return false
}

// ProgressPercent renders transfer progress as 0-100 with one decimal.
// Byte counts are preferred; file counts are the fallback when byte
// totals are unknown.
func (d *Download) ProgressPercent() float64 {
	var ratio float64
	switch {
	case d.TotalBytes > 0:
		ratio = float64(d.CompletedBytes) / float64(d.TotalBytes)
	case d.TotalFiles > 0:
		ratio = float64(d.CompletedFiles) / float64(d.TotalFiles)
	default:
		return 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return math.Round(ratio*1000) / 10
}
