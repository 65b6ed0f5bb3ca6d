package acquisition

import (
	"fmt"
	"strings"
	"time"

	"audiosource/pkg/models"

	"github.com/sirupsen/logrus"
)

// syncProgress pulls the current transfer state for a downloading
// record from the P2P client, updates its counters and classifies the
// attempt once every file reached a terminal state.
func (s *Service) syncProgress(d *models.Download) error {
	if d.Status != models.DownloadStatusDownloading || d.SlskdUsername == nil || s.client == nil {
		return nil
	}

	transfer, err := s.client.GetDownloadsForUser(*d.SlskdUsername)
	if err != nil {
		return err
	}
	if transfer == nil {
		return nil
	}

	var completed, failed int
	var completedBytes int64
	for _, file := range transfer.AllFiles() {
		switch classifyTransferState(file.State) {
		case transferSucceeded:
			completed++
			completedBytes += file.Size
		case transferFailed:
			failed++
		default:
			completedBytes += file.BytesTransferred
		}
	}

	d.CompletedFiles = completed
	d.CompletedBytes = completedBytes
	if err := s.db.UpdateDownload(d); err != nil {
		return err
	}

	if d.TotalFiles > 0 && completed+failed >= d.TotalFiles {
		s.classifyFinished(d, completed, failed)
	}
	return nil
}

// classifyFinished settles a download whose files all reached terminal
// states. Full success triggers the importer; a majority success is
// kept for manual review; anything below half fails.
func (s *Service) classifyFinished(d *models.Download, completed, failed int) {
	rate := float64(completed) / float64(d.TotalFiles)

	switch {
	case completed == 0:
		s.failDownload(d, "no files were downloaded successfully")
	case rate < 0.5:
		s.failDownload(d, fmt.Sprintf("only %d of %d files succeeded", completed, d.TotalFiles))
	case failed > 0:
		warning := fmt.Sprintf("%d of %d files failed; review before importing", failed, d.TotalFiles)
		d.Status = models.DownloadStatusCompleted
		d.ErrorMessage = &warning
		now := time.Now()
		d.CompletedAt = &now
		if err := s.db.UpdateDownload(d); err != nil {
			s.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to persist completion")
		}
		s.logger.WithFields(logrus.Fields{
			"download_id": d.ID,
			"completed":   completed,
			"failed":      failed,
		}).Warn("Download completed with failures, not auto-importing")
	default:
		d.Status = models.DownloadStatusCompleted
		d.ErrorMessage = nil
		now := time.Now()
		d.CompletedAt = &now
		if err := s.db.UpdateDownload(d); err != nil {
			s.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to persist completion")
			return
		}
		s.logger.WithField("download_id", d.ID).Info("Download completed, importing")
		if err := s.importDownload(d); err != nil {
			s.logger.WithError(err).WithField("download_id", d.ID).Error("Import failed")
			message := fmt.Sprintf("import failed: %v", err)
			d.ErrorMessage = &message
			if err := s.db.UpdateDownload(d); err != nil {
				s.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to persist import error")
			}
		}
	}
}

type transferOutcome int

const (
	transferInProgress transferOutcome = iota
	transferSucceeded
	transferFailed
)

// classifyTransferState maps slskd's composite state strings
// ("Completed, Succeeded", "Completed, TimedOut", "InProgress", ...)
// onto success, failure or still-running.
func classifyTransferState(state string) transferOutcome {
	if strings.Contains(state, "Succeeded") {
		return transferSucceeded
	}
	for _, failure := range []string{"Errored", "TimedOut", "Cancelled", "Rejected"} {
		if strings.Contains(state, failure) {
			return transferFailed
		}
	}
	return transferInProgress
}
