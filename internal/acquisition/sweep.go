package acquisition

import (
	"fmt"
	"time"

	"audiosource/pkg/models"
)

// SweepStuck force-fails downloads that sat in pending or searching
// past the configured timeout. Records in downloading are left alone;
// that state means the remote client is actively working. The
// scheduler calls this on a fixed cadence.
func (s *Service) SweepStuck() {
	timeout := time.Duration(s.slskdCfg.StuckTimeoutMinutes) * time.Minute
	cutoff := time.Now().Add(-timeout)

	stuck, err := s.db.StuckDownloads(cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to query stuck downloads")
		return
	}

	for i := range stuck {
		// Re-read in case the search finished between query and sweep.
		current, err := s.db.GetDownload(stuck[i].ID)
		if err != nil {
			continue
		}
		if current.Status != models.DownloadStatusPending && current.Status != models.DownloadStatusSearching {
			continue
		}
		s.failDownload(current, fmt.Sprintf("no activity for %d minutes", s.slskdCfg.StuckTimeoutMinutes))
	}
}
