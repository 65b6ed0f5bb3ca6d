package acquisition

import (
	"fmt"
	"sync"
	"time"

	"audiosource/internal/config"
	"audiosource/internal/database"
	"audiosource/internal/scanner"
	"audiosource/internal/slskd"
	"audiosource/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SoulseekClient is the P2P surface the acquisition pipeline needs.
// *slskd.Client satisfies it; tests substitute fakes.
type SoulseekClient interface {
	Probe() error
	StartSearch(query string, timeout time.Duration) (string, error)
	GetSearchState(searchID string) (*slskd.SearchState, error)
	GetSearchResponses(searchID string) ([]slskd.PeerResponse, error)
	StopSearch(searchID string)
	EnqueueDownloads(username string, files []slskd.DownloadRequest) error
	GetDownloadsForUser(username string) (*slskd.PeerTransfer, error)
	CancelDownloads(username string) error
}

// Service drives album acquisition: search the P2P network, score and
// enqueue the best candidate, poll transfer progress and import the
// result into the library.
type Service struct {
	db        *database.Database
	client    SoulseekClient
	scanner   *scanner.Service
	organizer *scanner.Organizer
	slskdCfg  config.SlskdConfig
	policy    config.AcquisitionConfig
	logger    *logrus.Logger

	// Serializes the search phase; transfers themselves run remotely
	// and overlap freely.
	searchMu sync.Mutex
}

// NewService wires the acquisition pipeline together. The client may
// be nil when slskd integration is disabled; every request then fails
// fast with a clear error.
func NewService(db *database.Database, client SoulseekClient, scan *scanner.Service,
	organizer *scanner.Organizer, slskdCfg config.SlskdConfig, policy config.AcquisitionConfig) *Service {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Service{
		db:        db,
		client:    client,
		scanner:   scan,
		organizer: organizer,
		slskdCfg:  slskdCfg,
		policy:    policy,
		logger:    logger,
	}
}

// ErrConflict marks a request rejected because the album already has
// an in-flight download.
type ErrConflict struct {
	Existing *models.Download
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("album already has an active download (%s, %s)",
		e.Existing.ID, e.Existing.Status)
}

// Request starts acquiring an album. It creates the download record in
// pending state synchronously and runs the search in the background.
// An album with a pending, searching or downloading record is rejected
// without touching the existing record.
func (s *Service) Request(albumID int) (*models.Download, error) {
	if s.client == nil {
		return nil, fmt.Errorf("soulseek integration is disabled")
	}

	album, err := s.db.GetAlbumByID(albumID)
	if err != nil {
		return nil, err
	}
	if album.IsOwned {
		return nil, fmt.Errorf("album %q is already in the library", album.Title)
	}

	existing, err := s.db.ActiveDownloadForAlbum(albumID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ErrConflict{Existing: existing}
	}

	download := &models.Download{
		ID:         uuid.New().String(),
		AlbumID:    &album.ID,
		ArtistName: album.ArtistName,
		AlbumTitle: album.Title,
		Status:     models.DownloadStatusPending,
		CreatedAt:  time.Now(),
	}
	if err := s.db.CreateDownload(download); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"download_id": download.ID,
		"album":       album.Title,
		"artist":      album.ArtistName,
	}).Info("Acquisition requested")

	go s.runSearch(download, album.TrackCount)
	return download, nil
}

// Retry re-enters the search path for a failed or cancelled download.
// Progress counters and the peer binding are cleared first.
func (s *Service) Retry(id string) (*models.Download, error) {
	if s.client == nil {
		return nil, fmt.Errorf("soulseek integration is disabled")
	}

	download, err := s.db.GetDownload(id)
	if err != nil {
		return nil, err
	}
	if download.Status != models.DownloadStatusFailed && download.Status != models.DownloadStatusCancelled {
		return nil, fmt.Errorf("cannot retry a download in state %q", download.Status)
	}

	download.Status = models.DownloadStatusPending
	download.SlskdUsername = nil
	download.TotalFiles = 0
	download.CompletedFiles = 0
	download.TotalBytes = 0
	download.CompletedBytes = 0
	download.ErrorMessage = nil
	download.StartedAt = nil
	download.CompletedAt = nil
	if err := s.db.UpdateDownload(download); err != nil {
		return nil, err
	}

	var expected *int
	if download.AlbumID != nil {
		if album, err := s.db.GetAlbumByID(*download.AlbumID); err == nil {
			expected = album.TrackCount
		}
	}

	s.logger.WithField("download_id", id).Info("Retrying download")
	go s.runSearch(download, expected)
	return download, nil
}

// Cancel aborts an active download. The remote cancel is best-effort;
// the record flips to cancelled even when the P2P client is down.
func (s *Service) Cancel(id string) (*models.Download, error) {
	download, err := s.db.GetDownload(id)
	if err != nil {
		return nil, err
	}
	if !download.IsActive() {
		return nil, fmt.Errorf("cannot cancel a download in state %q", download.Status)
	}

	if s.client != nil && download.SlskdUsername != nil {
		if err := s.client.CancelDownloads(*download.SlskdUsername); err != nil {
			s.logger.WithError(err).WithField("download_id", id).Warn("Remote cancel failed")
		}
	}

	download.Status = models.DownloadStatusCancelled
	now := time.Now()
	download.CompletedAt = &now
	if err := s.db.UpdateDownload(download); err != nil {
		return nil, err
	}
	s.logger.WithField("download_id", id).Info("Download cancelled")
	return download, nil
}

// Delete removes a finished download record. Active downloads must be
// cancelled first.
func (s *Service) Delete(id string) error {
	download, err := s.db.GetDownload(id)
	if err != nil {
		return err
	}
	if download.IsActive() {
		return fmt.Errorf("cannot delete an active download; cancel it first")
	}
	return s.db.DeleteDownload(id)
}

// Get returns one download with progress refreshed from the P2P
// client when it is transferring.
func (s *Service) Get(id string) (*models.Download, error) {
	download, err := s.db.GetDownload(id)
	if err != nil {
		return nil, err
	}
	if err := s.syncProgress(download); err != nil {
		s.logger.WithError(err).WithField("download_id", id).Warn("Progress sync failed")
	}
	return download, nil
}

// List returns every download, newest first, refreshing progress on
// the ones still transferring.
func (s *Service) List() ([]models.Download, error) {
	downloads, err := s.db.ListDownloads()
	if err != nil {
		return nil, err
	}
	for i := range downloads {
		if downloads[i].Status != models.DownloadStatusDownloading {
			continue
		}
		if err := s.syncProgress(&downloads[i]); err != nil {
			s.logger.WithError(err).WithField("download_id", downloads[i].ID).Warn("Progress sync failed")
		}
	}
	return downloads, nil
}

func (s *Service) failDownload(d *models.Download, message string) {
	d.Status = models.DownloadStatusFailed
	d.ErrorMessage = &message
	now := time.Now()
	d.CompletedAt = &now
	if err := s.db.UpdateDownload(d); err != nil {
		s.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to persist download failure")
	}
	s.logger.WithFields(logrus.Fields{
		"download_id": d.ID,
		"reason":      message,
	}).Warn("Download failed")
}
