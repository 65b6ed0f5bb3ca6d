package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"audiosource/internal/database"
	"audiosource/internal/metadata"
	"audiosource/pkg/models"

	"github.com/sirupsen/logrus"
)

// MetadataResolver identifies albums and artist catalogs against an
// external metadata service.
type MetadataResolver interface {
	SearchRelease(albumTitle, artistName string) (*models.ReleaseMatch, error)
	ArtistReleaseGroups(artistMBID string) ([]models.CatalogRelease, error)
}

// Service scans the library on disk and reconciles the database
// against it. At most one scan runs at a time.
type Service struct {
	db          *database.Database
	extractor   *metadata.Extractor
	resolver    MetadataResolver
	organizer   *Organizer
	libraryPath string
	logger      *logrus.Logger

	running   atomic.Bool
	cancelled atomic.Bool
}

// NewService creates a scanner over the given library root. The
// resolver may be nil, in which case albums keep their folder-derived
// metadata and no catalogs are fetched.
func NewService(db *database.Database, extractor *metadata.Extractor, resolver MetadataResolver, libraryPath string) *Service {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Service{
		db:          db,
		extractor:   extractor,
		resolver:    resolver,
		organizer:   NewOrganizer(libraryPath, extractor),
		libraryPath: libraryPath,
		logger:      logger,
	}
}

// IsRunning reports whether a scan is currently in progress.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Status returns the persisted scan progress record.
func (s *Service) Status() (*models.ScanStatus, error) {
	return s.db.GetOrCreateScanStatus()
}

// CancelScan requests that the running scan stop after the folder it
// is currently processing. It is a no-op when nothing runs.
func (s *Service) CancelScan() bool {
	if !s.running.Load() {
		return false
	}
	s.cancelled.Store(true)
	return true
}

// StartScan launches a full library scan in the background. When force
// is set, folders already marked scanned are re-read and artist
// catalogs are re-fetched. Returns an error if a scan is already
// running.
func (s *Service) StartScan(force bool) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("a scan is already in progress")
	}
	s.cancelled.Store(false)

	status, err := s.db.GetOrCreateScanStatus()
	if err != nil {
		s.running.Store(false)
		return err
	}
	status.Status = models.ScanStatusPending
	status.TotalFolders = 0
	status.ScannedFolders = 0
	status.CurrentFolder = nil
	status.ErrorMessage = nil
	status.CompletedAt = nil
	now := time.Now()
	status.StartedAt = &now
	if err := s.db.UpdateScanStatus(status); err != nil {
		s.running.Store(false)
		return err
	}

	go s.run(status, force)
	return nil
}

func (s *Service) run(status *models.ScanStatus, force bool) {
	defer s.running.Store(false)

	if force {
		if err := s.db.ResetDiscographyFlags(); err != nil {
			s.logger.WithError(err).Error("Failed to reset discography flags")
		}
	}

	folders, err := s.FindAlbumFolders(s.libraryPath)
	if err != nil {
		s.finishWithError(status, fmt.Sprintf("failed to walk library: %v", err))
		return
	}

	status.Status = models.ScanStatusScanning
	status.TotalFolders = len(folders)
	if err := s.db.UpdateScanStatus(status); err != nil {
		s.logger.WithError(err).Error("Failed to update scan status")
	}

	s.logger.WithFields(logrus.Fields{
		"folders": len(folders),
		"force":   force,
	}).Info("Library scan started")

	var failed []string
	for _, folder := range folders {
		if s.cancelled.Load() {
			s.finishCancelled(status)
			return
		}

		status.CurrentFolder = &folder
		if err := s.db.UpdateScanStatus(status); err != nil {
			s.logger.WithError(err).Error("Failed to update scan status")
		}

		if err := s.ScanFolder(folder, force); err != nil {
			// One bad folder never sinks the scan.
			s.logger.WithError(err).WithField("folder", folder).Error("Failed to scan folder")
			failed = append(failed, filepath.Base(folder))
		}

		status.ScannedFolders++
	}

	if err := s.reconcileDeletions(); err != nil {
		s.logger.WithError(err).Error("Deletion reconciliation failed")
	}
	s.reconcileDiscographies()

	status.Status = models.ScanStatusCompleted
	status.CurrentFolder = nil
	now := time.Now()
	status.CompletedAt = &now
	if len(failed) > 0 {
		summary := fmt.Sprintf("%d folder(s) failed: %s", len(failed), strings.Join(failed, ", "))
		status.ErrorMessage = &summary
	}
	if err := s.db.UpdateScanStatus(status); err != nil {
		s.logger.WithError(err).Error("Failed to update scan status")
	}

	s.logger.WithFields(logrus.Fields{
		"scanned": status.ScannedFolders,
		"failed":  len(failed),
	}).Info("Library scan completed")
}

func (s *Service) finishWithError(status *models.ScanStatus, message string) {
	status.Status = models.ScanStatusError
	status.CurrentFolder = nil
	status.ErrorMessage = &message
	now := time.Now()
	status.CompletedAt = &now
	if err := s.db.UpdateScanStatus(status); err != nil {
		s.logger.WithError(err).Error("Failed to update scan status")
	}
	s.logger.Error(message)
}

func (s *Service) finishCancelled(status *models.ScanStatus) {
	status.Status = models.ScanStatusCancelled
	status.CurrentFolder = nil
	now := time.Now()
	status.CompletedAt = &now
	if err := s.db.UpdateScanStatus(status); err != nil {
		s.logger.WithError(err).Error("Failed to update scan status")
	}
	s.logger.Info("Library scan cancelled")
}

// ScanFolder reads one album folder, moves it into the canonical
// library layout and upserts its artist, album and tracks. Folders
// already marked scanned are skipped unless force is set. The
// acquisition importer calls this directly after moving a finished
// download into the library.
func (s *Service) ScanFolder(folder string, force bool) error {
	existing, err := s.db.GetAlbumByFolderPath(folder)
	if err != nil {
		return err
	}
	if existing != nil && existing.IsScanned && !force {
		return nil
	}

	files, err := s.audioFilesIn(folder)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no audio files in %s", folder)
	}

	tracks := make([]models.TrackInfo, 0, len(files))
	for _, file := range files {
		tracks = append(tracks, s.extractor.ExtractTrackInfo(file))
	}

	albumTitle, artistName := electAlbumAndArtist(tracks, folder)

	var match *models.ReleaseMatch
	if s.resolver != nil {
		match, err = s.resolver.SearchRelease(albumTitle, artistName)
		if err != nil {
			// Resolver outages degrade to untagged records.
			s.logger.WithError(err).WithField("album", albumTitle).Warn("Metadata lookup failed")
			match = nil
		}
	}

	// The resolver's canonical names win over whatever the tags said.
	var artistMBID *string
	if match != nil {
		artistMBID = match.ArtistMBID
		if match.Title != "" {
			albumTitle = match.Title
		}
		if match.ArtistName != nil && *match.ArtistName != "" {
			artistName = *match.ArtistName
		}
	}

	canonical, err := s.organizer.EnsureCanonical(folder, artistName, albumTitle)
	if err != nil {
		s.logger.WithError(err).WithField("folder", folder).Warn("Failed to organize folder, leaving it in place")
	} else if canonical != folder {
		folder = canonical
		if files, err = s.audioFilesIn(folder); err != nil {
			return err
		}
		tracks = tracks[:0]
		for _, file := range files {
			tracks = append(tracks, s.extractor.ExtractTrackInfo(file))
		}
	}

	artist, err := s.db.GetOrCreateArtist(artistName, artistMBID)
	if err != nil {
		return err
	}
	if match != nil && match.ArtistSortName != nil {
		if err := s.db.UpdateArtistSortName(artist.ID, *match.ArtistSortName); err != nil {
			s.logger.WithError(err).Warn("Failed to update artist sort name")
		}
	}

	album := existing
	if album == nil && match != nil {
		// A wishlisted or catalog placeholder for this release may
		// already exist; the folder claims it instead of duplicating.
		album, err = s.db.GetAlbumByMusicBrainzID(match.MusicBrainzID)
		if err != nil {
			return err
		}
	}

	trackCount := len(tracks)
	if match != nil && match.TrackCount != nil {
		trackCount = *match.TrackCount
	}
	if album == nil {
		album = &models.Album{Title: albumTitle}
	}
	album.Title = albumTitle
	album.ArtistID = &artist.ID
	album.FolderPath = &folder
	album.TrackCount = &trackCount
	album.IsOwned = true
	album.IsWishlisted = false
	album.IsScanned = true
	if match != nil {
		album.MusicBrainzID = &match.MusicBrainzID
		album.ReleaseDate = match.ReleaseDate
		album.ReleaseType = match.ReleaseType
		album.CoverArtURL = match.CoverArtURL
	}

	if album.ID == 0 {
		album, err = s.db.CreateAlbum(album)
	} else {
		err = s.db.UpdateAlbum(album)
	}
	if err != nil {
		return err
	}

	if err := s.db.ReplaceAlbumTracks(album.ID, tracks); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"album":  albumTitle,
		"artist": artistName,
		"tracks": trackCount,
	}).Debug("Scanned album folder")
	return nil
}

// reconcileDeletions flips albums whose folder vanished from disk back
// to unowned, keeping the record (and any wishlist flag) so the gap
// stays visible.
func (s *Service) reconcileDeletions() error {
	albums, err := s.db.OwnedAlbums()
	if err != nil {
		return err
	}

	for _, album := range albums {
		if album.FolderPath != nil {
			if _, err := os.Stat(*album.FolderPath); err == nil {
				continue
			}
		}
		s.logger.WithField("album", album.Title).Info("Album folder removed, marking unowned")
		if err := s.db.MarkAlbumUnowned(album.ID); err != nil {
			s.logger.WithError(err).WithField("album", album.Title).Error("Failed to mark album unowned")
		}
	}
	return nil
}

const unknownArtist = "Unknown Artist"

// electAlbumAndArtist picks the album title and artist for a folder by
// majority vote across the tracks' tags. Ties break toward the value
// seen first. Untagged folders fall back to the folder name and an
// unknown artist.
func electAlbumAndArtist(tracks []models.TrackInfo, folder string) (string, string) {
	albumVotes := make(map[string]int)
	artistVotes := make(map[string]int)
	var albumOrder, artistOrder []string

	for _, track := range tracks {
		if track.Album != nil && *track.Album != "" {
			if albumVotes[*track.Album] == 0 {
				albumOrder = append(albumOrder, *track.Album)
			}
			albumVotes[*track.Album]++
		}
		if track.Artist != nil && *track.Artist != "" {
			if artistVotes[*track.Artist] == 0 {
				artistOrder = append(artistOrder, *track.Artist)
			}
			artistVotes[*track.Artist]++
		}
	}

	album := majority(albumVotes, albumOrder)
	if album == "" {
		album = filepath.Base(folder)
	}
	artist := majority(artistVotes, artistOrder)
	if artist == "" {
		artist = unknownArtist
	}
	return album, artist
}

func majority(votes map[string]int, order []string) string {
	best := ""
	bestCount := 0
	for _, candidate := range order {
		if votes[candidate] > bestCount {
			best = candidate
			bestCount = votes[candidate]
		}
	}
	return best
}
