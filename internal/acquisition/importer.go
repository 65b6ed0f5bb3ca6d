package acquisition

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audiosource/pkg/models"

	"github.com/sirupsen/logrus"
)

// ImportCompleted moves a completed download into the library. It is
// the manual path for downloads that finished with partial failures;
// fully successful downloads import automatically.
func (s *Service) ImportCompleted(id string) (*models.Download, error) {
	download, err := s.db.GetDownload(id)
	if err != nil {
		return nil, err
	}
	if download.Status != models.DownloadStatusCompleted {
		return nil, fmt.Errorf("cannot import a download in state %q", download.Status)
	}
	if err := s.importDownload(download); err != nil {
		return nil, err
	}
	return download, nil
}

// importDownload locates the downloaded files, organizes them into the
// canonical library layout and rescans the resulting folder. The
// success-rate check guards against importing from a stale completed
// status.
func (s *Service) importDownload(d *models.Download) error {
	if d.TotalFiles > 0 && float64(d.CompletedFiles)/float64(d.TotalFiles) < 0.5 {
		return fmt.Errorf("refusing to import: only %d of %d files succeeded", d.CompletedFiles, d.TotalFiles)
	}

	sourceDir, err := s.locateDownloadFolder(d)
	if err != nil {
		return err
	}

	destDir, err := s.organizer.ImportFolder(sourceDir, d.ArtistName, d.AlbumTitle)
	if err != nil {
		return err
	}

	if d.AlbumID != nil {
		if err := s.db.SetAlbumOwned(*d.AlbumID, destDir); err != nil {
			return err
		}
	}

	d.Status = models.DownloadStatusMoved
	now := time.Now()
	d.CompletedAt = &now
	if err := s.db.UpdateDownload(d); err != nil {
		return err
	}

	if err := s.scanner.ScanFolder(destDir, true); err != nil {
		s.logger.WithError(err).WithField("folder", destDir).Warn("Post-import rescan failed")
	}

	s.logger.WithFields(logrus.Fields{
		"download_id": d.ID,
		"album":       d.AlbumTitle,
		"dest":        destDir,
	}).Info("Download imported into library")
	return nil
}

// locateDownloadFolder finds where the P2P client dropped the album's
// files: the directory under the configured download dir whose name
// best matches the album title and holds the most audio files.
func (s *Service) locateDownloadFolder(d *models.Download) (string, error) {
	root := s.slskdCfg.DownloadDir
	words := significantWords(d.ArtistName + " " + d.AlbumTitle)

	type folderHit struct {
		path       string
		wordHits   int
		audioFiles int
	}
	counts := make(map[string]*folderHit)

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if !s.isAcceptedAudio(path) {
			return nil
		}
		dir := filepath.Dir(path)
		hit, ok := counts[dir]
		if !ok {
			hit = &folderHit{path: dir}
			name := strings.ToLower(dir)
			for _, w := range words {
				if strings.Contains(name, w) {
					hit.wordHits++
				}
			}
			counts[dir] = hit
		}
		hit.audioFiles++
		return nil
	})
	if err != nil {
		return "", err
	}

	var best *folderHit
	for _, hit := range counts {
		if hit.wordHits == 0 {
			continue
		}
		if best == nil || hit.wordHits > best.wordHits ||
			(hit.wordHits == best.wordHits && hit.audioFiles > best.audioFiles) {
			best = hit
		}
	}
	if best == nil {
		return "", fmt.Errorf("downloaded files for %q not found under %s", d.AlbumTitle, root)
	}

	if _, err := os.Stat(best.path); err != nil {
		return "", err
	}
	return best.path, nil
}
