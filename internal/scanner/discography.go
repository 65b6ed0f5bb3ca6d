package scanner

import (
	"fmt"
	"strings"
	"unicode"

	"audiosource/pkg/models"

	"github.com/agnivade/levenshtein"
	"github.com/sirupsen/logrus"
)

// Titles within this edit distance of an existing album are treated as
// the same release under a slightly different spelling.
const fuzzyTitleDistance = 2

// StartDiscographyRefresh runs catalog reconciliation in the
// background without a full library scan. It shares the scan guard so
// the two never write the same albums concurrently.
func (s *Service) StartDiscographyRefresh(force bool) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("a scan is already in progress")
	}
	s.cancelled.Store(false)

	go func() {
		defer s.running.Store(false)
		if force {
			if err := s.db.ResetDiscographyFlags(); err != nil {
				s.logger.WithError(err).Error("Failed to reset discography flags")
				return
			}
		}
		s.reconcileDiscographies()
	}()
	return nil
}

// reconcileDiscographies fetches the full known catalog for every
// identified artist that has not been reconciled yet, and records each
// release the library is missing as an unowned placeholder album.
func (s *Service) reconcileDiscographies() {
	if s.resolver == nil {
		return
	}

	artists, err := s.db.ListArtists()
	if err != nil {
		s.logger.WithError(err).Error("Failed to list artists for discography reconciliation")
		return
	}

	for _, artist := range artists {
		if artist.MusicBrainzID == nil || *artist.MusicBrainzID == "" || artist.DiscographyFetched {
			continue
		}
		if s.cancelled.Load() {
			return
		}
		s.reconcileArtistCatalog(&artist)
	}
}

func (s *Service) reconcileArtistCatalog(artist *models.Artist) {
	releases, err := s.resolver.ArtistReleaseGroups(*artist.MusicBrainzID)
	if err != nil {
		// Leave the flag unset so the next scan retries this artist.
		s.logger.WithError(err).WithField("artist", artist.Name).Warn("Failed to fetch artist catalog")
		return
	}

	mbids, titles, err := s.db.AlbumKeysByArtist(artist.ID)
	if err != nil {
		s.logger.WithError(err).WithField("artist", artist.Name).Error("Failed to load artist albums")
		return
	}

	knownMBIDs := make(map[string]bool, len(mbids))
	for _, mbid := range mbids {
		knownMBIDs[mbid] = true
	}
	knownTitles := make([]string, 0, len(titles))
	for _, title := range titles {
		knownTitles = append(knownTitles, normalizeTitle(title))
	}

	added := 0
	for _, release := range releases {
		if knownMBIDs[release.MusicBrainzID] {
			continue
		}
		normalized := normalizeTitle(release.Title)
		if matchesKnownTitle(normalized, knownTitles) {
			continue
		}

		mbid := release.MusicBrainzID
		placeholder := &models.Album{
			Title:         release.Title,
			MusicBrainzID: &mbid,
			ArtistID:      &artist.ID,
			ReleaseDate:   release.ReleaseDate,
			ReleaseType:   release.ReleaseType,
		}
		if _, err := s.db.CreateAlbum(placeholder); err != nil {
			s.logger.WithError(err).WithField("album", release.Title).Error("Failed to create placeholder album")
			continue
		}
		knownMBIDs[mbid] = true
		knownTitles = append(knownTitles, normalized)
		added++
	}

	// The flag flips even when individual inserts failed; a forced
	// rescan is the recovery path for those.
	if err := s.db.SetDiscographyFetched(artist.ID, true); err != nil {
		s.logger.WithError(err).WithField("artist", artist.Name).Error("Failed to mark discography fetched")
	}

	s.logger.WithFields(logrus.Fields{
		"artist":  artist.Name,
		"catalog": len(releases),
		"added":   added,
	}).Info("Reconciled artist discography")
}

func matchesKnownTitle(normalized string, known []string) bool {
	for _, title := range known {
		if title == normalized {
			return true
		}
		if levenshtein.ComputeDistance(title, normalized) <= fuzzyTitleDistance {
			return true
		}
	}
	return false
}

// normalizeTitle lowers the title, drops bracketed edition suffixes
// like "(Deluxe Edition)" and strips punctuation, so catalog entries
// compare against rips that name the same release differently.
func normalizeTitle(title string) string {
	lower := strings.ToLower(title)

	var b strings.Builder
	depth := 0
	for _, r := range lower {
		switch {
		case r == '(' || r == '[':
			depth++
		case r == ')' || r == ']':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
				b.WriteRune(r)
			}
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
