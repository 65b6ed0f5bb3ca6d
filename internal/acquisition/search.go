package acquisition

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"audiosource/internal/slskd"
	"audiosource/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	searchPollInterval = 2 * time.Second
	maxCandidates      = 3
)

// candidate is one peer's plausible file set for the wanted album.
type candidate struct {
	username string
	files    []slskd.PeerFile
	score    int
}

// runSearch executes the search phase for one download: issue query
// variants, collect and score candidates, enqueue the best one.
// Searches are serialized so concurrent requests line up instead of
// flooding the network.
func (s *Service) runSearch(d *models.Download, expectedTracks *int) {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	// The record may have been cancelled or swept while queued.
	current, err := s.db.GetDownload(d.ID)
	if err != nil || current.Status != models.DownloadStatusPending {
		return
	}

	d.Status = models.DownloadStatusSearching
	now := time.Now()
	d.StartedAt = &now
	if err := s.db.UpdateDownload(d); err != nil {
		s.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to persist search start")
		return
	}

	candidates := s.collectCandidates(d, expectedTracks)
	if len(candidates) == 0 {
		s.failDownload(d, "no matching results found on the network")
		return
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	for _, c := range candidates {
		requests := make([]slskd.DownloadRequest, 0, len(c.files))
		var totalBytes int64
		for _, f := range c.files {
			requests = append(requests, slskd.DownloadRequest{Filename: f.Filename, Size: f.Size})
			totalBytes += f.Size
		}

		if err := s.client.EnqueueDownloads(c.username, requests); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"download_id": d.ID,
				"username":    c.username,
			}).Warn("Failed to enqueue candidate")
			continue
		}

		username := c.username
		d.Status = models.DownloadStatusDownloading
		d.SlskdUsername = &username
		d.TotalFiles = len(c.files)
		d.TotalBytes = totalBytes
		if err := s.db.UpdateDownload(d); err != nil {
			s.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to persist enqueue")
		}

		s.logger.WithFields(logrus.Fields{
			"download_id": d.ID,
			"username":    username,
			"files":       len(c.files),
			"score":       c.score,
		}).Info("Download enqueued")
		return
	}

	s.failDownload(d, "all candidates failed to enqueue")
}

// collectCandidates runs the query variants, waiting on each search
// and harvesting scored candidates. Querying stops early once enough
// candidates exist.
func (s *Service) collectCandidates(d *models.Download, expectedTracks *int) []candidate {
	timeout := time.Duration(s.slskdCfg.SearchTimeoutSec) * time.Second
	minWait := time.Duration(s.slskdCfg.SearchMinWaitSec) * time.Second

	var candidates []candidate
	for _, query := range queryVariants(d.ArtistName, d.AlbumTitle) {
		searchID, err := s.client.StartSearch(query, timeout)
		if err != nil {
			s.logger.WithError(err).WithField("query", query).Warn("Failed to start search")
			continue
		}

		s.awaitSearch(searchID, minWait, timeout)

		responses, err := s.client.GetSearchResponses(searchID)
		s.client.StopSearch(searchID)
		if err != nil {
			s.logger.WithError(err).WithField("query", query).Warn("Failed to fetch search responses")
			continue
		}

		for _, resp := range responses {
			files := s.matchingFiles(resp.Files, d.ArtistName, d.AlbumTitle)
			if len(files) == 0 {
				continue
			}
			candidates = append(candidates, candidate{
				username: resp.Username,
				files:    files,
				score:    s.scoreCandidate(files, d.ArtistName, d.AlbumTitle, expectedTracks),
			})
		}

		if len(candidates) >= maxCandidates {
			break
		}
	}
	return candidates
}

// awaitSearch blocks at least minWait and at most timeout, returning
// as soon as the search completes or any responses have arrived.
// Partial results are acceptable.
func (s *Service) awaitSearch(searchID string, minWait, timeout time.Duration) {
	start := time.Now()
	for {
		time.Sleep(searchPollInterval)
		elapsed := time.Since(start)
		if elapsed >= timeout {
			return
		}
		if elapsed < minWait {
			continue
		}
		state, err := s.client.GetSearchState(searchID)
		if err != nil {
			return
		}
		if state.IsComplete || state.ResponseCount > 0 {
			return
		}
	}
}

// queryVariants yields the search strings tried in order: quoted
// phrase, plain, hyphen-joined.
func queryVariants(artist, album string) []string {
	plain := strings.TrimSpace(artist + " " + album)
	variants := []string{
		fmt.Sprintf("%q", plain),
		plain,
		strings.TrimSpace(artist + " - " + album),
	}

	seen := make(map[string]bool, len(variants))
	unique := variants[:0]
	for _, v := range variants {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		unique = append(unique, v)
	}
	return unique
}

// matchingFiles keeps audio files whose name shares at least one
// significant word with the wanted artist or album.
func (s *Service) matchingFiles(files []slskd.PeerFile, artist, album string) []slskd.PeerFile {
	words := significantWords(artist + " " + album)
	if len(words) == 0 {
		return nil
	}

	var matched []slskd.PeerFile
	for _, f := range files {
		if !s.isAcceptedAudio(f.Filename) {
			continue
		}
		name := strings.ToLower(f.Filename)
		for _, w := range words {
			if strings.Contains(name, w) {
				matched = append(matched, f)
				break
			}
		}
	}
	return matched
}

func (s *Service) isAcceptedAudio(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3", ".flac", ".m4a", ".aac", ".ogg", ".wav", ".wma", ".aiff":
		return true
	}
	return false
}

// significantWords lowercases and splits a phrase, dropping words too
// short to discriminate.
func significantWords(phrase string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(phrase)) {
		w = strings.Trim(w, `"'()[]-_.,!?`)
		if len(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}

// scoreCandidate rates a peer's file set for the wanted album. Weights
// come from the configured policy. The score never goes below zero.
func (s *Service) scoreCandidate(files []slskd.PeerFile, artist, album string, expectedTracks *int) int {
	score := 0

	if expectedTracks != nil && *expectedTracks > 0 {
		diff := len(files) - *expectedTracks
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff == 0:
			score += s.policy.ExactTrackScore
		case diff == 1:
			score += s.policy.OffByOneTrackScore
		case diff == 2:
			score += s.policy.OffByTwoTrackScore
		case diff <= 5:
			score += s.policy.OffByFiveTrackScore
		default:
			score -= s.policy.TrackMismatchPenalty
		}
	}

	artistWords := significantWords(artist)
	albumWords := significantWords(album)
	preferred := 0
	inSizeBand := 0
	for _, f := range files {
		name := strings.ToLower(f.Filename)
		artistHit := containsAny(name, artistWords)
		albumHit := containsAny(name, albumWords)
		switch {
		case artistHit && albumHit:
			score += s.policy.BothMatchScore
		case artistHit:
			score += s.policy.ArtistMatchScore
		}

		if strings.ToLower(filepath.Ext(f.Filename)) == s.policy.PreferredFormat {
			preferred++
		}
		if f.Size >= s.policy.MinFileBytes && f.Size <= s.policy.MaxFileBytes {
			inSizeBand++
		}
	}

	if len(files) > 0 {
		if float64(preferred)/float64(len(files)) > 0.8 {
			score += s.policy.FormatBonus
		}
		if float64(inSizeBand)/float64(len(files)) > 0.5 {
			score += s.policy.SizeBandBonus
		}
	}

	switch {
	case len(files) < 3:
		score -= s.policy.TinySetPenalty
	case len(files) < 5:
		score -= s.policy.SmallSetPenalty
	}

	if score < 0 {
		score = 0
	}
	return score
}

func containsAny(haystack string, words []string) bool {
	for _, w := range words {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}
