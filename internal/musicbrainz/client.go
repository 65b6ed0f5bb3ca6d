package musicbrainz

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"audiosource/internal/cache"
	"audiosource/internal/config"
	"audiosource/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	defaultBaseURL  = "https://musicbrainz.org/ws/2"
	coverArtBaseURL = "https://coverartarchive.org/release"
	searchLimit     = 5
	browsePageSize  = 100
	browsePageCap   = 10
)

// Client talks to the MusicBrainz web service. MusicBrainz allows one
// request per second, so the client spaces its own calls and memoizes
// responses in a TTL cache.
type Client struct {
	baseURL   string
	userAgent string
	interval  time.Duration
	http      *http.Client
	cache     *cache.MemoryCache
	logger    *logrus.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a MusicBrainz client configured per cfg.
func NewClient(cfg *config.MusicBrainzConfig) *Client {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ttl := time.Duration(cfg.CacheTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Client{
		baseURL:   defaultBaseURL,
		userAgent: fmt.Sprintf("%s/%s ( %s )", cfg.AppName, cfg.AppVersion, cfg.Contact),
		interval:  time.Duration(cfg.RequestIntervalMS) * time.Millisecond,
		http:      &http.Client{Timeout: 30 * time.Second},
		cache:     cache.NewMemoryCache(ttl),
		logger:    logger,
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// rateLimit spaces consecutive requests by the configured interval.
func (c *Client) rateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elapsed := time.Since(c.lastRequest); elapsed < c.interval {
		time.Sleep(c.interval - elapsed)
	}
	c.lastRequest = time.Now()
}

func (c *Client) get(path string, params url.Values, out any) error {
	c.rateLimit()

	params.Set("fmt", "json")
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("musicbrainz: unexpected status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Wire shapes for the subset of the API we consume.

type artistCreditJSON struct {
	Name   string `json:"name"`
	Artist struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		SortName string `json:"sort-name"`
	} `json:"artist"`
}

type releaseJSON struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Date         string             `json:"date"`
	ArtistCredit []artistCreditJSON `json:"artist-credit"`
	ReleaseGroup struct {
		PrimaryType string `json:"primary-type"`
	} `json:"release-group"`
	Media []struct {
		TrackCount int `json:"track-count"`
	} `json:"media"`
}

type releaseGroupJSON struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	PrimaryType      string `json:"primary-type"`
	FirstReleaseDate string `json:"first-release-date"`
}

// SearchRelease looks up the best matching release for an album title
// and optional artist name. Results come back ordered by the server's
// match score; the first usable hit wins. Returns (nil, nil) when
// nothing matches.
func (c *Client) SearchRelease(albumTitle, artistName string) (*models.ReleaseMatch, error) {
	cacheKey := "release:" + strings.ToLower(albumTitle) + "|" + strings.ToLower(artistName)
	if cached, ok := c.cache.Get(cacheKey); ok {
		match, _ := cached.(*models.ReleaseMatch)
		return match, nil
	}

	query := fmt.Sprintf("release:%s", luceneQuote(albumTitle))
	if artistName != "" {
		query += fmt.Sprintf(" AND artist:%s", luceneQuote(artistName))
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(searchLimit))

	var payload struct {
		Releases []releaseJSON `json:"releases"`
	}
	if err := c.get("/release", params, &payload); err != nil {
		return nil, err
	}

	var match *models.ReleaseMatch
	for i := range payload.Releases {
		if payload.Releases[i].Title != "" {
			match = c.toReleaseMatch(&payload.Releases[i])
			break
		}
	}

	c.cache.Set(cacheKey, match)
	return match, nil
}

// ReleaseDetails fetches the full record for a known release ID.
// Returns (nil, nil) when the ID is unknown.
func (c *Client) ReleaseDetails(mbid string) (*models.ReleaseMatch, error) {
	cacheKey := "details:" + mbid
	if cached, ok := c.cache.Get(cacheKey); ok {
		match, _ := cached.(*models.ReleaseMatch)
		return match, nil
	}

	params := url.Values{}
	params.Set("inc", "artists release-groups media")

	var payload releaseJSON
	if err := c.get("/release/"+url.PathEscape(mbid), params, &payload); err != nil {
		if strings.Contains(err.Error(), "status 404") {
			return nil, nil
		}
		return nil, err
	}

	match := c.toReleaseMatch(&payload)
	c.cache.Set(cacheKey, match)
	return match, nil
}

// ArtistReleaseGroups browses the complete known catalog of an artist,
// paging until the server reports no more release groups.
func (c *Client) ArtistReleaseGroups(artistMBID string) ([]models.CatalogRelease, error) {
	cacheKey := "catalog:" + artistMBID
	if cached, ok := c.cache.Get(cacheKey); ok {
		releases, _ := cached.([]models.CatalogRelease)
		return releases, nil
	}

	var releases []models.CatalogRelease
	for page := 0; page < browsePageCap; page++ {
		params := url.Values{}
		params.Set("artist", artistMBID)
		params.Set("limit", strconv.Itoa(browsePageSize))
		params.Set("offset", strconv.Itoa(page*browsePageSize))

		var payload struct {
			ReleaseGroups []releaseGroupJSON `json:"release-groups"`
			Count         int                `json:"release-group-count"`
		}
		if err := c.get("/release-group", params, &payload); err != nil {
			return nil, err
		}

		for _, rg := range payload.ReleaseGroups {
			release := models.CatalogRelease{
				MusicBrainzID: rg.ID,
				Title:         rg.Title,
			}
			if rg.PrimaryType != "" {
				releaseType := rg.PrimaryType
				release.ReleaseType = &releaseType
			}
			if rg.FirstReleaseDate != "" {
				releaseDate := rg.FirstReleaseDate
				release.ReleaseDate = &releaseDate
			}
			releases = append(releases, release)
		}

		if len(payload.ReleaseGroups) < browsePageSize {
			break
		}
	}

	c.cache.Set(cacheKey, releases)
	return releases, nil
}

// CoverArtURL returns the Cover Art Archive front-cover URL for a
// release. The archive serves it whether or not art exists; callers
// treat it as a hint, not a guarantee.
func (c *Client) CoverArtURL(mbid string) string {
	return fmt.Sprintf("%s/%s/front-250", coverArtBaseURL, mbid)
}

func (c *Client) toReleaseMatch(r *releaseJSON) *models.ReleaseMatch {
	match := &models.ReleaseMatch{
		MusicBrainzID: r.ID,
		Title:         r.Title,
	}
	if r.Date != "" {
		date := r.Date
		match.ReleaseDate = &date
	}
	if r.ReleaseGroup.PrimaryType != "" {
		releaseType := r.ReleaseGroup.PrimaryType
		match.ReleaseType = &releaseType
	}
	if len(r.ArtistCredit) > 0 {
		credit := r.ArtistCredit[0]
		name := credit.Artist.Name
		if name == "" {
			name = credit.Name
		}
		if name != "" {
			match.ArtistName = &name
		}
		if credit.Artist.ID != "" {
			artistMBID := credit.Artist.ID
			match.ArtistMBID = &artistMBID
		}
		if credit.Artist.SortName != "" {
			sortName := credit.Artist.SortName
			match.ArtistSortName = &sortName
		}
	}

	trackCount := 0
	for _, medium := range r.Media {
		trackCount += medium.TrackCount
	}
	if trackCount > 0 {
		match.TrackCount = &trackCount
	}

	if r.ID != "" {
		coverURL := c.CoverArtURL(r.ID)
		match.CoverArtURL = &coverURL
	}

	return match
}

// luceneQuote wraps a value in quotes for a Lucene query, escaping any
// embedded quotes.
func luceneQuote(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
}
