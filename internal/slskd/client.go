package slskd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"audiosource/internal/config"

	"github.com/sirupsen/logrus"
)

const (
	responsePageSize = 100
	responsePageCap  = 20
)

// Client is an HTTP client for the slskd Soulseek daemon API (v0).
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logrus.Logger
}

// NewClient creates a slskd API client from the configured URL and key.
func NewClient(cfg *config.SlskdConfig) *Client {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// SearchState is the lifecycle snapshot of a distributed search.
type SearchState struct {
	ID            string `json:"id"`
	IsComplete    bool   `json:"isComplete"`
	ResponseCount int    `json:"responseCount"`
	State         string `json:"state"`
}

// PeerFile is a single file offered by a peer.
type PeerFile struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// PeerResponse is one peer's answer to a search: who they are and what
// they have.
type PeerResponse struct {
	Username      string     `json:"username"`
	FileCount     int        `json:"fileCount"`
	HasFreeUpload bool       `json:"hasFreeUploadSlot"`
	UploadSpeed   int        `json:"uploadSpeed"`
	QueueLength   int        `json:"queueLength"`
	Files         []PeerFile `json:"files"`
}

// TransferFile is one file in a peer's transfer queue, with progress.
type TransferFile struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	Size             int64  `json:"size"`
	State            string `json:"state"`
	BytesTransferred int64  `json:"bytesTransferred"`
}

// TransferDirectory groups a peer's transfers by remote directory.
type TransferDirectory struct {
	Directory string         `json:"directory"`
	Files     []TransferFile `json:"files"`
}

// PeerTransfer is the full transfer state for one peer.
type PeerTransfer struct {
	Username    string              `json:"username"`
	Directories []TransferDirectory `json:"directories"`
}

// DownloadRequest enqueues one remote file for download.
type DownloadRequest struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

func (c *Client) do(method, path string, query url.Values, body, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, reqURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slskd: %s %s returned status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Probe verifies the daemon is reachable and the API key is accepted.
func (c *Client) Probe() error {
	return c.do(http.MethodGet, "/api/v0/application", nil, nil, nil)
}

// StartSearch kicks off a distributed search and returns its ID. The
// daemon keeps collecting responses until the timeout elapses.
func (c *Client) StartSearch(query string, timeout time.Duration) (string, error) {
	body := map[string]any{
		"searchText":    query,
		"searchTimeout": int(timeout.Milliseconds()),
	}

	var state SearchState
	if err := c.do(http.MethodPost, "/api/v0/searches", nil, body, &state); err != nil {
		return "", err
	}
	if state.ID == "" {
		return "", fmt.Errorf("slskd: search accepted but no id returned")
	}

	c.logger.WithFields(logrus.Fields{
		"search_id": state.ID,
		"query":     query,
	}).Debug("Started soulseek search")
	return state.ID, nil
}

// GetSearchState reports whether a search finished and how many peers
// have answered so far.
func (c *Client) GetSearchState(searchID string) (*SearchState, error) {
	var state SearchState
	path := "/api/v0/searches/" + url.PathEscape(searchID)
	if err := c.do(http.MethodGet, path, nil, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// GetSearchResponses pages through all peer responses for a search.
func (c *Client) GetSearchResponses(searchID string) ([]PeerResponse, error) {
	var responses []PeerResponse
	path := "/api/v0/searches/" + url.PathEscape(searchID) + "/responses"

	for page := 0; page < responsePageCap; page++ {
		query := url.Values{}
		query.Set("pageSize", strconv.Itoa(responsePageSize))
		query.Set("page", strconv.Itoa(page))

		var batch []PeerResponse
		if err := c.do(http.MethodGet, path, query, nil, &batch); err != nil {
			return nil, err
		}
		responses = append(responses, batch...)
		if len(batch) < responsePageSize {
			break
		}
	}
	return responses, nil
}

// StopSearch asks the daemon to drop a search it no longer needs.
// Errors are logged, not returned: the search expires on its own.
func (c *Client) StopSearch(searchID string) {
	path := "/api/v0/searches/" + url.PathEscape(searchID)
	if err := c.do(http.MethodDelete, path, nil, nil, nil); err != nil {
		c.logger.WithError(err).WithField("search_id", searchID).Debug("Failed to delete search")
	}
}

// EnqueueDownloads queues a set of files from one peer.
func (c *Client) EnqueueDownloads(username string, files []DownloadRequest) error {
	path := "/api/v0/transfers/downloads/" + url.PathEscape(username)
	return c.do(http.MethodPost, path, nil, files, nil)
}

// GetDownloads returns the daemon's full per-peer transfer state.
func (c *Client) GetDownloads() ([]PeerTransfer, error) {
	var transfers []PeerTransfer
	if err := c.do(http.MethodGet, "/api/v0/transfers/downloads", nil, nil, &transfers); err != nil {
		return nil, err
	}
	return transfers, nil
}

// GetDownloadsForUser returns the transfer state for one peer.
// Returns (nil, nil) when the daemon no longer tracks that peer.
func (c *Client) GetDownloadsForUser(username string) (*PeerTransfer, error) {
	var transfer PeerTransfer
	path := "/api/v0/transfers/downloads/" + url.PathEscape(username)
	if err := c.do(http.MethodGet, path, nil, nil, &transfer); err != nil {
		return nil, nil
	}
	return &transfer, nil
}

// CancelDownloads cancels every in-flight transfer from one peer.
func (c *Client) CancelDownloads(username string) error {
	transfer, err := c.GetDownloadsForUser(username)
	if err != nil || transfer == nil {
		return err
	}

	for _, dir := range transfer.Directories {
		for _, file := range dir.Files {
			if isFinalTransferState(file.State) {
				continue
			}
			path := fmt.Sprintf("/api/v0/transfers/downloads/%s/%s",
				url.PathEscape(username), url.PathEscape(file.ID))
			if err := c.do(http.MethodDelete, path, nil, nil, nil); err != nil {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"username": username,
					"filename": file.Filename,
				}).Warn("Failed to cancel transfer")
			}
		}
	}
	return nil
}

// AllFiles flattens the per-directory transfer state into one slice.
func (t *PeerTransfer) AllFiles() []TransferFile {
	var files []TransferFile
	for _, dir := range t.Directories {
		files = append(files, dir.Files...)
	}
	return files
}

// Transfer states that already finished carry a "Completed, ..." prefix
// in slskd's state strings.
func isFinalTransferState(state string) bool {
	return strings.HasPrefix(state, "Completed")
}
