package server

import (
	"errors"
	"net/http"

	"audiosource/internal/acquisition"
	"audiosource/pkg/models"
)

// downloadView is a download record plus its computed progress.
type downloadView struct {
	models.Download
	ProgressPercent float64 `json:"progress_percent"`
}

func viewOf(d *models.Download) downloadView {
	return downloadView{Download: *d, ProgressPercent: d.ProgressPercent()}
}

// handleRequestDownload starts acquiring an unowned album. A second
// request while one is in flight returns 409 and leaves the existing
// attempt untouched.
func (s *Server) handleRequestDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid album ID")
		return
	}

	download, err := s.acquisition.Request(id)
	if err != nil {
		var conflict *acquisition.ErrConflict
		if errors.As(err, &conflict) {
			writeError(w, http.StatusConflict, conflict.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, viewOf(download))
}

func (s *Server) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	downloads, err := s.acquisition.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error retrieving downloads")
		return
	}

	views := make([]downloadView, 0, len(downloads))
	for i := range downloads {
		views = append(views, viewOf(&downloads[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetDownload(w http.ResponseWriter, r *http.Request) {
	download, err := s.acquisition.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "download not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(download))
}

func (s *Server) handleRetryDownload(w http.ResponseWriter, r *http.Request) {
	download, err := s.acquisition.Retry(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, viewOf(download))
}

func (s *Server) handleCancelDownload(w http.ResponseWriter, r *http.Request) {
	download, err := s.acquisition.Cancel(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, viewOf(download))
}

// handleImportDownload manually imports a download that completed with
// partial failures and was held for review.
func (s *Server) handleImportDownload(w http.ResponseWriter, r *http.Request) {
	download, err := s.acquisition.ImportCompleted(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, viewOf(download))
}

func (s *Server) handleDeleteDownload(w http.ResponseWriter, r *http.Request) {
	if err := s.acquisition.Delete(r.PathValue("id")); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
