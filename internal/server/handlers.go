package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"audiosource/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	return id, err == nil
}

// handleHealth reports liveness plus basic library counts.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"albums": stats.OwnedAlbums,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error computing stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListArtists(w http.ResponseWriter, r *http.Request) {
	artists, err := s.db.ListArtists()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error retrieving artists")
		return
	}
	if artists == nil {
		artists = []models.Artist{}
	}
	writeJSON(w, http.StatusOK, artists)
}

// handleGetArtist returns one artist with album counts and the full
// album list, owned albums first.
func (s *Server) handleGetArtist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid artist ID")
		return
	}

	artist, err := s.db.GetArtistByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "artist not found")
		return
	}
	albums, err := s.db.AlbumsByArtist(id, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error retrieving albums")
		return
	}
	owned, missing, wishlisted, err := s.db.ArtistAlbumCounts(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error counting albums")
		return
	}
	if albums == nil {
		albums = []models.Album{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"artist":           artist,
		"albums":           albums,
		"owned_count":      owned,
		"missing_count":    missing,
		"wishlisted_count": wishlisted,
	})
}

func (s *Server) handleListAlbums(w http.ResponseWriter, r *http.Request) {
	ownedOnly := r.URL.Query().Get("owned") == "true"
	search := r.URL.Query().Get("search")

	albums, err := s.db.ListAlbums(ownedOnly, search)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error retrieving albums")
		return
	}
	if albums == nil {
		albums = []models.Album{}
	}
	writeJSON(w, http.StatusOK, albums)
}

// handleGetAlbum returns one album with its tracks.
func (s *Server) handleGetAlbum(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid album ID")
		return
	}

	album, err := s.db.GetAlbumByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "album not found")
		return
	}
	tracks, err := s.db.GetTracksByAlbum(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error retrieving tracks")
		return
	}
	if tracks == nil {
		tracks = []models.Track{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"album":  album,
		"tracks": tracks,
	})
}

func (s *Server) handleWishlist(w http.ResponseWriter, r *http.Request) {
	albums, err := s.db.WishlistedAlbums()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error retrieving wishlist")
		return
	}
	if albums == nil {
		albums = []models.Album{}
	}
	writeJSON(w, http.StatusOK, albums)
}

func (s *Server) handleWishlistAdd(w http.ResponseWriter, r *http.Request) {
	s.setWishlisted(w, r, true)
}

func (s *Server) handleWishlistRemove(w http.ResponseWriter, r *http.Request) {
	s.setWishlisted(w, r, false)
}

func (s *Server) setWishlisted(w http.ResponseWriter, r *http.Request, wishlisted bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid album ID")
		return
	}
	album, err := s.db.GetAlbumByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "album not found")
		return
	}
	if wishlisted && album.IsOwned {
		writeError(w, http.StatusConflict, "album is already in the library")
		return
	}
	if err := s.db.SetAlbumWishlisted(id, wishlisted); err != nil {
		writeError(w, http.StatusInternalServerError, "error updating wishlist")
		return
	}
	album.IsWishlisted = wishlisted
	writeJSON(w, http.StatusOK, album)
}

// handleMusicBrainzSearch proxies a release lookup for the UI's
// manual-match flow.
func (s *Server) handleMusicBrainzSearch(w http.ResponseWriter, r *http.Request) {
	albumTitle := r.URL.Query().Get("album")
	artistName := r.URL.Query().Get("artist")
	if albumTitle == "" {
		writeError(w, http.StatusBadRequest, "album parameter is required")
		return
	}
	if s.musicbrainz == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata resolver is disabled")
		return
	}

	match, err := s.musicbrainz.SearchRelease(albumTitle, artistName)
	if err != nil {
		writeError(w, http.StatusBadGateway, "metadata lookup failed")
		return
	}
	if match == nil {
		writeError(w, http.StatusNotFound, "no matching release found")
		return
	}
	writeJSON(w, http.StatusOK, match)
}
