package server

import (
	"context"
	"net/http"
	"time"

	"audiosource/internal/acquisition"
	"audiosource/internal/config"
	"audiosource/internal/database"
	"audiosource/internal/metadata"
	"audiosource/internal/musicbrainz"
	"audiosource/internal/ngrok"
	"audiosource/internal/scanner"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Server is the HTTP surface over the library, scanner and
// acquisition services.
type Server struct {
	config       *config.Config
	db           *database.Database
	extractor    *metadata.Extractor
	scanner      *scanner.Service
	acquisition  *acquisition.Service
	musicbrainz  *musicbrainz.Client
	ngrokService *ngrok.Service
	watcher      *fsnotify.Watcher
	logger       *logrus.Logger

	httpServer *http.Server
}

// NewServer assembles the HTTP server over already-constructed
// services.
func NewServer(cfg *config.Config, db *database.Database, extractor *metadata.Extractor,
	scan *scanner.Service, acq *acquisition.Service, mb *musicbrainz.Client) (*Server, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ngrokSvc, err := ngrok.NewService(&cfg.Ngrok)
	if err != nil {
		logger.WithError(err).Warn("Ngrok service not available")
		ngrokSvc = nil
	}

	return &Server{
		config:       cfg,
		db:           db,
		extractor:    extractor,
		scanner:      scan,
		acquisition:  acq,
		musicbrainz:  mb,
		ngrokService: ngrokSvc,
		logger:       logger,
	}, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /api/artists", s.handleListArtists)
	mux.HandleFunc("GET /api/artists/{id}", s.handleGetArtist)

	mux.HandleFunc("GET /api/albums", s.handleListAlbums)
	mux.HandleFunc("GET /api/albums/{id}", s.handleGetAlbum)
	mux.HandleFunc("POST /api/albums/{id}/wishlist", s.handleWishlistAdd)
	mux.HandleFunc("DELETE /api/albums/{id}/wishlist", s.handleWishlistRemove)
	mux.HandleFunc("GET /api/wishlist", s.handleWishlist)

	mux.HandleFunc("GET /api/musicbrainz/search", s.handleMusicBrainzSearch)

	mux.HandleFunc("POST /api/scan", s.handleStartScan)
	mux.HandleFunc("GET /api/scan/status", s.handleScanStatus)
	mux.HandleFunc("POST /api/scan/cancel", s.handleCancelScan)
	mux.HandleFunc("GET /api/scan/schedule", s.handleGetSchedule)
	mux.HandleFunc("PUT /api/scan/schedule", s.handleUpdateSchedule)
	mux.HandleFunc("POST /api/discography/refresh", s.handleDiscographyRefresh)

	mux.HandleFunc("POST /api/albums/{id}/download", s.handleRequestDownload)
	mux.HandleFunc("GET /api/downloads", s.handleListDownloads)
	mux.HandleFunc("GET /api/downloads/{id}", s.handleGetDownload)
	mux.HandleFunc("POST /api/downloads/{id}/retry", s.handleRetryDownload)
	mux.HandleFunc("POST /api/downloads/{id}/cancel", s.handleCancelDownload)
	mux.HandleFunc("POST /api/downloads/{id}/import", s.handleImportDownload)
	mux.HandleFunc("DELETE /api/downloads/{id}", s.handleDeleteDownload)

	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.requestLoggingMiddleware(handler)
	handler = s.panicRecoveryMiddleware(handler)
	return handler
}

// Start runs the server until the context is cancelled. The file
// watcher, scheduler and optional ngrok tunnel run alongside it.
func (s *Server) Start(ctx context.Context) error {
	if s.config.Library.WatchForChanges {
		if err := s.startFileWatcher(); err != nil {
			s.logger.WithError(err).Warn("Could not start file watcher")
		} else {
			defer s.stopFileWatcher()
		}
	}

	go s.runScheduler(ctx)

	localAddress := "http://" + s.config.GetAddress()
	if s.ngrokService != nil {
		if err := s.ngrokService.StartTunnel(ctx, localAddress); err != nil {
			s.logger.WithError(err).Warn("Could not start ngrok tunnel")
		} else {
			defer s.ngrokService.Stop()
		}
	}

	s.httpServer = &http.Server{
		Addr:        s.config.GetAddress(),
		Handler:     s.routes(),
		ReadTimeout: time.Duration(s.config.Server.ReadTimeout) * time.Second,
	}

	s.logger.WithField("address", localAddress).Info("AudioSource server starting")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
