package server

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// How long to wait after the last filesystem event before triggering a
// rescan, so a burst of copies collapses into one scan.
const watcherDebounce = 30 * time.Second

// startFileWatcher initializes fsnotify for recursive library
// monitoring. Changes do not get ingested file-by-file; they schedule
// a debounced library scan, which keeps the folder-level album model
// authoritative.
func (s *Server) startFileWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	go s.watchFiles()

	if err := s.addDirectoryToWatcher(s.config.Library.Path); err != nil {
		return err
	}

	s.logger.WithField("library_path", s.config.Library.Path).Info("File watcher started")
	return nil
}

// addDirectoryToWatcher recursively walks and adds subdirectories to
// the watcher.
func (s *Server) addDirectoryToWatcher(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return s.watcher.Add(path)
		}
		return nil
	})
}

// watchFiles selects on watcher channels, coalescing events into one
// pending scan trigger.
func (s *Server) watchFiles() {
	defer s.watcher.Close()

	debounce := time.NewTimer(watcherDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if s.handleFileEvent(event) {
				debounce.Reset(watcherDebounce)
				pending = true
			}

		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false
			if err := s.scanner.StartScan(false); err != nil {
				// A running scan will pick the changes up anyway.
				s.logger.WithError(err).Debug("Watcher-triggered scan skipped")
			} else {
				s.logger.Info("Library change detected, scan started")
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Error("File watcher error")
		}
	}
}

// handleFileEvent filters events and reports whether one is relevant
// to the library. New directories are added to the watch set.
func (s *Server) handleFileEvent(event fsnotify.Event) bool {
	fileName := filepath.Base(event.Name)
	if strings.HasPrefix(fileName, ".") || strings.HasSuffix(fileName, ".tmp") {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := s.watcher.Add(event.Name); err == nil {
				s.logger.WithField("directory", event.Name).Debug("Watching new directory")
			}
			return true
		}
	}

	if s.extractor.IsAudioFile(event.Name) {
		return event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) ||
			event.Has(fsnotify.Rename) || event.Has(fsnotify.Write)
	}
	return false
}

// stopFileWatcher closes the watcher (idempotent).
func (s *Server) stopFileWatcher() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}
