package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FindAlbumFolders walks the library root and returns every directory
// that directly contains at least one supported audio file. Nested
// album folders are each reported on their own. A missing root is not
// an error: a fresh install simply has an empty library.
func (s *Service) FindAlbumFolders(root string) ([]string, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		s.logger.WithField("path", root).Warn("Library path does not exist")
		return nil, nil
	}

	folders := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree; skip it rather than abort the walk.
			s.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if s.extractor.IsAudioFile(path) {
			folders[filepath.Dir(path)] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(folders))
	for folder := range folders {
		result = append(result, folder)
	}
	sort.Strings(result)
	return result, nil
}

// audioFilesIn lists the supported audio files directly inside a
// folder, ignoring subdirectories.
func (s *Service) audioFilesIn(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(folder, entry.Name())
		if s.extractor.IsAudioFile(path) {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}
