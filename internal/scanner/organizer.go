package scanner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"audiosource/internal/metadata"

	"github.com/sirupsen/logrus"
)

// Organizer moves a finished download into the canonical library
// layout: {root}/{Artist}/{Album}/ with tracks renamed from their
// tags. It never overwrites existing library data.
type Organizer struct {
	libraryRoot string
	extractor   *metadata.Extractor
	logger      *logrus.Logger
	move        func(src, dst string) error
}

// NewOrganizer creates an organizer rooted at the library path.
func NewOrganizer(libraryRoot string, extractor *metadata.Extractor) *Organizer {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Organizer{
		libraryRoot: libraryRoot,
		extractor:   extractor,
		logger:      logger,
		move:        moveFile,
	}
}

// EnsureCanonical moves an album folder into the canonical layout,
// returning the folder it ends up at. A folder whose root-relative
// segments already match {Artist}/{Album} case-insensitively stays
// put, numbered siblings from an earlier import included.
func (o *Organizer) EnsureCanonical(folder, artistName, albumTitle string) (string, error) {
	if o.isCanonical(folder, artistName, albumTitle) {
		return folder, nil
	}
	return o.ImportFolder(folder, artistName, albumTitle)
}

func (o *Organizer) isCanonical(folder, artistName, albumTitle string) bool {
	rel, err := filepath.Rel(o.libraryRoot, folder)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	segments := strings.Split(rel, string(filepath.Separator))
	if len(segments) != 2 {
		return false
	}
	if !strings.EqualFold(segments[0], sanitizeName(artistName)) {
		return false
	}

	album := strings.ToLower(sanitizeName(albumTitle))
	got := strings.ToLower(segments[1])
	if got == album {
		return true
	}
	// "Album (2)" was allocated on import to avoid a clobber; moving
	// it to "Album (3)" on every rescan would churn forever.
	if rest, ok := strings.CutPrefix(got, album+" ("); ok {
		digits := strings.TrimSuffix(rest, ")")
		return digits != rest && digits != "" && strings.TrimLeft(digits, "0123456789") == ""
	}
	return false
}

// ImportFolder moves every file under sourceDir into the canonical
// album folder for the given artist and album, returning the folder it
// settled on. If that folder already exists with content, a numbered
// sibling like "Album (2)" is used instead so nothing is clobbered.
// Emptied source directories are pruned afterwards.
func (o *Organizer) ImportFolder(sourceDir, artistName, albumTitle string) (string, error) {
	destDir, err := o.allocateAlbumDir(artistName, albumTitle)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}

	moved := 0
	var failed []string
	err = filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		destName := filepath.Base(path)
		if o.extractor.IsAudioFile(path) {
			destName = o.trackFileName(path)
		}
		destPath := uniquePath(filepath.Join(destDir, destName))

		if err := o.move(path, destPath); err != nil {
			// The file keeps its current path; the rest still move.
			o.logger.WithError(err).WithField("file", filepath.Base(path)).Warn("Failed to move file")
			failed = append(failed, filepath.Base(path))
			return nil
		}
		moved++
		return nil
	})
	if err != nil {
		return "", err
	}
	if moved == 0 {
		if len(failed) > 0 {
			return "", fmt.Errorf("all %d file moves failed", len(failed))
		}
		return "", fmt.Errorf("no files to import from %s", sourceDir)
	}
	if len(failed) > 0 {
		o.logger.WithFields(logrus.Fields{
			"failed": len(failed),
			"files":  strings.Join(failed, ", "),
		}).Warn("Some files stayed behind")
	}

	o.pruneEmptyDirs(sourceDir)

	o.logger.WithFields(logrus.Fields{
		"album":  albumTitle,
		"artist": artistName,
		"files":  moved,
		"dest":   destDir,
	}).Info("Organized album into library")
	return destDir, nil
}

// allocateAlbumDir picks the canonical folder, stepping to "(1)",
// "(2)" and so on while the target exists and is non-empty.
func (o *Organizer) allocateAlbumDir(artistName, albumTitle string) (string, error) {
	artistDir := filepath.Join(o.libraryRoot, sanitizeName(artistName))
	base := sanitizeName(albumTitle)

	candidate := filepath.Join(artistDir, base)
	for n := 1; ; n++ {
		empty, err := dirMissingOrEmpty(candidate)
		if err != nil {
			return "", err
		}
		if empty {
			return candidate, nil
		}
		candidate = filepath.Join(artistDir, fmt.Sprintf("%s (%d)", base, n))
	}
}

// trackFileName builds "{NN} - {Title}.{ext}" from the file's tags,
// prefixing the disc number ("{D}-{NN} - ...") on multi-disc sets.
// Files with no track number are named by title alone.
func (o *Organizer) trackFileName(path string) string {
	info := o.extractor.ExtractTrackInfo(path)
	ext := strings.ToLower(filepath.Ext(path))

	if info.TrackNumber == nil {
		return sanitizeName(info.Title) + ext
	}
	number := fmt.Sprintf("%02d", *info.TrackNumber)
	if info.DiscNumber > 1 {
		number = fmt.Sprintf("%d-%s", info.DiscNumber, number)
	}
	return fmt.Sprintf("%s - %s%s", number, sanitizeName(info.Title), ext)
}

// pruneEmptyDirs removes now-empty directories under root, then root
// itself if it emptied out. Failures are ignored; leftover empty dirs
// in the download area are harmless.
func (o *Organizer) pruneEmptyDirs(root string) {
	var dirs []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	// Deepest first so parents empty out as children go.
	for i := len(dirs) - 1; i >= 0; i-- {
		os.Remove(dirs[i])
	}
}

const maxNameLen = 120

// sanitizeName strips characters that are unsafe in folder and file
// names across filesystems and caps the length.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	cleaned := strings.TrimSpace(replacer.Replace(name))
	cleaned = strings.Trim(cleaned, ". ")
	if runes := []rune(cleaned); len(runes) > maxNameLen {
		cleaned = strings.TrimRight(string(runes[:maxNameLen]), ". ")
	}
	if cleaned == "" {
		return "Unknown"
	}
	return cleaned
}

func dirMissingOrEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// uniquePath appends " (N)" before the extension until the path is
// free. Collisions inside a freshly allocated album dir are rare but
// possible when two tracks share a tag title.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// moveFile renames when possible and falls back to copy-and-delete for
// cross-device moves (download dir and library on different mounts).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
