package metadata

import (
	"os"
	"path/filepath"
	"strings"

	"audiosource/pkg/models"

	"github.com/dhowden/tag"
	"github.com/sirupsen/logrus"
)

// Extractor reads tags and durations from audio files.
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
}

// NewExtractor creates a new metadata extractor for the given set of
// audio file extensions (lower case, dot included).
func NewExtractor(supportedFormats []string) *Extractor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Extractor{
		supportedFormats: supportedFormats,
		logger:           logger,
	}
}

// IsAudioFile checks if a file is a supported audio format
func (e *Extractor) IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// ExtractTrackInfo reads one audio file and returns its metadata.
// It never fails the caller: unreadable or untagged files degrade to a
// record built from the filename stem, so one corrupt file cannot sink
// a whole folder scan.
func (e *Extractor) ExtractTrackInfo(filePath string) models.TrackInfo {
	info := models.TrackInfo{
		Title:      stemOf(filePath),
		DiscNumber: 1,
		FilePath:   filePath,
		FileFormat: formatOf(filePath),
	}

	if duration, err := e.calculateDuration(filePath); err == nil && duration > 0 {
		info.DurationSeconds = &duration
	}

	file, err := os.Open(filePath)
	if err != nil {
		e.logger.WithError(err).WithField("file_path", filePath).Warn("Failed to open audio file, using filename")
		return info
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		e.logger.WithError(err).WithField("file_path", filePath).Warn("Failed to extract metadata, using filename")
		return info
	}

	if title := strings.TrimSpace(metadata.Title()); title != "" {
		info.Title = title
	}
	if album := strings.TrimSpace(metadata.Album()); album != "" {
		info.Album = &album
	}
	if artist := strings.TrimSpace(metadata.Artist()); artist != "" {
		info.Artist = &artist
	}
	if trackNumber, _ := metadata.Track(); trackNumber > 0 {
		info.TrackNumber = &trackNumber
	}
	if discNumber, _ := metadata.Disc(); discNumber > 0 {
		info.DiscNumber = discNumber
	}

	return info
}

// stemOf returns the filename without directory or extension.
func stemOf(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// formatOf returns the upper-cased extension without the dot, e.g. MP3.
func formatOf(filePath string) string {
	return strings.ToUpper(strings.TrimPrefix(filepath.Ext(filePath), "."))
}
