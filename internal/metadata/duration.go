package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/tcolgate/mp3"
)

// calculateDuration probes the duration of an audio file in seconds.
// Each container gets its own decoder; unsupported formats report an
// error and the caller leaves the duration absent.
func (e *Extractor) calculateDuration(filePath string) (int, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mp3":
		return e.durationMP3(filePath)
	case ".flac":
		return e.durationFLAC(filePath)
	case ".wav":
		return e.durationWAV(filePath)
	case ".m4a", ".aac":
		return e.durationMP4(filePath)
	default:
		return 0, fmt.Errorf("unsupported format: %s", filepath.Ext(filePath))
	}
}

// MP3 duration by summing frame durations; falls back to an average
// bitrate estimate only when no frame decodes at all.
func (e *Extractor) durationMP3(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var frame mp3.Frame
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				// assume 192 kbps
				return e.estimateFromFileSize(path, 192000)
			}
			break // partial decode; use what we have
		}
		total += frame.Duration()
		frames++
	}
	return int(total.Seconds()), nil
}

// FLAC duration via the STREAMINFO metadata block.
func (e *Extractor) durationFLAC(path string) (int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	info := stream.Info
	if info.NSamples == 0 || info.SampleRate == 0 {
		return 0, fmt.Errorf("flac stream missing sample info")
	}
	secs := float64(info.NSamples) / float64(info.SampleRate)
	return int(secs + 0.5), nil
}

// WAV duration from the header plus the PCM payload size.
func (e *Extractor) durationWAV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	pcmBytes := st.Size() - 44 // canonical header size
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerFrame <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	secs := float64(pcmBytes/bytesPerFrame) / float64(dec.SampleRate)
	return int(secs + 0.5), nil
}

// MP4-family duration from the mvhd atom (timescale + duration units).
// Minimal manual atom walk; best-effort.
func (e *Extractor) durationMP4(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	for {
		size, name, err := readAtomHeader(f)
		if err != nil {
			return 0, err
		}
		if name != "moov" {
			if _, err := f.Seek(size-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			continue
		}
		return readMovieHeader(f, size-8)
	}
}

func readAtomHeader(r io.Reader) (int64, string, error) {
	head := make([]byte, 8)
	if _, err := io.ReadFull(r, head); err != nil {
		return 0, "", err
	}
	size := int64(binary.BigEndian.Uint32(head[0:4]))
	if size < 8 {
		return 0, "", fmt.Errorf("invalid atom size")
	}
	return size, string(head[4:8]), nil
}

// readMovieHeader scans inside a moov atom for mvhd and derives the
// duration from its timescale.
func readMovieHeader(f *os.File, limit int64) (int, error) {
	for read := int64(0); read < limit; {
		size, name, err := readAtomHeader(f)
		if err != nil {
			return 0, err
		}
		if name != "mvhd" {
			if _, err := f.Seek(size-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			read += size
			continue
		}

		version := make([]byte, 1)
		if _, err := io.ReadFull(f, version); err != nil {
			return 0, err
		}
		// flags + creation/modification times, sized by version
		skip := int64(3 + 4 + 4)
		if version[0] == 1 {
			skip = 3 + 8 + 8
		}
		if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
			return 0, err
		}

		buf := make([]byte, 8)
		if _, err := io.ReadFull(f, buf); err != nil {
			return 0, err
		}
		timescale := binary.BigEndian.Uint32(buf[0:4])
		durationUnits := binary.BigEndian.Uint32(buf[4:8])
		if timescale == 0 {
			return 0, fmt.Errorf("invalid timescale")
		}
		secs := float64(durationUnits) / float64(timescale)
		return int(secs + 0.5), nil
	}
	return 0, fmt.Errorf("mvhd atom not found")
}

// estimateFromFileSize provides last-resort estimation if parsing fails.
func (e *Extractor) estimateFromFileSize(path string, bitrate int) (int, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	return int((st.Size() * 8) / int64(bitrate)), nil
}
