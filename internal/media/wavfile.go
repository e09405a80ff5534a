package media

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	outputBitDepth  = 16
	pcmAudioFormat  = 1
	maxInt16        = math.MaxInt16
	filePermissions = 0o600
	tempFileSuffix  = ".tmp"
)

// ErrInvalidWAV is returned when a file is not a readable WAV file.
var ErrInvalidWAV = errors.New("invalid WAV file")

// WAVInfo describes the header of a WAV file.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// WriteWAV persists mono float samples in [-1, 1] as 16-bit PCM. Out of
// range samples are clipped. The samples go to a temp file next to path
// that is renamed into place, so a failed write leaves any existing file
// at path untouched.
func WriteWAV(path string, samples []float32, sampleRate int) (err error) {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleRate, sampleRate)
	}

	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*"+tempFileSuffix)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	tempPath := file.Name()

	defer func() {
		if err != nil {
			_ = os.Remove(tempPath)
		}
	}()

	encoder := wav.NewEncoder(file, sampleRate, outputBitDepth, monoChannels, pcmAudioFormat)

	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: monoChannels, SampleRate: sampleRate},
		Data:           toPCM16(samples),
		SourceBitDepth: outputBitDepth,
	}

	writeErr := encoder.Write(buffer)
	encodeCloseErr := encoder.Close()
	fileCloseErr := file.Close()

	joined := errors.Join(writeErr, encodeCloseErr, fileCloseErr)
	if joined != nil {
		return fmt.Errorf("failed to write WAV %s: %w", path, joined)
	}

	err = os.Chmod(tempPath, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", tempPath, err)
	}

	err = os.Rename(tempPath, path)
	if err != nil {
		return fmt.Errorf("failed to move WAV into place at %s: %w", path, err)
	}

	return nil
}

// ReadWAVInfo reads the header of a WAV file.
func ReadWAVInfo(path string) (WAVInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, fmt.Errorf("failed to open WAV %s: %w", path, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return WAVInfo{}, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	duration, err := decoder.Duration()
	if err != nil {
		return WAVInfo{}, fmt.Errorf("failed to read WAV duration %s: %w", path, err)
	}

	return WAVInfo{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
		Duration:   duration,
	}, nil
}

func toPCM16(samples []float32) []int {
	data := make([]int, len(samples))

	for i, sample := range samples {
		value := float64(sample)

		switch {
		case math.IsNaN(value):
			value = 0
		case value > 1:
			value = 1
		case value < -1:
			value = -1
		}

		data[i] = int(math.Round(value * maxInt16))
	}

	return data
}
