package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

const (
	// resampleQuality trades CPU for fidelity; beep accepts 1 through 64.
	resampleQuality  = 6
	streamBufferSize = 4096
	monoChannels     = 1
)

type streamDecoder func(file *os.File) (beep.StreamSeekCloser, beep.Format, error)

func decoderFor(path string) (streamDecoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return func(file *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(file) }, nil
	case ".mp3":
		return func(file *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(file) }, nil
	case ".flac":
		return func(file *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(file) }, nil
	case ".ogg":
		return func(file *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(file) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContainer, filepath.Ext(path))
	}
}

// decodeFile runs the primary decoding facility: decode, resample to
// targetSampleRate when needed, and downmix to mono.
func decodeFile(path string, targetSampleRate int) (core.DecodedAudio, error) {
	decode, err := decoderFor(path)
	if err != nil {
		return core.DecodedAudio{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return core.DecodedAudio{}, fmt.Errorf("failed to open media file: %w", err)
	}
	defer file.Close()

	streamer, format, err := decode(file)
	if err != nil {
		return core.DecodedAudio{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	defer streamer.Close()

	if format.SampleRate <= 0 {
		return core.DecodedAudio{}, fmt.Errorf("%w: source reports %d Hz", ErrInvalidSampleRate, format.SampleRate)
	}

	var source beep.Streamer = streamer

	if int(format.SampleRate) != targetSampleRate {
		source = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(targetSampleRate), streamer)
	}

	samples, err := drainMono(source, streamer.Len(), int(format.SampleRate), targetSampleRate)
	if err != nil {
		return core.DecodedAudio{}, err
	}

	return core.DecodedAudio{
		Samples:    samples,
		SampleRate: targetSampleRate,
		Channels:   monoChannels,
	}, nil
}

// drainMono reads the whole stream, averaging the two beep channels. Mono
// sources carry identical channels, so the average leaves them unchanged.
func drainMono(source beep.Streamer, sourceLen, sourceRate, targetRate int) ([]float32, error) {
	estimated := 0
	if sourceLen > 0 && sourceRate > 0 {
		estimated = int(int64(sourceLen) * int64(targetRate) / int64(sourceRate))
	}

	samples := make([]float32, 0, estimated)
	buffer := make([][2]float64, streamBufferSize)

	for {
		count, ok := source.Stream(buffer)
		for i := range count {
			samples = append(samples, float32((buffer[i][0]+buffer[i][1])/2))
		}

		if !ok {
			break
		}
	}

	streamErr := source.Err()
	if streamErr != nil {
		return nil, fmt.Errorf("failed to read audio stream: %w", streamErr)
	}

	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	return samples, nil
}
