// Package media turns voice sample files into normalized mono PCM and
// persists synthesized audio as WAV.
//
// Decoding is a two-step chain: the primary in-process decoders first, then
// a single transcoder pass into a scoped temporary file. There is no loop.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/core"
)

const fallbackTempPattern = "voiceclone-fallback-*.wav"

// Decoder loads media files with a transcoder fallback.
type Decoder struct {
	transcoder core.Transcoder
	tempDir    string
	log        *logger.Logger
}

// NewDecoder creates a Decoder. A nil transcoder disables the fallback; an
// empty tempDir uses the OS default.
func NewDecoder(transcoder core.Transcoder, tempDir string, log *logger.Logger) *Decoder {
	return &Decoder{
		transcoder: transcoder,
		tempDir:    tempDir,
		log:        log,
	}
}

// Decode loads path as mono PCM at targetSampleRate. timeout bounds the
// fallback transcoder only; zero means no bound beyond ctx.
func (d *Decoder) Decode(
	ctx context.Context,
	path string,
	targetSampleRate int,
	timeout time.Duration,
) (core.DecodedAudio, error) {
	if targetSampleRate <= 0 {
		return core.DecodedAudio{}, newDecodeError(
			ErrUnknown, path, fmt.Errorf("%w: got %d", ErrInvalidSampleRate, targetSampleRate),
		)
	}

	audio, primaryErr := safeDecodeFile(path, targetSampleRate)
	if primaryErr == nil {
		return audio, nil
	}

	if d.transcoder == nil {
		return core.DecodedAudio{}, newDecodeError(ErrPrimaryFailed, path, primaryErr)
	}

	d.log.Warn("Primary decode failed for '%s', falling back to transcoder: %v", path, primaryErr)

	return d.decodeWithFallback(ctx, path, targetSampleRate, timeout)
}

func (d *Decoder) decodeWithFallback(
	ctx context.Context,
	path string,
	targetSampleRate int,
	timeout time.Duration,
) (core.DecodedAudio, error) {
	tempFile, err := os.CreateTemp(d.tempDir, fallbackTempPattern)
	if err != nil {
		return core.DecodedAudio{}, newDecodeError(
			ErrUnknown, path, fmt.Errorf("failed to create temp file for transcoding: %w", err),
		)
	}

	tempPath := tempFile.Name()

	defer func() {
		removeErr := os.Remove(tempPath)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			d.log.Warn("Failed to remove temp file '%s': %v", tempPath, removeErr)
		}
	}()

	closeErr := tempFile.Close()
	if closeErr != nil {
		return core.DecodedAudio{}, newDecodeError(
			ErrUnknown, path, fmt.Errorf("failed to close temp file: %w", closeErr),
		)
	}

	transcodeCtx := ctx

	if timeout > 0 {
		var cancel context.CancelFunc

		transcodeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	transcodeErr := d.transcoder.Transcode(transcodeCtx, path, tempPath, targetSampleRate)
	if transcodeErr != nil {
		return core.DecodedAudio{}, classifyTranscodeError(path, transcodeErr, transcodeCtx.Err())
	}

	audio, decodeErr := safeDecodeFile(tempPath, targetSampleRate)
	if decodeErr != nil {
		return core.DecodedAudio{}, newDecodeError(
			ErrUnknown, path, fmt.Errorf("failed to decode transcoded audio: %w", decodeErr),
		)
	}

	d.log.Info("Decoded '%s' through transcoder fallback (%d samples)", path, len(audio.Samples))

	return audio, nil
}

func classifyTranscodeError(path string, transcodeErr, ctxErr error) error {
	if errors.Is(transcodeErr, context.DeadlineExceeded) || errors.Is(ctxErr, context.DeadlineExceeded) {
		return newDecodeError(ErrTimeout, path, transcodeErr)
	}

	var processErr *ProcessError
	if errors.As(transcodeErr, &processErr) {
		decodeErr := newDecodeError(ErrTranscodeFailed, path, nil)
		decodeErr.Output = processErr.Output

		return decodeErr
	}

	return newDecodeError(ErrUnknown, path, transcodeErr)
}

// safeDecodeFile converts panics raised inside third-party decoders into errors.
func safeDecodeFile(path string, targetSampleRate int) (audio core.DecodedAudio, err error) {
	defer func() {
		recovered := recover()
		if recovered != nil {
			err = fmt.Errorf("decoder panic: %v\n%s", recovered, debug.Stack())
		}
	}()

	return decodeFile(path, targetSampleRate)
}
