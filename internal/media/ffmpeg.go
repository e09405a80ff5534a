package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

const (
	defaultFFmpegBinary = "ffmpeg"
	// processWaitDelay bounds how long we wait for pipes after the process is killed.
	processWaitDelay = 2 * time.Second
)

// FFmpegTranscoder implements core.Transcoder by running an ffmpeg-compatible binary.
type FFmpegTranscoder struct {
	binaryPath string
}

// NewFFmpegTranscoder creates a transcoder. An empty binaryPath resolves "ffmpeg" from PATH.
func NewFFmpegTranscoder(binaryPath string) *FFmpegTranscoder {
	if binaryPath == "" {
		binaryPath = defaultFFmpegBinary
	}

	return &FFmpegTranscoder{binaryPath: binaryPath}
}

// BinaryPath returns the executable this transcoder invokes.
func (t *FFmpegTranscoder) BinaryPath() string {
	return t.binaryPath
}

// Transcode converts src into a mono PCM WAV at sampleRate, overwriting dst.
// The context deadline bounds the process; hitting it returns an error
// wrapping context.DeadlineExceeded.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, src, dst string, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleRate, sampleRate)
	}

	args := []string{
		"-y",
		"-i", src,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-vn",
		"-f", "wav",
		dst,
	}

	// #nosec G204 -- binary comes from trusted configuration, paths are passed as discrete args
	cmd := exec.CommandContext(ctx, t.binaryPath, args...)
	cmd.WaitDelay = processWaitDelay

	output, err := cmd.CombinedOutput()

	ctxErr := ctx.Err()
	if ctxErr != nil {
		return fmt.Errorf("transcoder interrupted: %w", ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ProcessError{ExitCode: exitErr.ExitCode(), Output: string(output)}
		}

		return fmt.Errorf("failed to run transcoder %s: %w", t.binaryPath, err)
	}

	return nil
}
