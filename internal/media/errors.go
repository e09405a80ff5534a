package media

import (
	"errors"
	"fmt"
	"strings"
)

// Decode error kinds. A *DecodeError always unwraps to exactly one of these.
var (
	// ErrPrimaryFailed indicates the primary decoder rejected the file and no fallback was available.
	ErrPrimaryFailed = errors.New("primary decode failed")
	// ErrTimeout indicates the fallback transcoder did not finish within its budget.
	ErrTimeout = errors.New("transcoding timed out, the file may be corrupted")
	// ErrTranscodeFailed indicates the fallback transcoder exited with a non-zero status.
	ErrTranscodeFailed = errors.New("transcoding failed")
	// ErrUnknown covers every other failure during either decode attempt.
	ErrUnknown = errors.New("unexpected decode failure")
)

// Errors reported by the primary decoding facility.
var (
	// ErrUnsupportedContainer indicates the primary decoder has no codec for the file's container.
	ErrUnsupportedContainer = errors.New("unsupported container")
	// ErrEmptyAudio indicates the decoded stream contained no samples.
	ErrEmptyAudio = errors.New("decoded audio is empty")
	// ErrInvalidSampleRate indicates a non-positive sample rate.
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
)

// DecodeError describes why a media file could not be turned into PCM.
type DecodeError struct {
	Kind   error
	Path   string
	Output string
	Err    error
}

func newDecodeError(kind error, path string, cause error) *DecodeError {
	return &DecodeError{Kind: kind, Path: path, Err: cause}
}

func (e *DecodeError) Error() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("%v: %s", e.Kind, e.Path))

	if e.Err != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Err.Error())
	}

	if e.Output != "" {
		builder.WriteString(" - output: ")
		builder.WriteString(strings.TrimSpace(e.Output))
	}

	return builder.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is and errors.As.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// ProcessError is returned by a transcoder whose process exited unsuccessfully.
type ProcessError struct {
	ExitCode int
	Output   string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("transcoder exited with status %d: %s", e.ExitCode, strings.TrimSpace(e.Output))
}
