// Package core defines the core business types and interfaces for the voice clone service.
package core

import (
	"context"
	"time"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// DecodedAudio is a normalized PCM buffer. Channels is always 1 once a
// decoder has returned it.
type DecodedAudio struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration reports the playback length of the buffer.
func (a DecodedAudio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}

	return time.Duration(len(a.Samples)) * time.Second / time.Duration(a.SampleRate)
}

// Waveform is the synthesized output of the inference decoder stage.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Embedding is an opaque speaker representation.
type Embedding []float32

// Conditioning is an opaque prepared synthesis request.
type Conditioning []byte

// Codes are the raw model codes produced by generation.
type Codes []byte

// Synthesizer is the capability boundary of the external inference service.
// Implementations are only ever driven by one job at a time and need not be
// safe for concurrent use.
type Synthesizer interface {
	MakeSpeakerEmbedding(ctx context.Context, audio DecodedAudio) (Embedding, error)
	PrepareConditioning(ctx context.Context, text string, speaker Embedding, language string) (Conditioning, error)
	Generate(ctx context.Context, conditioning Conditioning) (Codes, error)
	Decode(ctx context.Context, codes Codes) (Waveform, error)
}

// Transcoder converts an arbitrary media file into a mono PCM WAV file at
// sampleRate, written to dst.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string, sampleRate int) error
}

// Preferences is a read-only view of the user preference key-value store.
type Preferences interface {
	GetString(key string) string
}

// GenerationRequest is immutable once submitted; it is passed by value.
type GenerationRequest struct {
	VoicePath string
	Text      string
	OutputDir string
	Timeout   time.Duration
}

// JobStatus is a step in the lifecycle of a generation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Outcome is the terminal result of a generation job. Exactly one of
// OutputPath (on success) or Message (on failure) is meaningful.
type Outcome struct {
	Status     JobStatus
	OutputPath string
	Message    string
}

// Success builds a successful outcome.
func Success(outputPath string) Outcome {
	return Outcome{Status: JobStatusSucceeded, OutputPath: outputPath}
}

// Failure builds a failed outcome.
func Failure(message string) Outcome {
	return Outcome{Status: JobStatusFailed, Message: message}
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.Status == JobStatusSucceeded
}
