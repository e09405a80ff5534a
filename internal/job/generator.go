// Package job runs a single voice clone generation from reference sample to
// saved WAV file.
package job

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/fileutil"
	"github.com/book-expert/voice-clone-service/internal/inference"
	"github.com/book-expert/voice-clone-service/internal/media"
)

const (
	// VoiceSampleRate is the rate reference voices are decoded at before embedding.
	VoiceSampleRate = 24000
	// DefaultOutputPrefix starts every output filename unless overridden.
	DefaultOutputPrefix = "output"

	timestampLayout = "20060102_150405"
	outputExtension = ".wav"
)

// Stage names, used as the prefix of every failure message.
const (
	StageDecodeVoice     = "decode voice"
	StageEmbedding       = "speaker embedding"
	StageConditioning    = "prepare conditioning"
	StageGenerate        = "generate"
	StageDecodeWaveform  = "decode waveform"
	StageOutputDirectory = "output directory"
	StageWriteOutput     = "write output"
)

const (
	logFmtJobStarted  = "Generation started: voice='%s' chars=%d output_dir='%s'"
	logFmtStageDone   = "Stage '%s' completed in %s"
	logFmtJobFinished = "Generation finished: %s"
	logFmtJobFailed   = "Generation failed: %s"
	errFmtPanic       = "unexpected failure: %v\n%s"
)

// ErrEmptyWaveform is returned when the model decodes to zero samples.
var ErrEmptyWaveform = errors.New("synthesis produced no audio")

// VoiceDecoder loads a reference voice sample as mono PCM.
type VoiceDecoder interface {
	Decode(ctx context.Context, path string, targetSampleRate int, timeout time.Duration) (core.DecodedAudio, error)
}

// StageError records which step of a generation failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Generator executes generation jobs. It holds no per-job state, so one
// Generator may run any number of jobs sequentially.
type Generator struct {
	decoder  VoiceDecoder
	synth    core.Synthesizer
	log      *logger.Logger
	prefix   string
	language string
	now      func() time.Time
}

// Option customizes a Generator.
type Option func(*Generator)

// WithOutputPrefix sets the output filename prefix.
func WithOutputPrefix(prefix string) Option {
	return func(g *Generator) {
		if prefix != "" {
			g.prefix = fileutil.SanitizeFilename(prefix)
		}
	}
}

// WithLanguage sets the language tag passed to conditioning.
func WithLanguage(language string) Option {
	return func(g *Generator) {
		if language != "" {
			g.language = language
		}
	}
}

// WithClock replaces time.Now when naming output files.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator creates a Generator.
func NewGenerator(decoder VoiceDecoder, synth core.Synthesizer, log *logger.Logger, opts ...Option) *Generator {
	g := &Generator{
		decoder:  decoder,
		synth:    synth,
		log:      log,
		prefix:   DefaultOutputPrefix,
		language: inference.DefaultLanguage,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// OutputFileName builds "<prefix>_<YYYYMMDD_HHMMSS>.wav". Two names built in
// the same second are identical.
func OutputFileName(prefix string, t time.Time) string {
	return prefix + "_" + t.Format(timestampLayout) + outputExtension
}

// Run executes every stage of req and converts any error or panic into a
// failed outcome. It never panics.
func (g *Generator) Run(ctx context.Context, req core.GenerationRequest) (outcome core.Outcome) {
	defer func() {
		recovered := recover()
		if recovered != nil {
			message := fmt.Sprintf(errFmtPanic, recovered, debug.Stack())
			g.log.Error(logFmtJobFailed, message)
			outcome = core.Failure(message)
		}
	}()

	g.log.Info(logFmtJobStarted, req.VoicePath, len([]rune(req.Text)), req.OutputDir)

	outputPath, err := g.run(ctx, req)
	if err != nil {
		g.log.Error(logFmtJobFailed, err)

		return core.Failure(err.Error())
	}

	g.log.Info(logFmtJobFinished, outputPath)

	return core.Success(outputPath)
}

func (g *Generator) run(ctx context.Context, req core.GenerationRequest) (string, error) {
	var audio core.DecodedAudio

	err := g.stage(ctx, StageDecodeVoice, func() error {
		var decodeErr error
		audio, decodeErr = g.decoder.Decode(ctx, req.VoicePath, VoiceSampleRate, req.Timeout)

		return decodeErr
	})
	if err != nil {
		return "", err
	}

	var embedding core.Embedding

	err = g.stage(ctx, StageEmbedding, func() error {
		var embedErr error
		embedding, embedErr = g.synth.MakeSpeakerEmbedding(ctx, audio)

		return embedErr
	})
	if err != nil {
		return "", err
	}

	var conditioning core.Conditioning

	err = g.stage(ctx, StageConditioning, func() error {
		var prepErr error
		conditioning, prepErr = g.synth.PrepareConditioning(ctx, req.Text, embedding, g.language)

		return prepErr
	})
	if err != nil {
		return "", err
	}

	var codes core.Codes

	err = g.stage(ctx, StageGenerate, func() error {
		var genErr error
		codes, genErr = g.synth.Generate(ctx, conditioning)

		return genErr
	})
	if err != nil {
		return "", err
	}

	var waveform core.Waveform

	err = g.stage(ctx, StageDecodeWaveform, func() error {
		var decodeErr error

		waveform, decodeErr = g.synth.Decode(ctx, codes)
		if decodeErr == nil && len(waveform.Samples) == 0 {
			decodeErr = ErrEmptyWaveform
		}

		return decodeErr
	})
	if err != nil {
		return "", err
	}

	return g.persist(ctx, req.OutputDir, waveform)
}

func (g *Generator) persist(ctx context.Context, outputDir string, waveform core.Waveform) (string, error) {
	var absDir string

	err := g.stage(ctx, StageOutputDirectory, func() error {
		dirErr := fileutil.EnsureDir(outputDir)
		if dirErr != nil {
			return dirErr
		}

		var absErr error
		absDir, absErr = filepath.Abs(outputDir)

		return absErr
	})
	if err != nil {
		return "", err
	}

	outputPath := filepath.Join(absDir, OutputFileName(g.prefix, g.now()))

	err = g.stage(ctx, StageWriteOutput, func() error {
		return media.WriteWAV(outputPath, waveform.Samples, waveform.SampleRate)
	})
	if err != nil {
		return "", err
	}

	return outputPath, nil
}

// stage runs fn unless ctx is already done, tagging any error with name.
func (g *Generator) stage(ctx context.Context, name string, fn func() error) error {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return &StageError{Stage: name, Err: fmt.Errorf("job cancelled: %w", ctxErr)}
	}

	started := time.Now()

	err := fn()
	if err != nil {
		return &StageError{Stage: name, Err: err}
	}

	g.log.Info(logFmtStageDone, name, time.Since(started).Round(time.Millisecond))

	return nil
}
