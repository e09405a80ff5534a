package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/book-expert/voice-clone-service/internal/catalog"
	"github.com/book-expert/voice-clone-service/internal/cli/colours"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/fileutil"
	"github.com/book-expert/voice-clone-service/internal/inference"
	"github.com/book-expert/voice-clone-service/internal/job"
	"github.com/book-expert/voice-clone-service/internal/runner"
	"github.com/spf13/cobra"
)

var (
	errNoText      = errors.New("provide text with --text or --text-file")
	errBothTexts   = errors.New("cannot specify both --text and --text-file")
	errNoVoice     = errors.New("provide a preset with --voice or a sample with --voice-file")
	errJobFailed   = errors.New("generation failed")
	errInterrupted = errors.New("interrupted")
)

type generateOptions struct {
	voice     string
	voiceFile string
	text      string
	textFile  string
	outputDir string
	timeout   time.Duration
}

func newGenerateCommand(a *app) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Speak text in a cloned voice and save it as WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.generate(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.voice, "voice", "v", "", "Voice preset name (see 'voiceclone voices')")
	cmd.Flags().StringVar(&opts.voiceFile, "voice-file", "", "Path to a voice sample (audio or video)")
	cmd.Flags().StringVarP(&opts.text, "text", "t", "", "Text to speak")
	cmd.Flags().StringVar(&opts.textFile, "text-file", "", "File containing the text to speak")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "Output directory (defaults to preferences)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Budget for transcoding the voice sample (defaults to preferences)")

	return cmd
}

func (a *app) generate(ctx context.Context, opts generateOptions) error {
	text, err := readText(opts)
	if err != nil {
		return err
	}

	voicePath, err := a.resolveVoice(opts)
	if err != nil {
		return err
	}

	if runner.ExceedsModelLimit(text) {
		colours.Warning.Printf("Text is about %d units; the model stops at %d. The end may be cut off.\n",
			runner.EstimateCost(text), runner.ModelMaxUnits)
	}

	client := inference.NewHTTPClient(a.cfg.Inference.ServiceURL, a.cfg.InferenceTimeout())

	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	err = client.HealthCheck(healthCtx)
	if err != nil {
		return fmt.Errorf("inference service is not available: %w", err)
	}

	notifications := make(runner.ChanNotifier, 1)
	generator := job.NewGenerator(a.newDecoder(), client, a.log, a.generatorOptions()...)
	jobRunner := runner.New(generator, notifications, a.log, runner.Defaults{
		OutputDir: a.outputDir(),
		Timeout:   a.transcodeTimeout(),
	})

	receipt, err := jobRunner.Submit(core.GenerationRequest{
		VoicePath: voicePath,
		Text:      text,
		OutputDir: opts.outputDir,
		Timeout:   opts.timeout,
	})
	if err != nil {
		return err
	}

	colours.Info.Printf("Generating with voice %s (job %s)...\n", filepath.Base(voicePath), receipt.JobID)

	return a.awaitOutcome(ctx, jobRunner, notifications)
}

func (a *app) awaitOutcome(ctx context.Context, jobRunner *runner.Runner, notifications runner.ChanNotifier) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var notification runner.Notification

	select {
	case notification = <-notifications:
	case <-ctx.Done():
		colours.Warning.Println("Stopping the running job...")

		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		closeErr := jobRunner.Close(closeCtx)
		if closeErr != nil {
			return closeErr
		}

		return errInterrupted
	}

	outcome := notification.Outcome
	if !outcome.Succeeded() {
		colours.Error.Println(outcome.Message)

		return errJobFailed
	}

	colours.Success.Printf("Saved %s ", outcome.OutputPath)
	colours.Path.Printf("(%s)\n", fileutil.FormatDuration(notification.Elapsed().Seconds()))

	return nil
}

func readText(opts generateOptions) (string, error) {
	switch {
	case opts.text != "" && opts.textFile != "":
		return "", errBothTexts
	case opts.textFile != "":
		data, err := os.ReadFile(filepath.Clean(opts.textFile))
		if err != nil {
			return "", fmt.Errorf("failed to read text file: %w", err)
		}

		return string(data), nil
	case strings.TrimSpace(opts.text) != "":
		return opts.text, nil
	default:
		return "", errNoText
	}
}

func (a *app) resolveVoice(opts generateOptions) (string, error) {
	if opts.voiceFile != "" {
		return fileutil.ExpandHome(opts.voiceFile), nil
	}

	if opts.voice == "" {
		return "", errNoVoice
	}

	voices, err := catalog.New(a.presetsDir())
	if err != nil {
		return "", err
	}

	path, err := voices.Resolve(opts.voice)
	if errors.Is(err, catalog.ErrCustomVoice) {
		return "", errNoVoice
	}

	return path, err
}
