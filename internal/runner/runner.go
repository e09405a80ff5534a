// Package runner owns the single-flight execution of generation jobs.
//
// A Runner accepts at most one job at a time. Submit never blocks: it either
// rejects synchronously or starts the job on a background goroutine and
// returns. Every accepted job produces exactly one Notification, delivered
// after the runner has become idle again.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/fileutil"
	"github.com/google/uuid"
)

const (
	// ModelMaxUnits is the largest unit count the inference model accepts.
	ModelMaxUnits = 2580
	// DefaultTimeout bounds fallback transcoding when a request sets none.
	DefaultTimeout = 30 * time.Second

	charsPerUnit = 4
)

var (
	// ErrBusy is returned while another job is in flight.
	ErrBusy = errors.New("a generation job is already running")
	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("runner is closed")
	// ErrInvalidRequest wraps every validation failure.
	ErrInvalidRequest = errors.New("invalid generation request")
	// ErrEmptyText indicates the text is empty after trimming whitespace.
	ErrEmptyText = errors.New("text is empty")
	// ErrMissingVoice indicates no voice sample path was given.
	ErrMissingVoice = errors.New("no voice sample selected")
	// ErrVoiceNotFound indicates the voice sample path is not an existing file.
	ErrVoiceNotFound = errors.New("voice sample not found")
)

const (
	logFmtTransition  = "Job %s: %s -> %s"
	logFmtRejected    = "Rejected submission: %v"
	logFmtCloseWait   = "Waiting for job %s to stop"
	logFmtNotifyPanic = "Notifier panicked for job %s: %v"
)

// Job is the unit of work a Runner drives. Run must return an outcome for
// every request.
type Job interface {
	Run(ctx context.Context, req core.GenerationRequest) core.Outcome
}

// Defaults fill in request fields left empty by the caller.
type Defaults struct {
	OutputDir string
	Timeout   time.Duration
}

// Receipt acknowledges an accepted submission.
type Receipt struct {
	JobID   uuid.UUID
	Request core.GenerationRequest
}

// Runner serializes generation jobs.
type Runner struct {
	job      Job
	notifier Notifier
	log      *logger.Logger
	defaults Defaults

	// deliverMu orders notifications by completion. It is taken before busy
	// is cleared and released once Notify returns.
	deliverMu sync.Mutex

	mu      sync.Mutex
	busy    bool
	closed  bool
	current uuid.UUID
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an idle Runner. A nil notifier discards notifications.
func New(job Job, notifier Notifier, log *logger.Logger, defaults Defaults) *Runner {
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}

	if defaults.Timeout <= 0 {
		defaults.Timeout = DefaultTimeout
	}

	if defaults.OutputDir == "" {
		defaults.OutputDir = fileutil.DefaultOutputDir()
	}

	return &Runner{
		job:      job,
		notifier: notifier,
		log:      log,
		defaults: defaults,
	}
}

// Submit validates req and starts it in the background. It returns ErrBusy
// while a job is in flight, ErrClosed after Close, and an error wrapping
// ErrInvalidRequest when validation fails. No state changes on rejection.
func (r *Runner) Submit(req core.GenerationRequest) (Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Receipt{}, ErrClosed
	}

	if r.busy {
		r.log.Warn(logFmtRejected, ErrBusy)

		return Receipt{}, ErrBusy
	}

	normalized, err := r.normalize(req)
	if err != nil {
		r.log.Warn(logFmtRejected, err)

		return Receipt{}, err
	}

	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())

	r.busy = true
	r.current = id
	r.cancel = cancel
	r.wg.Add(1)

	r.log.Info(logFmtTransition, id, "-", core.JobStatusPending)

	go r.execute(ctx, cancel, id, normalized)

	return Receipt{JobID: id, Request: normalized}, nil
}

func (r *Runner) normalize(req core.GenerationRequest) (core.GenerationRequest, error) {
	if strings.TrimSpace(req.Text) == "" {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, ErrEmptyText)
	}

	if strings.TrimSpace(req.VoicePath) == "" {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, ErrMissingVoice)
	}

	voicePath, err := fileutil.ResolveFile(fileutil.ExpandHome(req.VoicePath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, fileutil.ErrNotRegularFile) {
			return req, fmt.Errorf("%w: %w: %s", ErrInvalidRequest, ErrVoiceNotFound, req.VoicePath)
		}

		return req, fmt.Errorf("%w: %w: %w", ErrInvalidRequest, ErrVoiceNotFound, err)
	}

	req.VoicePath = voicePath

	if req.OutputDir == "" {
		req.OutputDir = r.defaults.OutputDir
	}

	req.OutputDir = fileutil.ExpandHome(req.OutputDir)

	if req.Timeout <= 0 {
		req.Timeout = r.defaults.Timeout
	}

	return req, nil
}

func (r *Runner) execute(ctx context.Context, cancel context.CancelFunc, id uuid.UUID, req core.GenerationRequest) {
	defer r.wg.Done()
	defer cancel()

	started := time.Now()
	r.log.Info(logFmtTransition, id, core.JobStatusPending, core.JobStatusRunning)

	outcome := r.runJob(ctx, req)
	finished := time.Now()

	r.log.Info(logFmtTransition, id, core.JobStatusRunning, outcome.Status)

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	r.busy = false
	r.cancel = nil
	r.current = uuid.Nil
	r.mu.Unlock()

	r.deliver(Notification{
		JobID:      id,
		Request:    req,
		Outcome:    outcome,
		StartedAt:  started,
		FinishedAt: finished,
	})
}

// deliver keeps a panicking notifier from taking the process down.
func (r *Runner) deliver(n Notification) {
	defer func() {
		recovered := recover()
		if recovered != nil {
			r.log.Error(logFmtNotifyPanic, n.JobID, recovered)
		}
	}()

	r.notifier.Notify(n)
}

// runJob guards against Job implementations that panic despite the contract.
func (r *Runner) runJob(ctx context.Context, req core.GenerationRequest) (outcome core.Outcome) {
	defer func() {
		recovered := recover()
		if recovered != nil {
			outcome = core.Failure(fmt.Sprintf("unexpected failure: %v", recovered))
		}
	}()

	return r.job.Run(ctx, req)
}

// Close rejects further submissions, cancels the in-flight job and waits
// for its notification to be delivered or ctx to end.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true

	if r.cancel != nil {
		r.log.Info(logFmtCloseWait, r.current)
		r.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop runner: %w", ctx.Err())
	}
}

// EstimateCost returns an advisory inference cost for text: one unit per
// four characters, capped at ModelMaxUnits.
func EstimateCost(text string) int {
	return min(utf8.RuneCountInString(text)/charsPerUnit, ModelMaxUnits)
}

// ExceedsModelLimit reports whether the estimate for text reaches
// ModelMaxUnits, where the model may cut the output short.
func ExceedsModelLimit(text string) bool {
	return EstimateCost(text) >= ModelMaxUnits
}
