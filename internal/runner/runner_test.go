package runner_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/catalog"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/inference/inferencetest"
	"github.com/book-expert/voice-clone-service/internal/job"
	"github.com/book-expert/voice-clone-service/internal/media"
	"github.com/book-expert/voice-clone-service/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "runner-test.log")
	require.NoError(t, err)

	return log
}

// blockingJob runs until released or cancelled.
type blockingJob struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingJob() *blockingJob {
	return &blockingJob{started: make(chan struct{}, 4), release: make(chan struct{})}
}

func (j *blockingJob) Run(ctx context.Context, req core.GenerationRequest) core.Outcome {
	j.started <- struct{}{}

	select {
	case <-j.release:
		return core.Success(filepath.Join(req.OutputDir, "done.wav"))
	case <-ctx.Done():
		return core.Failure("cancelled: " + ctx.Err().Error())
	}
}

type instantJob struct{}

func (instantJob) Run(_ context.Context, req core.GenerationRequest) core.Outcome {
	return core.Success(filepath.Join(req.OutputDir, "instant.wav"))
}

type panickingJob struct{}

func (panickingJob) Run(context.Context, core.GenerationRequest) core.Outcome {
	panic("model handle went away")
}

func voiceFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "alice.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o600))

	return path
}

func receive(t *testing.T, notifications <-chan runner.Notification) runner.Notification {
	t.Helper()

	select {
	case n := <-notifications:
		return n
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for notification")

		return runner.Notification{}
	}
}

func TestSubmit_RejectsWhileBusyThenAcceptsAfterOutcome(t *testing.T) {
	t.Parallel()

	blocking := newBlockingJob()
	notifications := make(runner.ChanNotifier, 4)
	r := runner.New(blocking, notifications, newTestLogger(t), runner.Defaults{OutputDir: t.TempDir()})

	req := core.GenerationRequest{VoicePath: voiceFile(t), Text: "hello world"}

	first, err := r.Submit(req)
	require.NoError(t, err)
	<-blocking.started

	_, err = r.Submit(req)
	require.ErrorIs(t, err, runner.ErrBusy)

	// Busy wins over validation.
	_, err = r.Submit(core.GenerationRequest{})
	require.ErrorIs(t, err, runner.ErrBusy)

	blocking.release <- struct{}{}

	n := receive(t, notifications)
	assert.Equal(t, first.JobID, n.JobID)
	assert.True(t, n.Outcome.Succeeded())
	assert.False(t, n.FinishedAt.Before(n.StartedAt))
	assert.GreaterOrEqual(t, n.Elapsed(), time.Duration(0))

	second, err := r.Submit(req)
	require.NoError(t, err)
	assert.NotEqual(t, first.JobID, second.JobID)

	<-blocking.started
	close(blocking.release)
	receive(t, notifications)

	assert.Empty(t, notifications, "rejected submissions must not notify")
}

func TestSubmit_ResubmitFromNotificationIsAccepted(t *testing.T) {
	t.Parallel()

	var r *runner.Runner

	results := make(chan error, 1)
	notifications := make(runner.ChanNotifier, 4)
	first := true

	notifier := runner.Fanout{
		runner.NotifierFunc(func(n runner.Notification) {
			if first {
				first = false
				_, err := r.Submit(n.Request)
				results <- err
			}
		}),
		notifications,
	}

	r = runner.New(instantJob{}, notifier, newTestLogger(t), runner.Defaults{OutputDir: t.TempDir()})

	_, err := r.Submit(core.GenerationRequest{VoicePath: voiceFile(t), Text: "again"})
	require.NoError(t, err)

	select {
	case resubmitErr := <-results:
		require.NoError(t, resubmitErr)
	case <-time.After(waitTimeout):
		t.Fatal("notifier never ran")
	}

	receive(t, notifications)
	receive(t, notifications)
}

func TestSubmit_NotificationsFollowCompletionOrder(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		order []string
		calls int
	)

	delivering := make(chan struct{})
	notifications := make(runner.ChanNotifier, 4)

	notifier := runner.Fanout{
		runner.NotifierFunc(func(n runner.Notification) {
			mu.Lock()
			calls++
			slow := calls == 1
			mu.Unlock()

			if slow {
				close(delivering)
				time.Sleep(300 * time.Millisecond)
			}

			mu.Lock()
			order = append(order, n.Request.Text)
			mu.Unlock()
		}),
		notifications,
	}

	r := runner.New(instantJob{}, notifier, newTestLogger(t), runner.Defaults{OutputDir: t.TempDir()})
	voice := voiceFile(t)

	_, err := r.Submit(core.GenerationRequest{VoicePath: voice, Text: "job1"})
	require.NoError(t, err)

	select {
	case <-delivering:
	case <-time.After(waitTimeout):
		t.Fatal("first notification never started")
	}

	// The runner is idle once delivery starts.
	_, err = r.Submit(core.GenerationRequest{VoicePath: voice, Text: "job2"})
	require.NoError(t, err)

	assert.Equal(t, "job1", receive(t, notifications).Request.Text)
	assert.Equal(t, "job2", receive(t, notifications).Request.Text)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"job1", "job2"}, order)
}

func TestSubmit_PanickingNotifierDoesNotStopRunner(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)

	notifications := make(runner.ChanNotifier, 1)

	notifier := runner.NotifierFunc(func(n runner.Notification) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()

		if first {
			panic("notifier blew up")
		}

		notifications <- n
	})

	r := runner.New(instantJob{}, notifier, newTestLogger(t), runner.Defaults{OutputDir: t.TempDir()})
	req := core.GenerationRequest{VoicePath: voiceFile(t), Text: "hello"}

	_, err := r.Submit(req)
	require.NoError(t, err)

	var second runner.Receipt

	require.Eventually(t, func() bool {
		second, err = r.Submit(req)

		return err == nil
	}, waitTimeout, 10*time.Millisecond)

	n := receive(t, notifications)
	assert.Equal(t, second.JobID, n.JobID)
	assert.True(t, n.Outcome.Succeeded())

	require.NoError(t, r.Close(context.Background()))
}

func TestSubmit_Validation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name    string
		req     core.GenerationRequest
		wantErr error
	}{
		{"empty text", core.GenerationRequest{VoicePath: voiceFile(t), Text: ""}, runner.ErrEmptyText},
		{"whitespace text", core.GenerationRequest{VoicePath: voiceFile(t), Text: " \n\t "}, runner.ErrEmptyText},
		{"missing voice", core.GenerationRequest{Text: "hi"}, runner.ErrMissingVoice},
		{"nonexistent voice", core.GenerationRequest{VoicePath: filepath.Join(dir, "ghost.wav"), Text: "hi"}, runner.ErrVoiceNotFound},
		{"directory voice", core.GenerationRequest{VoicePath: dir, Text: "hi"}, runner.ErrVoiceNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			notifications := make(runner.ChanNotifier, 1)
			r := runner.New(instantJob{}, notifications, newTestLogger(t), runner.Defaults{OutputDir: t.TempDir()})

			_, err := r.Submit(tc.req)
			require.ErrorIs(t, err, runner.ErrInvalidRequest)
			require.ErrorIs(t, err, tc.wantErr)
			assert.NotErrorIs(t, err, runner.ErrBusy)

			// Nothing was scheduled, so the runner is still idle.
			_, err = r.Submit(core.GenerationRequest{VoicePath: voiceFile(t), Text: "valid"})
			require.NoError(t, err)
			receive(t, notifications)
		})
	}
}

func TestSubmit_AppliesDefaults(t *testing.T) {
	t.Parallel()

	outputDir := t.TempDir()
	notifications := make(runner.ChanNotifier, 1)
	r := runner.New(instantJob{}, notifications, newTestLogger(t), runner.Defaults{OutputDir: outputDir})

	receipt, err := r.Submit(core.GenerationRequest{VoicePath: voiceFile(t), Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, outputDir, receipt.Request.OutputDir)
	assert.Equal(t, runner.DefaultTimeout, receipt.Request.Timeout)
	assert.True(t, filepath.IsAbs(receipt.Request.VoicePath))

	n := receive(t, notifications)
	assert.Equal(t, filepath.Join(outputDir, "instant.wav"), n.Outcome.OutputPath)
}

func TestSubmit_PanickingJobBecomesFailure(t *testing.T) {
	t.Parallel()

	notifications := make(runner.ChanNotifier, 1)
	r := runner.New(panickingJob{}, notifications, newTestLogger(t), runner.Defaults{OutputDir: t.TempDir()})

	_, err := r.Submit(core.GenerationRequest{VoicePath: voiceFile(t), Text: "boom"})
	require.NoError(t, err)

	n := receive(t, notifications)
	assert.Equal(t, core.JobStatusFailed, n.Outcome.Status)
	assert.Contains(t, n.Outcome.Message, "model handle went away")
}

func TestClose_CancelsInFlightJob(t *testing.T) {
	t.Parallel()

	blocking := newBlockingJob()
	notifications := make(runner.ChanNotifier, 1)
	r := runner.New(blocking, notifications, newTestLogger(t), runner.Defaults{OutputDir: t.TempDir()})

	_, err := r.Submit(core.GenerationRequest{VoicePath: voiceFile(t), Text: "long text"})
	require.NoError(t, err)
	<-blocking.started

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	require.NoError(t, r.Close(ctx))

	n := receive(t, notifications)
	assert.False(t, n.Outcome.Succeeded())
	assert.Contains(t, n.Outcome.Message, "context canceled")

	_, err = r.Submit(core.GenerationRequest{VoicePath: voiceFile(t), Text: "after close"})
	require.ErrorIs(t, err, runner.ErrClosed)
}

func TestClose_IdleRunner(t *testing.T) {
	t.Parallel()

	r := runner.New(instantJob{}, nil, newTestLogger(t), runner.Defaults{})
	require.NoError(t, r.Close(context.Background()))
}

func TestEstimateCost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, runner.EstimateCost(""))
	assert.Equal(t, 0, runner.EstimateCost("abc"))
	assert.Equal(t, 1, runner.EstimateCost("abcd"))
	assert.Equal(t, 2, runner.EstimateCost("héllo wö"), "counts characters, not bytes")

	previous := 0
	for length := 0; length < 12000; length += 37 {
		cost := runner.EstimateCost(strings.Repeat("a", length))
		assert.GreaterOrEqual(t, cost, previous)
		assert.LessOrEqual(t, cost, runner.ModelMaxUnits)
		previous = cost
	}

	assert.Equal(t, runner.ModelMaxUnits, runner.EstimateCost(strings.Repeat("x", 50000)))
	assert.True(t, runner.ExceedsModelLimit(strings.Repeat("x", 50000)))
	assert.False(t, runner.ExceedsModelLimit("short"))
	assert.False(t, runner.ExceedsModelLimit(strings.Repeat("x", runner.ModelMaxUnits*4-1)))
	assert.True(t, runner.ExceedsModelLimit(strings.Repeat("x", runner.ModelMaxUnits*4)), "reaching the limit counts")
}

func TestRunner_EndToEndWithPresetVoice(t *testing.T) {
	t.Parallel()

	presets := t.TempDir()
	samples := make([]float32, 24000)
	for i := range samples {
		samples[i] = float32(0.25 * math.Sin(2*math.Pi*200*float64(i)/16000))
	}
	require.NoError(t, media.WriteWAV(filepath.Join(presets, "alice.wav"), samples, 16000))

	voices, err := catalog.New(presets)
	require.NoError(t, err)

	alicePath, err := voices.Resolve("alice")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(presets, "alice.wav"), alicePath)

	log := newTestLogger(t)
	generator := job.NewGenerator(media.NewDecoder(nil, "", log), inferencetest.New(), log)
	notifications := make(runner.ChanNotifier, 1)
	r := runner.New(generator, notifications, log, runner.Defaults{})

	outputDir := filepath.Join(t.TempDir(), "out")

	_, err = r.Submit(core.GenerationRequest{VoicePath: alicePath, Text: "hello world", OutputDir: outputDir})
	require.NoError(t, err)

	n := receive(t, notifications)
	require.True(t, n.Outcome.Succeeded(), n.Outcome.Message)
	assert.Equal(t, outputDir, filepath.Dir(n.Outcome.OutputPath))
	assert.Regexp(t, `^output_\d{8}_\d{6}\.wav$`, filepath.Base(n.Outcome.OutputPath))

	info, err := media.ReadWAVInfo(n.Outcome.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, inferencetest.DefaultSampleRate, info.SampleRate)
}

func TestRunner_NonexistentVoiceIsRejectedSynchronously(t *testing.T) {
	t.Parallel()

	stub := inferencetest.New()
	log := newTestLogger(t)
	notifications := make(runner.ChanNotifier, 1)
	r := runner.New(job.NewGenerator(media.NewDecoder(nil, "", log), stub, log), notifications, log, runner.Defaults{})

	_, err := r.Submit(core.GenerationRequest{VoicePath: "/definitely/not/here.wav", Text: "hello"})
	require.ErrorIs(t, err, runner.ErrVoiceNotFound)

	assert.Empty(t, notifications)
	assert.Zero(t, stub.Calls(inferencetest.StageEmbedding))
}
