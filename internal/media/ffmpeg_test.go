package media_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/voice-clone-service/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinary writes an executable shell script standing in for ffmpeg.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes require a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"

	// #nosec G306 -- the fake must be executable
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))

	return path
}

func TestNewFFmpegTranscoder_DefaultsBinary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ffmpeg", media.NewFFmpegTranscoder("").BinaryPath())
	assert.Equal(t, "/opt/ffmpeg", media.NewFFmpegTranscoder("/opt/ffmpeg").BinaryPath())
}

func TestFFmpegTranscoder_PassesMonoResampleArgs(t *testing.T) {
	t.Parallel()

	argsFile := filepath.Join(t.TempDir(), "args.txt")
	binary := fakeBinary(t, `printf '%s\n' "$@" > "`+argsFile+`"`)

	transcoder := media.NewFFmpegTranscoder(binary)
	err := transcoder.Transcode(context.Background(), "in.mp4", "out.wav", 24000)
	require.NoError(t, err)

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)

	args := strings.Fields(string(recorded))
	assert.Equal(t, []string{"-y", "-i", "in.mp4", "-ac", "1", "-ar", "24000", "-vn", "-f", "wav", "out.wav"}, args)
}

func TestFFmpegTranscoder_NonZeroExit(t *testing.T) {
	t.Parallel()

	binary := fakeBinary(t, `echo "moov atom not found" >&2; exit 3`)

	err := media.NewFFmpegTranscoder(binary).Transcode(context.Background(), "in.mp4", "out.wav", 24000)
	require.Error(t, err)

	var processErr *media.ProcessError
	require.ErrorAs(t, err, &processErr)
	assert.Equal(t, 3, processErr.ExitCode)
	assert.Contains(t, processErr.Output, "moov atom not found")
}

func TestFFmpegTranscoder_DeadlineKillsProcess(t *testing.T) {
	t.Parallel()

	binary := fakeBinary(t, "exec sleep 10")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := media.NewFFmpegTranscoder(binary).Transcode(ctx, "in.mp4", "out.wav", 24000)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestFFmpegTranscoder_MissingBinary(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "no-such-ffmpeg")

	err := media.NewFFmpegTranscoder(missing).Transcode(context.Background(), "in.mp4", "out.wav", 24000)
	require.Error(t, err)

	var processErr *media.ProcessError
	assert.NotErrorAs(t, err, &processErr)
}

func TestFFmpegTranscoder_RejectsInvalidRate(t *testing.T) {
	t.Parallel()

	err := media.NewFFmpegTranscoder("").Transcode(context.Background(), "in.mp4", "out.wav", -1)
	require.ErrorIs(t, err, media.ErrInvalidSampleRate)
}

func TestDecode_FallbackThroughTranscoderTimeout(t *testing.T) {
	t.Parallel()

	binary := fakeBinary(t, "exec sleep 10")
	source := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(source, []byte("mp4"), 0o600))

	tempDir := t.TempDir()
	decoder := media.NewDecoder(media.NewFFmpegTranscoder(binary), tempDir, newTestLogger(t))

	_, err := decoder.Decode(context.Background(), source, targetRate, 200*time.Millisecond)
	require.ErrorIs(t, err, media.ErrTimeout)
	requireEmptyDir(t, tempDir)
}
