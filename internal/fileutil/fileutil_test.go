package fileutil_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voice-clone-service/internal/fileutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMediaFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename string
		want     bool
	}{
		{"alice.wav", true},
		{"ALICE.WAV", true},
		{"bob.Mp3", true},
		{"clip.ogg", true},
		{"clip.flac", true},
		{"movie.mp4", true},
		{"movie.MOV", true},
		{"movie.mkv", true},
		{"movie.webm", true},
		{"notes.txt", false},
		{"voice.m4a", false},
		{"wav", false},
		{"archive.wav.zip", false},
	}

	for _, testCase := range tests {
		t.Run(testCase.filename, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, fileutil.IsMediaFile(testCase.filename))
		})
	}
}

func TestStem(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "alice", fileutil.Stem("/presets/alice.wav"))
	assert.Equal(t, "my.voice", fileutil.Stem("my.voice.mp3"))
	assert.Equal(t, "noext", fileutil.Stem("noext"))
}

func TestEnsureDir_CreatesNestedDirectories(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "a", "b", "c")

	require.NoError(t, fileutil.EnsureDir(target))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Second call is a no-op.
	require.NoError(t, fileutil.EnsureDir(target))
}

func TestEnsureDir_FailsWhenPathIsFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	require.Error(t, fileutil.EnsureDir(file))
	require.Error(t, fileutil.EnsureDir(filepath.Join(file, "child")))
}

func TestResolveFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "alice.wav")
	require.NoError(t, os.WriteFile(file, []byte("RIFF"), 0o600))

	resolved, err := fileutil.ResolveFile(file)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(resolved))

	_, err = fileutil.ResolveFile(filepath.Join(dir, "missing.wav"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = fileutil.ResolveFile(dir)
	require.ErrorIs(t, err, fileutil.ErrNotRegularFile)
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a_b_c_d", fileutil.SanitizeFilename("a/b:c*d"))
	assert.Equal(t, "output", fileutil.SanitizeFilename("output"))
}

func TestFormatters(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "45.2s", fileutil.FormatDuration(45.2))
	assert.Equal(t, "5m 30.5s", fileutil.FormatDuration(330.5))
	assert.Equal(t, "1h 15m", fileutil.FormatDuration(4500))

	assert.Equal(t, "512 B", fileutil.FormatFileSize(512))
	assert.Equal(t, "1.5 KB", fileutil.FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", fileutil.FormatFileSize(2*1024*1024))
}

func TestExpandHome(t *testing.T) {
	t.Parallel()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Skipping test: could not determine user home directory")
	}

	assert.Equal(t, filepath.Join(homeDir, "voices"), fileutil.ExpandHome("~/voices"))
	assert.Equal(t, "/abs/path", fileutil.ExpandHome("/abs/path"))
	assert.Equal(t, "~user/x", fileutil.ExpandHome("~user/x"))
}
