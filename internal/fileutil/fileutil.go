// Package fileutil provides file and path helpers shared by the voice clone service.
//
// It covers the application data directory, on-demand directory creation,
// the recognized media extension allow-list and a few display formatters.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Common application directory and path constants.
const (
	appDirName            = ".voiceclone"
	outputDirName         = "output"
	presetsDirName        = "presets"
	tmpDir                = "/tmp"
	homePrefix            = "~"
	defaultDirPermissions = 0o750
)

// Time and size formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
	formatGB        = "%.1f GB"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
)

// Recognized voice sample containers. Matching is case-insensitive.
const (
	extWAV  = ".wav"
	extMP3  = ".mp3"
	extOGG  = ".ogg"
	extFLAC = ".flac"
	extMP4  = ".mp4"
	extMOV  = ".mov"
	extMKV  = ".mkv"
	extWEBM = ".webm"
)

// Error message and format string constants.
const (
	errFmtFailedToCreateDir           = "failed to create directory %s: %w"
	errFmtCouldNotResolveAbsolutePath = "could not resolve absolute path for %q: %w"
	errFmtErrorCheckingPath           = "error checking path %q: %w"
	errFmtNotRegularFile              = "%w: %s"
)

// ErrNotRegularFile is returned when a path exists but is not a regular file.
var ErrNotRegularFile = errors.New("not a regular file")

// MediaExtensions returns the recognized voice sample extensions, lower-case with the leading dot.
func MediaExtensions() []string {
	return []string{extWAV, extMP3, extOGG, extFLAC, extMP4, extMOV, extMKV, extWEBM}
}

// AppDataDir returns the per-user application directory, falling back to the
// temporary directory when the home directory cannot be determined.
func AppDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(tmpDir, strings.TrimPrefix(appDirName, "."))
	}

	return filepath.Join(homeDir, appDirName)
}

// DefaultOutputDir is where generated files land when no preference is set.
func DefaultOutputDir() string {
	return filepath.Join(AppDataDir(), outputDirName)
}

// DefaultPresetsDir is the voice preset directory used when no preference is set.
func DefaultPresetsDir() string {
	return filepath.Join(AppDataDir(), presetsDirName)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != homePrefix && !strings.HasPrefix(path, homePrefix+string(filepath.Separator)) {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(homeDir, strings.TrimPrefix(path, homePrefix))
}

// EnsureDir ensures a directory exists at the given path, creating it and its parents if it doesn't.
func EnsureDir(path string) error {
	mkdirErr := os.MkdirAll(path, defaultDirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
	}

	return nil
}

// ResolveFile checks that path names an existing regular file and returns its absolute form.
// A missing path is reported with an error satisfying errors.Is(err, os.ErrNotExist).
func ResolveFile(path string) (string, error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return "", fmt.Errorf(errFmtErrorCheckingPath, path, statErr)
	}

	if !info.Mode().IsRegular() {
		return "", fmt.Errorf(errFmtNotRegularFile, ErrNotRegularFile, path)
	}

	absPath, absErr := filepath.Abs(path)
	if absErr != nil {
		return "", fmt.Errorf(errFmtCouldNotResolveAbsolutePath, path, absErr)
	}

	return absPath, nil
}

// IsMediaFile checks if a filename carries one of the recognized voice sample extensions.
func IsMediaFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extWAV, extMP3, extOGG, extFLAC, extMP4, extMOV, extMKV, extWEBM:
		return true
	default:
		return false
	}
}

// Stem returns the base filename without its extension.
func Stem(filename string) string {
	base := filepath.Base(filename)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SanitizeFilename removes or replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", "_",
		">", "_",
		":", "_",
		"\"", "_",
		"/", "_",
		"\\", "_",
		"|", "_",
		"?", "_",
		"*", "_",
	)

	return replacer.Replace(filename)
}

// FormatDuration formats a duration in seconds as "45.2s", "5m 30.5s" or "1h 15m".
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingSeconds := seconds - float64(hours*secondsInHour)
	remainingMinutes := int(remainingSeconds / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats a file size as "1.2 GB", "500.5 MB" and so on.
func FormatFileSize(bytes int64) string {
	const (
		kilobyte = 1024
		megabyte = kilobyte * 1024
		gigabyte = megabyte * 1024
	)

	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}
