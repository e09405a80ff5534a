// Package settings stores user preferences in a YAML file managed by viper.
//
// Every value is read as a plain string. An empty or missing value means
// "use the default", so clearing a key restores its default.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/voice-clone-service/internal/fileutil"
	"github.com/spf13/viper"
)

// Preference keys.
const (
	KeyOutputDir      = "output_dir"
	KeyPresetsDir     = "presets_dir"
	KeyFFmpegPath     = "ffmpeg_path"
	KeyTimeoutSeconds = "timeout_seconds"
)

const (
	settingsFileName      = "settings.yaml"
	settingsFileType      = "yaml"
	defaultFFmpegPath     = "ffmpeg"
	defaultTimeoutSeconds = 30
)

var (
	// ErrUnknownKey is returned for keys outside the preference set.
	ErrUnknownKey = errors.New("unknown preference key")
	// ErrInvalidValue is returned when a value cannot be used for its key.
	ErrInvalidValue = errors.New("invalid preference value")
)

// Store is a viper-backed preference store bound to one file.
type Store struct {
	v    *viper.Viper
	path string
}

// DefaultPath is the preference file used when none is configured.
func DefaultPath() string {
	return filepath.Join(fileutil.AppDataDir(), settingsFileName)
}

// Keys lists the supported preference keys in display order.
func Keys() []string {
	return []string{KeyOutputDir, KeyPresetsDir, KeyFFmpegPath, KeyTimeoutSeconds}
}

// Open loads the preference file at path, or DefaultPath when path is
// empty. A missing file is not an error; defaults apply until Save.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}

	path = fileutil.ExpandHome(path)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(settingsFileType)

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read preferences %s: %w", path, err)
		}
	}

	return &Store{v: v, path: path}, nil
}

func defaults() map[string]string {
	return map[string]string{
		KeyOutputDir:      fileutil.DefaultOutputDir(),
		KeyPresetsDir:     fileutil.DefaultPresetsDir(),
		KeyFFmpegPath:     defaultFFmpegPath,
		KeyTimeoutSeconds: strconv.Itoa(defaultTimeoutSeconds),
	}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// GetString returns the value for key, falling back to its default when the
// stored value is empty. Directory values have a leading "~" expanded.
func (s *Store) GetString(key string) string {
	value := strings.TrimSpace(s.v.GetString(key))
	if value == "" {
		value = defaults()[key]
	}

	if key == KeyOutputDir || key == KeyPresetsDir {
		value = fileutil.ExpandHome(value)
	}

	return value
}

// Lookup returns the value stored for key, reporting false when it is
// empty or equal to the default.
func (s *Store) Lookup(key string) (string, bool) {
	value := strings.TrimSpace(s.v.GetString(key))
	if value == "" || value == defaults()[key] {
		return "", false
	}

	if key == KeyOutputDir || key == KeyPresetsDir {
		value = fileutil.ExpandHome(value)
	}

	return value, true
}

// Timeout returns the fallback transcoding budget.
func (s *Store) Timeout() time.Duration {
	seconds, err := strconv.Atoi(s.GetString(KeyTimeoutSeconds))
	if err != nil || seconds <= 0 {
		seconds = defaultTimeoutSeconds
	}

	return time.Duration(seconds) * time.Second
}

// Set updates key in memory. Call Save to persist it.
func (s *Store) Set(key, value string) error {
	_, known := defaults()[key]
	if !known {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	value = strings.TrimSpace(value)

	if key == KeyTimeoutSeconds && value != "" {
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds <= 0 {
			return fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidValue, key, value)
		}
	}

	s.v.Set(key, value)

	return nil
}

// All returns every preference with defaults applied.
func (s *Store) All() map[string]string {
	values := make(map[string]string, len(Keys()))
	for _, key := range Keys() {
		values[key] = s.GetString(key)
	}

	return values
}

// Save writes the preferences to the backing file.
func (s *Store) Save() error {
	err := fileutil.EnsureDir(filepath.Dir(s.path))
	if err != nil {
		return err
	}

	err = s.v.WriteConfigAs(s.path)
	if err != nil {
		return fmt.Errorf("failed to write preferences %s: %w", s.path, err)
	}

	return nil
}
