// Package catalog lists the voice samples available in a presets directory.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/book-expert/voice-clone-service/internal/fileutil"
)

// CustomVoice is the name of the sentinel entry meaning "pick a file manually".
const CustomVoice = "Custom Voice"

var (
	// ErrCustomVoice is returned when resolving the sentinel entry, which has no file.
	ErrCustomVoice = errors.New("custom voice has no preset file")
	// ErrUnknownVoice is returned when a name is not in the catalog.
	ErrUnknownVoice = errors.New("unknown voice")
)

// Entry is a named voice sample. The sentinel entry has an empty Path.
type Entry struct {
	Name string
	Path string
}

// IsSentinel reports whether the entry is the custom voice placeholder.
func (e Entry) IsSentinel() bool {
	return e.Path == ""
}

// Scan creates dir if needed and maps every media file directly inside it
// to an Entry keyed by the filename stem. Subdirectories are not descended.
// Files sharing a stem overwrite each other in listing order. The sentinel
// entry is always present, even when a file is named after it.
func Scan(dir string) (map[string]Entry, error) {
	err := fileutil.EnsureDir(dir)
	if err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve presets directory %s: %w", dir, err)
	}

	children, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list presets directory %s: %w", absDir, err)
	}

	entries := make(map[string]Entry, len(children)+1)

	for _, child := range children {
		if !fileutil.IsMediaFile(child.Name()) {
			continue
		}

		path := filepath.Join(absDir, child.Name())

		// Symlinked samples count when they point at a regular file.
		info, statErr := os.Stat(path)
		if statErr != nil || !info.Mode().IsRegular() {
			continue
		}

		name := fileutil.Stem(child.Name())
		entries[name] = Entry{Name: name, Path: path}
	}

	entries[CustomVoice] = Entry{Name: CustomVoice}

	return entries, nil
}

// Catalog caches the last scan of a presets directory.
type Catalog struct {
	mu      sync.RWMutex
	dir     string
	entries map[string]Entry
}

// New creates a catalog for dir and performs the initial scan.
func New(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir}

	err := c.Refresh()
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Dir returns the scanned directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Refresh rescans the directory, replacing the cached entries.
func (c *Catalog) Refresh() error {
	entries, err := Scan(c.dir)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	return nil
}

// Entries returns a copy of the cached mapping.
func (c *Catalog) Entries() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := make(map[string]Entry, len(c.entries))
	for name, entry := range c.entries {
		clone[name] = entry
	}

	return clone
}

// Names lists voice names with the sentinel first and the rest sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))

	for name := range c.entries {
		if name != CustomVoice {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return append([]string{CustomVoice}, names...)
}

// Resolve returns the sample path for name.
func (c *Catalog) Resolve(name string) (string, error) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownVoice, name)
	}

	if entry.IsSentinel() {
		return "", ErrCustomVoice
	}

	return entry.Path, nil
}
