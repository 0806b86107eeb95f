package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ErrEmptySettings is returned when the settings file holds no YAML document,
// for example while it is being rewritten
var ErrEmptySettings = errors.New("settings file is empty")

// FileSource reads settings from a YAML document on disk.
// When Watch is running, the parsed snapshot is cached until the file changes;
// otherwise every call re-reads the file.
type FileSource struct {
	path string

	mu       sync.Mutex
	cached   *Snapshot
	watching bool
}

// NewFileSource creates a source for the YAML document at path
func NewFileSource(path string) *FileSource {
	return &FileSource{path: filepath.Clean(path)}
}

// GetSettings returns the current settings snapshot
func (f *FileSource) GetSettings(_ context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watching && f.cached != nil {
		snapshot := *f.cached
		return &snapshot, nil
	}

	snapshot, err := f.read()
	if err != nil {
		return nil, err
	}
	if f.watching {
		f.cached = snapshot
	}
	result := *snapshot
	return &result, nil
}

func (f *FileSource) read() (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSettingsNotFound, f.path)
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var snapshot Snapshot
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&snapshot); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s", ErrEmptySettings, f.path)
		}
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return &snapshot, nil
}

func (f *FileSource) invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached = nil
}

func (f *FileSource) setWatching(watching bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watching = watching
	f.cached = nil
}

// watchDirs returns the directory holding the configured path and, when the
// path is a symlink, the directory holding its current target.
func (f *FileSource) watchDirs() []string {
	dirs := []string{filepath.Dir(f.path)}
	target, err := filepath.EvalSymlinks(f.path)
	if err != nil {
		return dirs
	}
	if targetDir := filepath.Dir(target); targetDir != dirs[0] {
		dirs = append(dirs, targetDir)
	}
	return dirs
}

// Watch observes the settings file and invalidates the cache when it changes.
// Any change in the file's directory, or in the directory of its symlink
// target, drops the cached snapshot, so mounts that swap a symlink (such as a
// Kubernetes ConfigMap) are picked up. It blocks until ctx is cancelled.
func (f *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]struct{})
	addDirs := func() error {
		for _, dir := range f.watchDirs() {
			if _, ok := watched[dir]; ok {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				return err
			}
			watched[dir] = struct{}{}
		}
		return nil
	}
	if err := addDirs(); err != nil {
		return fmt.Errorf("failed to watch settings directory: %w", err)
	}

	f.setWatching(true)
	defer f.setWatching(false)

	slog.DebugContext(ctx, "Watching settings file", "path", f.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			slog.DebugContext(ctx, "Settings file changed", "path", f.path, "event", event.Name)
			f.invalidate()
			// The symlink may now point into a new directory.
			if err := addDirs(); err != nil {
				slog.WarnContext(ctx, "Failed to watch settings target directory", "path", f.path, "error", err)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Settings watcher error", "error", werr)
			f.invalidate()
		}
	}
}
