package session

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/agentdeck/agentdeck/internal/logging"
)

// Resources tracks the prompt/command resource files available to sessions.
// The directory is watched with fsnotify so edits show up without a restart;
// reload_resources forces a synchronous re-read.
type Resources struct {
	dir string

	mu    sync.RWMutex
	names []string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewResources creates a Resources over dir and performs the initial read.
// A missing directory is not an error; it just yields no resources.
func NewResources(dir string) *Resources {
	r := &Resources{dir: dir, done: make(chan struct{})}
	r.Reload()
	return r
}

// Watch starts the fsnotify watcher. Safe to call when the directory does
// not exist; watching simply stays off.
func (r *Resources) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return err
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case <-r.done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					r.Reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn().Err(err).Str("dir", r.dir).Msg("resource watcher error")
			}
		}
	}()
	return nil
}

// Reload re-reads the resource directory.
func (r *Resources) Reload() {
	var names []string
	entries, err := os.ReadDir(r.dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			names = append(names, strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		}
		sort.Strings(names)
	}

	r.mu.Lock()
	r.names = names
	r.mu.Unlock()
}

// Names returns the loaded resource names.
func (r *Resources) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Close stops the watcher.
func (r *Resources) Close() {
	close(r.done)
	if r.watcher != nil {
		r.watcher.Close()
	}
}
