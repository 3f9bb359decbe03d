// Package watcher rebuilds application graphs when their sources change.
// Applications are polled at an adaptive interval; fsnotify events on known
// source directories make an application due immediately.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/DeusData/docgraph/internal/discover"
	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/store"
)

const (
	baseInterval = 1 * time.Second
	maxInterval  = 60 * time.Second
)

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

type appState struct {
	root     string
	snapshot map[string]fileSnapshot
	interval time.Duration
	nextPoll time.Time
	watched  map[string]bool
}

// RebuildFunc is called when an application's sources changed.
type RebuildFunc func(ctx context.Context, app, repoPath string) error

// Watcher polls built applications for file changes and triggers rebuilds.
// All state is owned by the Run goroutine.
type Watcher struct {
	store   *store.Store
	rebuild RebuildFunc
	apps    map[string]*appState
	notify  *fsnotify.Watcher
	ctx     context.Context
}

// New creates a Watcher. If fsnotify is unavailable the watcher falls back
// to polling only.
func New(s *store.Store, rebuild RebuildFunc) *Watcher {
	w := &Watcher{
		store:   s,
		rebuild: rebuild,
		apps:    make(map[string]*appState),
		ctx:     context.Background(),
	}
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("watcher.fsnotify", "err", err)
	} else {
		w.notify = notify
	}
	return w
}

// Run blocks until ctx is cancelled. Ticks at baseInterval, polling each
// application only when its adaptive interval has elapsed or a file event
// marked it due.
func (w *Watcher) Run(ctx context.Context) {
	w.ctx = ctx
	ticker := time.NewTicker(baseInterval)
	defer ticker.Stop()
	defer w.close()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.notify != nil {
		events, errs = w.notify.Events, w.notify.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollAll()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			w.markDue(ev.Name)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watcher.fsnotify", "err", err)
		}
	}
}

func (w *Watcher) close() {
	if w.notify != nil {
		w.notify.Close()
	}
}

// markDue makes the application owning path eligible for the next tick.
func (w *Watcher) markDue(path string) {
	for key, state := range w.apps {
		if state.root != "" && (path == state.root || strings.HasPrefix(path, state.root+string(filepath.Separator))) {
			slog.Debug("watcher.event", "app", key, "path", path)
			state.nextPoll = time.Time{}
			return
		}
	}
}

// pollAll lists all built applications and polls each that is due.
func (w *Watcher) pollAll() {
	apps, err := w.store.ListApplications()
	if err != nil {
		slog.Warn("watcher.list_applications", "err", err)
		return
	}

	now := time.Now()
	for _, app := range apps {
		state, exists := w.apps[app.Key]
		if !exists {
			state = &appState{root: app.RepoPath, watched: map[string]bool{}}
			w.apps[app.Key] = state
		}
		if exists && now.Before(state.nextPoll) {
			continue
		}
		w.pollApp(app, state)
	}
}

// pollApp captures a snapshot of the source tree and compares it with the
// previous one. The first poll only records a baseline.
func (w *Watcher) pollApp(app *domain.Application, state *appState) {
	if _, err := os.Stat(app.RepoPath); err != nil {
		slog.Warn("watcher.root_gone", "app", app.Key, "path", app.RepoPath)
		state.nextPoll = time.Now().Add(maxInterval)
		return
	}

	snap, dirs, err := captureSnapshot(app.RepoPath)
	if err != nil {
		slog.Warn("watcher.snapshot", "app", app.Key, "err", err)
		state.nextPoll = time.Now().Add(state.interval)
		return
	}
	w.watchDirs(state, dirs)

	interval := pollInterval(len(snap))

	if state.snapshot == nil {
		slog.Debug("watcher.baseline", "app", app.Key, "files", len(snap))
		state.snapshot = snap
		state.interval = interval
		state.nextPoll = time.Now().Add(interval)
		return
	}

	if snapshotsEqual(state.snapshot, snap) {
		state.interval = interval
		state.nextPoll = time.Now().Add(interval)
		return
	}

	slog.Info("watcher.changed", "app", app.Key, "files", len(snap))
	if err := w.rebuild(w.ctx, app.Key, app.RepoPath); err != nil {
		slog.Warn("watcher.rebuild", "app", app.Key, "err", err)
		// Keep the old snapshot so the next cycle retries.
		state.nextPoll = time.Now().Add(interval)
		return
	}

	state.snapshot = snap
	state.interval = interval
	state.nextPoll = time.Now().Add(interval)
}

func (w *Watcher) watchDirs(state *appState, dirs []string) {
	if w.notify == nil {
		return
	}
	for _, dir := range dirs {
		if state.watched[dir] {
			continue
		}
		if err := w.notify.Add(dir); err != nil {
			slog.Debug("watcher.add", "dir", dir, "err", err)
			continue
		}
		state.watched[dir] = true
	}
}

// captureSnapshot discovers source files under rootPath and records
// mtime+size for each. It also returns the directories holding them.
func captureSnapshot(rootPath string) (map[string]fileSnapshot, []string, error) {
	files, err := discover.Discover(context.Background(), rootPath, nil)
	if err != nil {
		return nil, nil, err
	}

	snap := make(map[string]fileSnapshot, len(files))
	seen := map[string]bool{}
	var dirs []string
	for _, f := range files {
		info, statErr := os.Stat(f.Path)
		if statErr != nil {
			continue
		}
		snap[f.RelPath] = fileSnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
		}
		if dir := filepath.Dir(f.Path); !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return snap, dirs, nil
}

// snapshotsEqual returns true if two snapshots have identical files with same mtime+size.
func snapshotsEqual(a, b map[string]fileSnapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for path, aSnap := range a {
		bSnap, ok := b[path]
		if !ok {
			return false
		}
		if !aSnap.modTime.Equal(bSnap.modTime) || aSnap.size != bSnap.size {
			return false
		}
	}
	return true
}

// pollInterval computes the adaptive interval from file count.
// 1s base + 1s per 500 files, capped at 60s.
func pollInterval(fileCount int) time.Duration {
	ms := 1000 + (fileCount/500)*1000
	if ms > 60000 {
		ms = 60000
	}
	return time.Duration(ms) * time.Millisecond
}
