package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DeusData/docgraph/internal/store"
)

func TestSnapshotsEqual(t *testing.T) {
	now := time.Now()

	a := map[string]fileSnapshot{
		"Main.kt": {modTime: now, size: 100},
		"Util.kt": {modTime: now, size: 200},
	}
	b := map[string]fileSnapshot{
		"Main.kt": {modTime: now, size: 100},
		"Util.kt": {modTime: now, size: 200},
	}
	if !snapshotsEqual(a, b) {
		t.Error("identical snapshots should be equal")
	}

	// Different size
	c := map[string]fileSnapshot{
		"Main.kt": {modTime: now, size: 101},
		"Util.kt": {modTime: now, size: 200},
	}
	if snapshotsEqual(a, c) {
		t.Error("different size should not be equal")
	}

	// Different mtime
	d := map[string]fileSnapshot{
		"Main.kt": {modTime: now.Add(time.Second), size: 100},
		"Util.kt": {modTime: now, size: 200},
	}
	if snapshotsEqual(a, d) {
		t.Error("different mtime should not be equal")
	}

	// Missing file
	e := map[string]fileSnapshot{
		"Main.kt": {modTime: now, size: 100},
	}
	if snapshotsEqual(a, e) {
		t.Error("different file count should not be equal")
	}

	// Extra file
	f := map[string]fileSnapshot{
		"Main.kt": {modTime: now, size: 100},
		"Util.kt": {modTime: now, size: 200},
		"New.kt":  {modTime: now, size: 50},
	}
	if snapshotsEqual(a, f) {
		t.Error("extra file should not be equal")
	}

	// Both empty
	if !snapshotsEqual(map[string]fileSnapshot{}, map[string]fileSnapshot{}) {
		t.Error("both empty should be equal")
	}
}

func TestPollInterval(t *testing.T) {
	tests := []struct {
		files    int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{70, 1 * time.Second},
		{499, 1 * time.Second},
		{500, 2 * time.Second},
		{2000, 5 * time.Second},
		{5000, 11 * time.Second},
		{10000, 21 * time.Second},
		{50000, 60 * time.Second},
		{100000, 60 * time.Second},
	}
	for _, tt := range tests {
		got := pollInterval(tt.files)
		if got != tt.expected {
			t.Errorf("pollInterval(%d) = %v, want %v", tt.files, got, tt.expected)
		}
	}
}

func TestCaptureSnapshot(t *testing.T) {
	tmpDir := t.TempDir()
	// Create a Kotlin file that discover.Discover will pick up
	if err := os.WriteFile(filepath.Join(tmpDir, "Main.kt"), []byte("package demo\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	snap, dirs, err := captureSnapshot(tmpDir)
	if err != nil {
		t.Fatal(err)
	}

	if len(snap) != 1 {
		t.Fatalf("expected 1 file, got %d", len(snap))
	}
	if len(dirs) != 1 || dirs[0] != tmpDir {
		t.Errorf("dirs = %v, want [%s]", dirs, tmpDir)
	}

	s, ok := snap["Main.kt"]
	if !ok {
		t.Fatal("expected main.go in snapshot")
	}
	if s.size == 0 {
		t.Error("expected non-zero size")
	}
	if s.modTime.IsZero() {
		t.Error("expected non-zero modtime")
	}
}

func TestCaptureSnapshotDetectsChanges(t *testing.T) {
	tmpDir := t.TempDir()
	srcFile := filepath.Join(tmpDir, "Main.kt")
	if err := os.WriteFile(srcFile, []byte("package demo\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	snap1, _, err := captureSnapshot(tmpDir)
	if err != nil {
		t.Fatal(err)
	}

	// Ensure mtime advances (some filesystems have 1s granularity)
	time.Sleep(10 * time.Millisecond)
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(srcFile, now, now); err != nil {
		t.Fatal(err)
	}

	snap2, _, err := captureSnapshot(tmpDir)
	if err != nil {
		t.Fatal(err)
	}

	if snapshotsEqual(snap1, snap2) {
		t.Error("snapshots should differ after mtime change")
	}
}

func TestWatcherTriggersOnChange(t *testing.T) {
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	tmpDir := t.TempDir()
	srcFile := filepath.Join(tmpDir, "Main.kt")
	if err := os.WriteFile(srcFile, []byte("package demo\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	// Register the application so ListApplications returns it
	if _, err := s.UpsertApplication("demo", filepath.Base(tmpDir), tmpDir); err != nil {
		t.Fatal(err)
	}

	var rebuilds atomic.Int32
	rebuild := func(_ context.Context, _, _ string) error {
		rebuilds.Add(1)
		return nil
	}

	w := New(s, rebuild)

	// First poll: baseline capture, no rebuild
	w.pollAll()
	if rebuilds.Load() != 0 {
		t.Errorf("first poll should not trigger a rebuild, got %d", rebuilds.Load())
	}

	// Poll again without changes: no rebuild
	// Reset nextPoll to allow immediate re-poll
	for _, state := range w.apps {
		state.nextPoll = time.Time{}
	}
	w.pollAll()
	if rebuilds.Load() != 0 {
		t.Errorf("no-change poll should not trigger a rebuild, got %d", rebuilds.Load())
	}

	// Modify the file
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(srcFile, now, now); err != nil {
		t.Fatal(err)
	}

	// Reset nextPoll and poll again: should trigger
	for _, state := range w.apps {
		state.nextPoll = time.Time{}
	}
	w.pollAll()
	if rebuilds.Load() != 1 {
		t.Errorf("changed file should trigger a rebuild, got %d", rebuilds.Load())
	}
}

func TestWatcherCancellation(t *testing.T) {
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	w := New(s, func(_ context.Context, _, _ string) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
		// goroutine exited cleanly
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}

func TestWatcherSkipsMissingRoot(t *testing.T) {
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Register an application with a non-existent path
	if _, err := s.UpsertApplication("ghost", "ghost", "/nonexistent/path"); err != nil {
		t.Fatal(err)
	}

	var rebuilds atomic.Int32
	w := New(s, func(_ context.Context, _, _ string) error {
		rebuilds.Add(1)
		return nil
	})

	w.pollAll()
	if rebuilds.Load() != 0 {
		t.Errorf("should not rebuild a missing root, got %d", rebuilds.Load())
	}
}

func TestWatcherNewFileTriggersRebuild(t *testing.T) {
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	tmpDir := t.TempDir()
	srcFile := filepath.Join(tmpDir, "Main.kt")
	if err := os.WriteFile(srcFile, []byte("package demo\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := s.UpsertApplication("demo", filepath.Base(tmpDir), tmpDir); err != nil {
		t.Fatal(err)
	}

	var rebuilds atomic.Int32
	w := New(s, func(_ context.Context, _, _ string) error {
		rebuilds.Add(1)
		return nil
	})

	// Baseline
	w.pollAll()

	// Add a new file
	if err := os.WriteFile(filepath.Join(tmpDir, "Util.kt"), []byte("package demo\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, state := range w.apps {
		state.nextPoll = time.Time{}
	}
	w.pollAll()
	if rebuilds.Load() != 1 {
		t.Errorf("new file should trigger a rebuild, got %d", rebuilds.Load())
	}
}

func TestMarkDueMatchesOwningApplication(t *testing.T) {
	w := &Watcher{apps: map[string]*appState{
		"shop":  {root: "/repos/shop", nextPoll: time.Now().Add(time.Hour)},
		"shop2": {root: "/repos/shop2", nextPoll: time.Now().Add(time.Hour)},
	}}

	w.markDue(filepath.Join("/repos/shop2", "src", "A.kt"))
	if !w.apps["shop2"].nextPoll.IsZero() {
		t.Error("shop2 should be due")
	}
	if w.apps["shop"].nextPoll.IsZero() {
		t.Error("shop must not match a sibling directory with a shared prefix")
	}

	w.markDue("/elsewhere/B.kt")
	if w.apps["shop"].nextPoll.IsZero() {
		t.Error("unrelated path marked shop due")
	}
}

func TestWatcherPassesApplicationToRebuild(t *testing.T) {
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	tmpDir := t.TempDir()
	srcFile := filepath.Join(tmpDir, "A.kt")
	if err := os.WriteFile(srcFile, []byte("package demo\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertApplication("orders", "orders", tmpDir); err != nil {
		t.Fatal(err)
	}

	var gotApp, gotRoot string
	w := New(s, func(_ context.Context, app, root string) error {
		gotApp, gotRoot = app, root
		return nil
	})
	defer w.close()
	w.pollAll()

	if err := os.WriteFile(srcFile, []byte("package demo\n\nclass A\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	w.apps["orders"].nextPoll = time.Time{}
	w.pollAll()
	if gotApp != "orders" || gotRoot != tmpDir {
		t.Errorf("rebuild(%q, %q), want (orders, %s)", gotApp, gotRoot, tmpDir)
	}
}
