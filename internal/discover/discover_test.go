package discover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DeusData/docgraph/internal/lang"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverBasic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/B.kt", "package foo\n")
	writeFile(t, dir, "src/A.java", "package foo;\n")
	writeFile(t, dir, "README.md", "# readme\n")

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].RelPath != "src/A.java" || files[1].RelPath != "src/B.kt" {
		t.Errorf("unexpected order: %s, %s", files[0].RelPath, files[1].RelPath)
	}
	if files[0].Language != lang.Java || files[1].Language != lang.Kotlin {
		t.Errorf("unexpected languages: %s, %s", files[0].Language, files[1].Language)
	}
	for _, f := range files {
		if f.Path == "" {
			t.Error("expected non-empty Path")
		}
	}
}

func TestDiscoverSkipsBuildDirsAndGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "build/Gen.kt", "package gen\n")
	writeFile(t, dir, "node_modules/x/X.kt", "package x\n")
	writeFile(t, dir, "generated/G.kt", "package g\n")
	writeFile(t, dir, "src/Keep.kt", "package k\n")
	writeFile(t, dir, "src/Skip.kt", "package k\n")
	writeFile(t, dir, ".gitignore", "generated/\nSkip.kt\n")

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "src/Keep.kt" {
		t.Fatalf("expected only src/Keep.kt, got %+v", files)
	}
}

func TestDiscoverLanguageFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "A.java", "class A {}\n")
	writeFile(t, dir, "B.kt", "class B\n")

	files, err := Discover(context.Background(), dir, &Options{Languages: []lang.Language{lang.Kotlin}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 1 || files[0].Language != lang.Kotlin {
		t.Fatalf("expected only the Kotlin file, got %+v", files)
	}
}

func TestDiscoverCancellation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Main.kt", "fun main() {}\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Discover(ctx, dir, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
