package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInstallLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	if err := installLogger(&buf, "json", slog.LevelWarn); err != nil {
		t.Fatal(err)
	}
	slog.Info("hidden")
	slog.Warn("build.failed", "app", "shop")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "build.failed" || line["app"] != "shop" {
		t.Errorf("line = %v", line)
	}
	if err := installLogger(&buf, "xml", slog.LevelInfo); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestAppForDefaultsToDirectoryName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "orders-service")
	appKey = ""
	app, root, err := appFor(dir)
	if err != nil {
		t.Fatal(err)
	}
	if app != "orders-service" || root != dir {
		t.Errorf("appFor = %q, %q", app, root)
	}

	appKey = "orders"
	defer func() { appKey = "" }()
	if app, _, _ := appFor(dir); app != "orders" {
		t.Errorf("explicit app = %q", app)
	}
}

func TestBuildAndAppsCommands(t *testing.T) {
	work := t.TempDir()
	t.Chdir(work)
	repo := filepath.Join(work, "shop")
	if err := os.MkdirAll(filepath.Join(repo, "src", "foo"), 0o755); err != nil {
		t.Fatal(err)
	}
	src := "package foo\n\nclass B {\n    fun ping() {}\n}\n"
	if err := os.WriteFile(filepath.Join(repo, "src", "foo", "B.kt"), []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	db := filepath.Join(work, "graph.db")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"build", repo, "--db", db, "--log-format", "json"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("build: %v", err)
	}
	var res struct {
		App   string
		Files int
	}
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("build output %q: %v", out.String(), err)
	}
	if res.App != "shop" || res.Files != 1 {
		t.Errorf("build result = %+v", res)
	}

	out.Reset()
	rootCmd.SetArgs([]string{"apps", "--db", db})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("apps: %v", err)
	}
	if !strings.HasPrefix(out.String(), "shop") {
		t.Errorf("apps output = %q", out.String())
	}
}

func TestASTCommand(t *testing.T) {
	file := filepath.Join(t.TempDir(), "A.java")
	if err := os.WriteFile(file, []byte("class A { void run() {} }\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"ast", file})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("ast: %v", err)
	}
	if !strings.HasPrefix(out.String(), "program (parent=nil)") || !strings.Contains(out.String(), "method_declaration") {
		t.Errorf("ast output = %q", out.String())
	}
}
