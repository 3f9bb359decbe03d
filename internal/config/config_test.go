package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/DeusData/docgraph/internal/nodebuild"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EffectiveMaxSourceBytes() != nodebuild.DefaultMaxSourceBytes {
		t.Errorf("max source bytes = %d", cfg.EffectiveMaxSourceBytes())
	}
	if cfg.EffectiveLinkWorkers() != runtime.NumCPU() || cfg.EffectiveLibraryWorkers() != runtime.NumCPU() {
		t.Error("workers should default to NumCPU")
	}
	if cfg.EffectiveStrictValidation() || cfg.EffectiveLogLevel() != slog.LevelInfo {
		t.Errorf("defaults = %+v", cfg)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing file should fail")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	content := `
db_path: /tmp/graph.db
log_level: debug
node_build:
  max_source_bytes: 2048
  strict_validation: true
link:
  workers: 3
libraries:
  include: [com.acme, org.partner]
  company_prefixes: [com.acme]
`
	if err := os.WriteFile(DefaultFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(".env", []byte("DOCGRAPH_LIBRARY_WORKERS=5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCGRAPH_LINK_WORKERS", "7")
	t.Setenv("DOCGRAPH_LIBRARY_EXCLUDE", "com.acme.legacy, ,com.acme.tmp")
	// Unset so the .env value applies; cleanup restores the original.
	t.Setenv("DOCGRAPH_LIBRARY_WORKERS", "")
	os.Unsetenv("DOCGRAPH_LIBRARY_WORKERS")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if path, _ := cfg.EffectiveDBPath(); path != "/tmp/graph.db" {
		t.Errorf("db path = %q", path)
	}
	if cfg.EffectiveLogLevel() != slog.LevelDebug || !cfg.EffectiveStrictValidation() {
		t.Errorf("level/strict = %v %v", cfg.EffectiveLogLevel(), cfg.EffectiveStrictValidation())
	}
	if cfg.EffectiveMaxSourceBytes() != 2048 || cfg.EffectiveLinkWorkers() != 7 || cfg.EffectiveLibraryWorkers() != 5 {
		t.Errorf("numbers = %d %d %d", cfg.EffectiveMaxSourceBytes(), cfg.EffectiveLinkWorkers(), cfg.EffectiveLibraryWorkers())
	}
	opts := cfg.LibraryOptions()
	if strings.Join(opts.Include, ",") != "com.acme,org.partner" || strings.Join(opts.Exclude, ",") != "com.acme.legacy,com.acme.tmp" {
		t.Errorf("library options = %+v", opts)
	}
	if len(opts.CompanyPrefixes) != 1 || cfg.NodeBuildOptions().MaxSourceBytes != 2048 {
		t.Errorf("options = %+v %+v", opts, cfg.NodeBuildOptions())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	write := func(content string) string {
		path := filepath.Join(dir, "c.yaml")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}
	t.Chdir(dir)

	cases := map[string]string{
		"bad level":    "log_level: loud\n",
		"zero workers": "link:\n  workers: 0\n",
		"empty prefix": "libraries:\n  include: [\"\"]\n",
		"bad yaml":     "link: [\n",
	}
	for name, content := range cases {
		if _, err := Load(write(content)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	t.Setenv("DOCGRAPH_LINK_WORKERS", "many")
	if _, err := Load(write("")); err == nil {
		t.Error("non-numeric env should fail")
	}
}
