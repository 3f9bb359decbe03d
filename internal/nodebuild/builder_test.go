package nodebuild

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/lang"
	"github.com/DeusData/docgraph/internal/store"
)

type fixture struct {
	store *store.Store
	app   *domain.Application
	b     *Builder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	app, err := s.UpsertApplication("app", "App", "")
	if err != nil {
		t.Fatalf("UpsertApplication: %v", err)
	}
	b, err := New(s, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{store: s, app: app, b: b}
}

func (f *fixture) method(fqn, src string, start int) Input {
	return Input{
		AppID:      f.app.ID,
		FQN:        fqn,
		Kind:       domain.KindMethod,
		Name:       fqn[strings.LastIndex(fqn, ".")+1:],
		Lang:       lang.Kotlin,
		FilePath:   "src/A.kt",
		Span:       &domain.Span{Start: start, End: start},
		SourceCode: src,
		Meta:       map[string]any{"source": "function", "params": []string{"x"}},
	}
}

func TestUpsertIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	in := f.method("com.a.A.run", "fun run(x: Int) {\n  println(x)\n}", 3)

	first, err := f.b.Upsert(ctx, in)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := f.b.Upsert(ctx, in)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("id changed %d -> %d", first.ID, second.ID)
	}
	st := f.b.Stats()
	if st.Created != 1 || st.Updated != 0 || st.Skipped != 1 {
		t.Errorf("stats = %+v, want 1 created, 1 skipped", st)
	}

	// A fresh builder (empty cache) over the same rows must also skip.
	fresh, _ := New(f.store, Options{})
	if _, err := fresh.Upsert(ctx, in); err != nil {
		t.Fatalf("fresh upsert: %v", err)
	}
	if st := fresh.Stats(); st.Skipped != 1 || st.Updated != 0 {
		t.Errorf("fresh stats = %+v, want 1 skipped", st)
	}
}

func TestUpsertComputesSpanAndHash(t *testing.T) {
	f := newFixture(t, Options{})
	n, err := f.b.Upsert(context.Background(), f.method("com.a.A.run", "line1\r\nline2\r\nline3", 10))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n.SourceCode != "line1\nline2\nline3" {
		t.Errorf("source not normalized: %q", n.SourceCode)
	}
	if n.LineStart == nil || *n.LineStart != 10 || n.LineEnd == nil || *n.LineEnd != 12 {
		t.Errorf("span = %v-%v, want 10-12", n.LineStart, n.LineEnd)
	}
	if n.CodeHash == nil || len(*n.CodeHash) != 32 {
		t.Errorf("expected 128-bit hex hash, got %v", n.CodeHash)
	}

	pkg, err := f.b.Upsert(context.Background(), Input{AppID: f.app.ID, FQN: "com.a", Kind: domain.KindPackage, Name: "a"})
	if err != nil {
		t.Fatalf("Upsert package: %v", err)
	}
	if pkg.CodeHash != nil {
		t.Errorf("blank source should have nil hash, got %q", *pkg.CodeHash)
	}
}

func TestEqualHashMovesSpan(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	src := "fun run() = 1"

	if _, err := f.b.Upsert(ctx, f.method("com.a.A.run", src, 5)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Same content further down the file: the span follows, the source stays.
	moved, err := f.b.Upsert(ctx, f.method("com.a.A.run", src, 40))
	if err != nil {
		t.Fatalf("Upsert moved: %v", err)
	}
	if *moved.LineStart != 40 || *moved.LineEnd != 40 {
		t.Errorf("span not moved with equal hash: start=%d end=%d", *moved.LineStart, *moved.LineEnd)
	}
	if st := f.b.Stats(); st.Updated != 1 || st.Skipped != 0 {
		t.Errorf("expected update, stats = %+v", st)
	}
	stored, _ := f.store.FindNode(f.app.ID, "com.a.A.run")
	if *stored.LineStart != 40 || stored.SourceCode != src {
		t.Errorf("stored row = %+v", stored)
	}

	// Same content, same span: nothing to write.
	if _, err := f.b.Upsert(ctx, f.method("com.a.A.run", src, 40)); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}
	if st := f.b.Stats(); st.Skipped != 1 {
		t.Errorf("expected skip, stats = %+v", st)
	}

	// Equal hash without a span keeps the stored one.
	in := f.method("com.a.A.run", src, 0)
	in.Span = nil
	kept, err := f.b.Upsert(ctx, in)
	if err != nil {
		t.Fatalf("Upsert without span: %v", err)
	}
	if kept.LineStart == nil || *kept.LineStart != 40 {
		t.Errorf("nil span cleared the stored span: %v", kept.LineStart)
	}

	// Changed content: hash and span both move.
	changed, err := f.b.Upsert(ctx, f.method("com.a.A.run", "fun run() = 2", 41))
	if err != nil {
		t.Fatalf("Upsert changed: %v", err)
	}
	if *changed.LineStart != 41 {
		t.Errorf("span not refreshed on hash change: start=%d", *changed.LineStart)
	}
	stored, _ = f.store.FindNode(f.app.ID, "com.a.A.run")
	if *stored.LineStart != 41 || stored.SourceCode != "fun run() = 2" {
		t.Errorf("stored row not updated: %+v", stored)
	}
}

func TestEqualHashFillsMissingSpan(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	in := f.method("com.a.A.run", "fun run() = 1", 7)
	in.Span = nil
	if _, err := f.b.Upsert(ctx, in); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	in.Span = &domain.Span{Start: 7, End: 7}
	n, err := f.b.Upsert(ctx, in)
	if err != nil {
		t.Fatalf("Upsert with span: %v", err)
	}
	if n.LineStart == nil || *n.LineStart != 7 {
		t.Errorf("missing span not filled: %v", n.LineStart)
	}
	if st := f.b.Stats(); st.Updated != 1 {
		t.Errorf("stats = %+v, want 1 update", st)
	}
}

func TestMetaMerge(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	in := f.method("com.a.A.run", "fun run() = 1", 1)
	in.Meta = map[string]any{"a": 1, "keep": []string{"x"}}
	if _, err := f.b.Upsert(ctx, in); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	in.Meta = map[string]any{
		"a":         1,
		"b":         2,
		"emptyList": []string{},
		"emptyMap":  map[string]any{},
		"nullVal":   nil,
	}
	n, err := f.b.Upsert(ctx, in)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(n.Meta) != 3 {
		t.Fatalf("meta = %v, want exactly a, b, keep", n.Meta)
	}
	if n.Meta["a"] != float64(1) || n.Meta["b"] != float64(2) {
		t.Errorf("scalar keys wrong: %v", n.Meta)
	}
	if keep := domain.AsStrings(n.Meta["keep"]); len(keep) != 1 || keep[0] != "x" {
		t.Errorf("keep lost: %v", n.Meta["keep"])
	}
	for _, k := range []string{"emptyList", "emptyMap", "nullVal"} {
		if _, ok := n.Meta[k]; ok {
			t.Errorf("%s should be excluded", k)
		}
	}

	// Explicit null deletes an existing key.
	in.Meta = map[string]any{"keep": nil}
	n, _ = f.b.Upsert(ctx, in)
	if _, ok := n.Meta["keep"]; ok {
		t.Errorf("keep should be deleted: %v", n.Meta)
	}
}

func TestMergeMetaNested(t *testing.T) {
	base := map[string]any{"api": map[string]any{"method": "GET", "path": "/a"}}
	patch := map[string]any{"api": map[string]any{"path": "/b", "method": nil}}
	got := mergeMeta(base, patch)
	api, ok := got["api"].(map[string]any)
	if !ok || api["path"] != "/b" || len(api) != 1 {
		t.Errorf("nested merge = %v", got)
	}
	if base["api"].(map[string]any)["path"] != "/a" {
		t.Error("base was mutated")
	}
}

func TestTruncation(t *testing.T) {
	f := newFixture(t, Options{MaxSourceBytes: 16})
	long := strings.Repeat("x", 64)
	n, err := f.b.Upsert(context.Background(), f.method("com.a.A.big", long, 1))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n.SourceCode != strings.Repeat("x", 16)+"\n... [truncated]" {
		t.Errorf("unexpected truncation: %q", n.SourceCode)
	}
	if want := hashSource(long); *n.CodeHash != *want {
		t.Error("hash should cover the untruncated source")
	}
}

func TestValidation(t *testing.T) {
	f := newFixture(t, Options{})
	other, _ := f.store.UpsertApplication("other", "Other", "")
	foreign := &domain.Node{AppID: other.ID, FQN: "x.Y", Kind: domain.KindClass}
	if err := f.store.InsertNode(foreign); err != nil {
		t.Fatalf("InsertNode: %v", err)
	}
	self := &domain.Node{AppID: f.app.ID, FQN: "com.a.Self", Kind: domain.KindClass}
	if err := f.store.InsertNode(self); err != nil {
		t.Fatalf("InsertNode: %v", err)
	}

	base := func(fqn string) Input {
		return Input{AppID: f.app.ID, FQN: fqn, Kind: domain.KindClass}
	}
	tests := []struct {
		name string
		in   Input
		want error
	}{
		{"blank", base("   "), ErrBlankFQN},
		{"too long", base("a" + strings.Repeat(".b", 600)), ErrFQNTooLong},
		{"bad chars", base("com.a.Foo-Bar"), ErrInvalidFQN},
		{"bad kind", Input{AppID: f.app.ID, FQN: "com.a.K", Kind: "WIDGET"}, ErrInvalidInput},
		{"negative span", func() Input { in := base("com.a.S"); in.Span = &domain.Span{Start: -1, End: 2}; return in }(), ErrInvalidSpan},
		{"inverted span", func() Input { in := base("com.a.S"); in.Span = &domain.Span{Start: 9, End: 2}; return in }(), ErrInvalidSpan},
		{"unsaved parent", func() Input { in := base("com.a.P"); in.Parent = &domain.Node{AppID: f.app.ID, FQN: "com.a"}; return in }(), ErrParentNotPersisted},
		{"foreign parent", func() Input { in := base("com.a.F"); in.Parent = foreign; return in }(), ErrForeignParent},
		{"self parent", func() Input { in := base("com.a.Self"); in.Parent = self; return in }(), ErrSelfParent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.b.Upsert(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !IsValidation(err) {
				t.Errorf("expected a validation error, got %T", err)
			}
		})
	}

	ok := []string{"com.a.Foo", "com.a.Foo.bar(int, String)", "_x", "endpoint://GET https://x/y", "topic://orders"}
	for _, fqn := range ok {
		if _, err := f.b.Upsert(context.Background(), base(fqn)); err != nil {
			t.Errorf("Upsert(%q): %v", fqn, err)
		}
	}
}

func TestPatchMeta(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	if _, err := f.b.Upsert(ctx, f.method("com.a.A.run", "fun run() {}", 1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	patch := map[string]any{"libraryIntegration": map[string]any{"urls": []string{"https://x"}}}
	n, wrote, err := f.b.PatchMeta(ctx, f.app.ID, "com.a.A.run", patch)
	if err != nil || !wrote {
		t.Fatalf("first patch: wrote=%v err=%v", wrote, err)
	}
	if n.MetaString("source") != "function" {
		t.Errorf("existing meta lost: %v", n.Meta)
	}
	if _, wrote, err = f.b.PatchMeta(ctx, f.app.ID, "com.a.A.run", patch); err != nil || wrote {
		t.Errorf("second patch should be a no-op: wrote=%v err=%v", wrote, err)
	}

	stored, err := f.store.FindNode(f.app.ID, "com.a.A.run")
	if err != nil {
		t.Fatal(err)
	}
	li, ok := stored.Meta["libraryIntegration"].(map[string]any)
	if !ok || len(domain.AsStrings(li["urls"])) != 1 {
		t.Errorf("stored libraryIntegration = %v", stored.Meta["libraryIntegration"])
	}

	if _, _, err := f.b.PatchMeta(ctx, f.app.ID, "com.a.Missing", patch); err == nil {
		t.Error("expected error for missing node")
	}
}
