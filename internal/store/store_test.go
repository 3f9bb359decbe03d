package store

import (
	"errors"
	"testing"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/lang"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testApp(t *testing.T, s *Store) *domain.Application {
	t.Helper()
	app, err := s.UpsertApplication("demo", "Demo", "/tmp/demo")
	if err != nil {
		t.Fatalf("UpsertApplication: %v", err)
	}
	return app
}

func intPtr(v int) *int { return &v }

func TestApplicationUpsert(t *testing.T) {
	s := openTestStore(t)
	a1 := testApp(t, s)
	a2, err := s.UpsertApplication("demo", "Demo Renamed", "/tmp/demo2")
	if err != nil {
		t.Fatalf("UpsertApplication: %v", err)
	}
	if a1.ID != a2.ID {
		t.Errorf("expected same id, got %d and %d", a1.ID, a2.ID)
	}
	if a2.Name != "Demo Renamed" || a2.RepoPath != "/tmp/demo2" {
		t.Errorf("application not refreshed: %+v", a2)
	}
	missing, err := s.GetApplication("nope")
	if err != nil || missing != nil {
		t.Errorf("GetApplication(nope) = %v, %v; want nil, nil", missing, err)
	}
}

func TestNodeCRUD(t *testing.T) {
	s := openTestStore(t)
	app := testApp(t, s)

	hash := "abc"
	pkg := &domain.Node{AppID: app.ID, FQN: "com.example", Name: "example", Kind: domain.KindPackage, Lang: lang.Kotlin}
	if err := s.InsertNode(pkg); err != nil {
		t.Fatalf("InsertNode pkg: %v", err)
	}
	cls := &domain.Node{
		AppID:       app.ID,
		FQN:         "com.example.Foo",
		Name:        "Foo",
		PackageName: "com.example",
		Kind:        domain.KindClass,
		Lang:        lang.Kotlin,
		ParentID:    &pkg.ID,
		FilePath:    "Foo.kt",
		LineStart:   intPtr(3),
		LineEnd:     intPtr(9),
		SourceCode:  "class Foo",
		CodeHash:    &hash,
		Meta:        map[string]any{"source": "type", "annotations": []string{"Service"}},
	}
	if err := s.InsertNode(cls); err != nil {
		t.Fatalf("InsertNode cls: %v", err)
	}
	if cls.ID == 0 {
		t.Fatal("expected non-zero id")
	}

	found, err := s.FindNode(app.ID, "com.example.Foo")
	if err != nil {
		t.Fatalf("FindNode: %v", err)
	}
	if found == nil {
		t.Fatal("expected node, got nil")
	}
	if found.ParentID == nil || *found.ParentID != pkg.ID {
		t.Errorf("parent = %v, want %d", found.ParentID, pkg.ID)
	}
	if found.LineStart == nil || *found.LineStart != 3 || found.LineEnd == nil || *found.LineEnd != 9 {
		t.Errorf("unexpected span: %v-%v", found.LineStart, found.LineEnd)
	}
	if found.CodeHash == nil || *found.CodeHash != "abc" {
		t.Errorf("unexpected hash: %v", found.CodeHash)
	}
	if got := found.MetaStrings("annotations"); len(got) != 1 || got[0] != "Service" {
		t.Errorf("unexpected annotations meta: %v", got)
	}
	if pkgFound, _ := s.FindNode(app.ID, "com.example"); pkgFound.LineStart != nil || pkgFound.CodeHash != nil {
		t.Errorf("expected null span and hash for package, got %+v", pkgFound)
	}

	found.Signature = "class Foo()"
	found.LineStart = nil
	if err := s.UpdateNode(found); err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	again, _ := s.FindNodeByID(found.ID)
	if again.Signature != "class Foo()" || again.LineStart != nil {
		t.Errorf("update not persisted: %+v", again)
	}

	count, err := s.CountNodes(app.ID)
	if err != nil || count != 2 {
		t.Errorf("CountNodes = %d, %v; want 2", count, err)
	}

	missing, err := s.FindNode(app.ID, "com.example.Missing")
	if err != nil || missing != nil {
		t.Errorf("FindNode(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestNodeUniquePerApplication(t *testing.T) {
	s := openTestStore(t)
	app := testApp(t, s)
	other, err := s.UpsertApplication("other", "Other", "")
	if err != nil {
		t.Fatalf("UpsertApplication: %v", err)
	}

	if err := s.InsertNode(&domain.Node{AppID: app.ID, FQN: "a.B", Kind: domain.KindClass}); err != nil {
		t.Fatalf("InsertNode: %v", err)
	}
	if err := s.InsertNode(&domain.Node{AppID: app.ID, FQN: "a.B", Kind: domain.KindClass}); err == nil {
		t.Fatal("expected unique violation for duplicate fqn in same app")
	}
	if err := s.InsertNode(&domain.Node{AppID: other.ID, FQN: "a.B", Kind: domain.KindClass}); err != nil {
		t.Fatalf("same fqn in another app should be allowed: %v", err)
	}
}

func TestEdgeBatchUpsert(t *testing.T) {
	s := openTestStore(t)
	app := testApp(t, s)

	a := &domain.Node{AppID: app.ID, FQN: "p.A", Name: "A", Kind: domain.KindClass}
	b := &domain.Node{AppID: app.ID, FQN: "p.B", Name: "B", Kind: domain.KindClass}
	for _, n := range []*domain.Node{a, b} {
		if err := s.InsertNode(n); err != nil {
			t.Fatalf("InsertNode: %v", err)
		}
	}

	edges := []*domain.Edge{
		{AppID: app.ID, SrcID: a.ID, DstID: b.ID, Kind: domain.EdgeDependsOn, Confidence: 0.5},
		{AppID: app.ID, SrcID: a.ID, DstID: b.ID, Kind: domain.EdgeInherits, Confidence: 1},
	}
	if err := s.UpsertEdgeBatch(edges); err != nil {
		t.Fatalf("UpsertEdgeBatch: %v", err)
	}
	// Rerun with changed evidence: same identity, no duplicates.
	edges[0].Evidence = map[string]any{"via": "signature"}
	if err := s.UpsertEdgeBatch(edges); err != nil {
		t.Fatalf("UpsertEdgeBatch rerun: %v", err)
	}

	count, _ := s.CountEdges(app.ID)
	if count != 2 {
		t.Fatalf("expected 2 edges, got %d", count)
	}
	out, err := s.FindEdgesBySourceAndKind(a.ID, domain.EdgeDependsOn)
	if err != nil || len(out) != 1 {
		t.Fatalf("FindEdgesBySourceAndKind = %v, %v", out, err)
	}
	if out[0].Evidence["via"] != "signature" {
		t.Errorf("evidence not refreshed: %v", out[0].Evidence)
	}
	if out[0].Strength != domain.StrengthNormal {
		t.Errorf("default strength = %q, want normal", out[0].Strength)
	}
	byKind, _ := s.CountEdgesByKind(app.ID)
	if byKind[domain.EdgeInherits] != 1 {
		t.Errorf("CountEdgesByKind = %v", byKind)
	}
}

func TestWithTransactionRollback(t *testing.T) {
	s := openTestStore(t)
	app := testApp(t, s)

	boom := errors.New("boom")
	err := s.WithTransaction(func(tx *Store) error {
		if err := tx.InsertNode(&domain.Node{AppID: app.ID, FQN: "p.Tx", Kind: domain.KindClass}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n, _ := s.FindNode(app.ID, "p.Tx"); n != nil {
		t.Fatal("node should have been rolled back")
	}

	err = s.WithTransaction(func(tx *Store) error {
		return tx.WithTransaction(func(inner *Store) error {
			return inner.InsertNode(&domain.Node{AppID: app.ID, FQN: "p.Nested", Kind: domain.KindClass})
		})
	})
	if err != nil {
		t.Fatalf("nested transaction: %v", err)
	}
	if n, _ := s.FindNode(app.ID, "p.Nested"); n == nil {
		t.Fatal("nested insert not committed")
	}
}

func TestLibraryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	app := testApp(t, s)

	coord := domain.Coordinate{Group: "com.example", Artifact: "client", Version: "1.0.0"}
	if lib, _ := s.FindLibrary(coord); lib != nil {
		t.Fatal("library should not exist yet")
	}
	lib := &domain.Library{Coordinate: coord, Kind: domain.LibraryExternal}
	if err := s.InsertLibrary(lib); err != nil {
		t.Fatalf("InsertLibrary: %v", err)
	}

	cls := &domain.LibraryNode{LibraryID: lib.ID, FQN: "com.example.Client", Name: "Client", Kind: domain.KindClass}
	if err := s.InsertLibraryNode(cls); err != nil {
		t.Fatalf("InsertLibraryNode: %v", err)
	}
	method := &domain.LibraryNode{
		LibraryID: lib.ID, FQN: "com.example.Client.call", Name: "call", Kind: domain.KindMethod, ParentID: &cls.ID,
		Meta: map[string]any{"integrationAnalysis": map[string]any{"urls": []string{"https://x"}, "isParentClient": true}},
	}
	if err := s.InsertLibraryNode(method); err != nil {
		t.Fatalf("InsertLibraryNode: %v", err)
	}
	firstID := method.ID
	if err := s.InsertLibraryNode(method); err != nil {
		t.Fatalf("InsertLibraryNode rerun: %v", err)
	}
	if method.ID != firstID {
		t.Errorf("re-insert changed id %d -> %d", firstID, method.ID)
	}

	all, err := s.AllLibraryNodes()
	if err != nil || len(all) != 2 {
		t.Fatalf("AllLibraryNodes = %d, %v", len(all), err)
	}
	ia := all[1].MetaMap("integrationAnalysis")
	if ia == nil || ia["isParentClient"] != true {
		t.Errorf("integrationAnalysis meta lost: %v", all[1].Meta)
	}

	n := &domain.Node{AppID: app.ID, FQN: "p.Use.run", Kind: domain.KindMethod}
	if err := s.InsertNode(n); err != nil {
		t.Fatalf("InsertNode: %v", err)
	}
	edge := &domain.NodeLibraryEdge{NodeID: n.ID, LibraryNodeID: method.ID, Kind: domain.EdgeCallsCode}
	for i := 0; i < 2; i++ {
		if err := s.UpsertNodeLibraryEdgeBatch([]*domain.NodeLibraryEdge{edge}); err != nil {
			t.Fatalf("UpsertNodeLibraryEdgeBatch: %v", err)
		}
	}
	count, _ := s.CountNodeLibraryEdges(app.ID)
	if count != 1 {
		t.Errorf("expected 1 library edge, got %d", count)
	}
}

func TestSearchAndBFS(t *testing.T) {
	s := openTestStore(t)
	app := testApp(t, s)

	names := []string{"p.A.run", "p.B.step", "p.C.finish"}
	nodes := make([]*domain.Node, len(names))
	for i, fqn := range names {
		nodes[i] = &domain.Node{AppID: app.ID, FQN: fqn, Name: fqn[4:], Kind: domain.KindMethod, FilePath: "src/p/F.kt"}
		if err := s.InsertNode(nodes[i]); err != nil {
			t.Fatalf("InsertNode: %v", err)
		}
	}
	err := s.UpsertEdgeBatch([]*domain.Edge{
		{AppID: app.ID, SrcID: nodes[0].ID, DstID: nodes[1].ID, Kind: domain.EdgeCallsCode},
		{AppID: app.ID, SrcID: nodes[1].ID, DstID: nodes[2].ID, Kind: domain.EdgeCallsCode},
	})
	if err != nil {
		t.Fatalf("UpsertEdgeBatch: %v", err)
	}

	out, err := s.Search(SearchParams{AppID: app.ID, NamePattern: "^(run|step)$", FilePattern: "src/**"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if out.Total != 2 {
		t.Fatalf("expected 2 results, got %d", out.Total)
	}
	if out.Results[1].OutDegree != 1 || out.Results[1].InDegree != 1 {
		t.Errorf("unexpected degrees for %s: in=%d out=%d", out.Results[1].Node.FQN, out.Results[1].InDegree, out.Results[1].OutDegree)
	}

	tr, err := s.BFS(nodes[0].ID, "outbound", []domain.EdgeKind{domain.EdgeCallsCode}, 3, 10)
	if err != nil {
		t.Fatalf("BFS: %v", err)
	}
	if len(tr.Visited) != 2 || tr.Visited[1].Node.FQN != "p.C.finish" || tr.Visited[1].Hop != 2 {
		t.Errorf("unexpected traversal: %+v", tr.Visited)
	}
}
