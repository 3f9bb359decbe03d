package linker

import (
	"context"
	"errors"
	"testing"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/nodebuild"
)

func typeNode(id int64, fqn string, kind domain.NodeKind) *domain.Node {
	return &domain.Node{
		ID:   id,
		FQN:  fqn,
		Name: simpleOf(fqn),
		Kind: kind,
		Meta: map[string]any{domain.MetaSource: domain.SourceType},
	}
}

func TestResolveType(t *testing.T) {
	local := typeNode(1, "com.app.Foo", domain.KindClass)
	lib := typeNode(2, "com.lib.Foo", domain.KindClass)
	bar1 := typeNode(3, "com.a.Bar", domain.KindClass)
	bar2 := typeNode(4, "com.b.Bar", domain.KindClass)
	only := typeNode(5, "com.c.Only", domain.KindInterface)
	inner := typeNode(6, "com.app.Foo.Inner", domain.KindClass)
	inner.Meta[domain.MetaOwnerFQN] = "com.app.Foo"
	fn := &domain.Node{ID: 7, FQN: "com.app.Only", Name: "Only", Kind: domain.KindMethod,
		Meta: map[string]any{domain.MetaSource: domain.SourceFunction}}
	idx := NewNodeIndex([]*domain.Node{local, lib, bar1, bar2, only, inner, fn})

	tests := []struct {
		name    string
		ref     string
		imports []string
		pkg     string
		want    *domain.Node
	}{
		{"package local", "Foo", nil, "com.app", local},
		{"import beats package", "Foo", []string{"com.lib.Foo"}, "com.app", lib},
		{"nullable", "Foo?", nil, "com.app", local},
		{"generic fqn", "com.app.Foo<Bar>", nil, "", local},
		{"array", "Foo[]", nil, "com.app", local},
		{"ambiguous simple name", "Bar", nil, "com.x", nil},
		{"unique simple name", "Only", nil, "com.x", only},
		{"wildcard import", "Bar", []string{"com.b.*"}, "com.x", bar2},
		{"nested via outer", "Foo.Inner", nil, "com.app", inner},
		{"binary name", "com.app.Foo$Inner", nil, "", inner},
		{"function type", "(Int) -> Unit", nil, "com.app", nil},
		{"unknown", "Missing", nil, "com.app", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := idx.ResolveType(tt.ref, tt.imports, tt.pkg); got != tt.want {
				t.Errorf("ResolveType(%q) = %v, want %v", tt.ref, got, tt.want)
			}
		})
	}
}

func TestResolveTypeExternalImportShadowsPackage(t *testing.T) {
	idx := NewNodeIndex([]*domain.Node{typeNode(1, "com.app.Foo", domain.KindClass)})
	if got := idx.ResolveType("Foo", []string{"org.ext.Foo"}, "com.app"); got != nil {
		t.Errorf("external import should shadow the package type, got %v", got)
	}
	name, ok := idx.resolveTypeName("Foo", []string{"org.ext.Foo"}, "com.app")
	if !ok || name != "org.ext.Foo" {
		t.Errorf("resolveTypeName = %q, %v", name, ok)
	}
}

func TestResolveSimpleCallOrder(t *testing.T) {
	fn := func(id int64, fqn string) *domain.Node {
		return &domain.Node{ID: id, FQN: fqn, Name: simpleOf(fqn), Kind: domain.KindMethod,
			Meta: map[string]any{domain.MetaSource: domain.SourceFunction}}
	}
	owner := typeNode(1, "com.example.User", domain.KindClass)
	own := fn(2, "com.example.User.helper")
	local := fn(3, "com.example.helper")
	imported := fn(4, "com.other.helper")
	l := &run{index: NewNodeIndex([]*domain.Node{owner, own, local, imported})}

	caller := fn(5, "com.example.Tool.run")
	nc := &nodeContext{node: caller, pkg: "com.example", imports: []string{"com.other.helper"}}
	if got := l.resolveSimpleCall(nc, domain.SimpleUsage("helper", true)); got != imported {
		t.Errorf("import should win over the package function, got %v", got)
	}
	if got := l.resolveSimpleCall(nc, domain.SimpleUsage("helper", false)); got != nil {
		t.Errorf("a plain reference is not a call, got %v", got)
	}

	nc.owner = owner
	if got := l.resolveSimpleCall(nc, domain.SimpleUsage("helper", true)); got != own {
		t.Errorf("owner member should win, got %v", got)
	}

	nc = &nodeContext{node: caller, pkg: "com.example"}
	if got := l.resolveSimpleCall(nc, domain.SimpleUsage("helper", true)); got != local {
		t.Errorf("package function should resolve without imports, got %v", got)
	}
}

type countingUpserter struct {
	calls int
	fail  bool
	next  int64
}

func (u *countingUpserter) Upsert(_ context.Context, in nodebuild.Input) (*domain.Node, error) {
	u.calls++
	if u.fail {
		return nil, errors.New("disk full")
	}
	u.next++
	return &domain.Node{ID: u.next, AppID: in.AppID, FQN: in.FQN, Name: in.Name, Kind: in.Kind, Lang: in.Lang, Meta: in.Meta}, nil
}

func TestVirtualFactory(t *testing.T) {
	u := &countingUpserter{}
	idx := NewNodeIndex(nil)
	f := NewVirtualFactory(1, idx, u)
	ctx := context.Background()

	ep, created := f.GetOrCreateEndpoint(ctx, "https://svc/api/users", "GET")
	if !created || ep == nil {
		t.Fatalf("first endpoint request: %v, %v", ep, created)
	}
	if ep.FQN != "endpoint://GET https://svc/api/users" || ep.Name != "users" || ep.Kind != domain.KindEndpoint {
		t.Errorf("endpoint = %+v", ep)
	}
	again, created := f.GetOrCreateEndpoint(ctx, "https://svc/api/users", "GET")
	if created || again != ep {
		t.Errorf("second request should reuse the node")
	}

	noMethod, _ := f.GetOrCreateEndpoint(ctx, "https://svc/", "")
	if noMethod.FQN != "endpoint://https://svc/" || noMethod.Name != "https://svc/" {
		t.Errorf("endpoint without method = %+v", noMethod)
	}
	if got := noMethod.MetaString(domain.MetaHTTPMethod); got != domain.HTTPMethodUnknown {
		t.Errorf("httpMethod = %q", got)
	}

	topic, created := f.GetOrCreateTopic(ctx, "orders")
	if !created || topic.FQN != "topic://orders" || topic.Name != "orders" || topic.MetaString(domain.MetaTopic) != "orders" {
		t.Errorf("topic = %+v, created %v", topic, created)
	}
	if u.calls != 3 || f.Created() != 3 {
		t.Errorf("writes = %d, created = %d, want 3", u.calls, f.Created())
	}
	if idx.Get("topic://orders") != topic {
		t.Error("topic not indexed")
	}

	u.fail = true
	if n, created := f.GetOrCreateTopic(ctx, "events"); n != nil || created {
		t.Errorf("failed write should yield (nil, false), got %v, %v", n, created)
	}
}

func TestTypeRefs(t *testing.T) {
	got := typeRefs("Map<String, List<Order>>?")
	want := []string{"Map", "String", "List", "Order", "?"}
	if len(got) != len(want) {
		t.Fatalf("typeRefs = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("typeRefs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
