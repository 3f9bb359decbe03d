package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/docgraph/internal/builder"
	"github.com/DeusData/docgraph/internal/libbuild"
	"github.com/DeusData/docgraph/internal/library"
	"github.com/DeusData/docgraph/internal/store"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	repo := t.TempDir()
	files := map[string]string{
		"src/foo/A.kt": "package foo\n\nclass A {\n    fun use() {\n        val b = B()\n        b.ping()\n    }\n}\n",
		"src/foo/B.kt": "package foo\n\nclass B {\n    fun ping() {}\n}\n",
	}
	for rel, content := range files {
		path := filepath.Join(repo, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	idx := library.NewIndex(nil)
	graphs := builder.New(s, idx, builder.Options{LinkWorkers: 2})
	libs := libbuild.New(libbuild.StoreTx(s), idx, libbuild.Options{Workers: 1})
	return NewServer(s, graphs, libs), repo
}

func call(t *testing.T, handler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error), args string) (*mcp.CallToolResult, string) {
	t.Helper()
	req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(args)}}
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("content = %+v", res.Content)
	}
	return res, res.Content[0].(*mcp.TextContent).Text
}

func decode(t *testing.T, text string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
}

func buildShop(t *testing.T, srv *Server, repo string) {
	t.Helper()
	args, _ := json.Marshal(map[string]any{"app": "shop", "repo_path": repo})
	res, text := call(t, srv.handleBuildGraph, string(args))
	if res.IsError {
		t.Fatalf("build_graph: %s", text)
	}
	var out struct {
		Files        int    `json:"files"`
		NodesCreated int    `json:"nodes_created"`
		RunID        string `json:"run_id"`
	}
	decode(t, text, &out)
	if out.Files != 2 || out.NodesCreated == 0 || out.RunID == "" {
		t.Fatalf("build_graph = %s", text)
	}
}

func TestBuildGraphAndListApplications(t *testing.T) {
	srv, repo := newTestServer(t)
	buildShop(t, srv, repo)

	res, text := call(t, srv.handleListApplications, `{}`)
	if res.IsError {
		t.Fatalf("list_applications: %s", text)
	}
	var apps []struct {
		Key         string         `json:"key"`
		RepoPath    string         `json:"repo_path"`
		Nodes       int            `json:"nodes"`
		EdgesByKind map[string]int `json:"edges_by_kind"`
	}
	decode(t, text, &apps)
	if len(apps) != 1 || apps[0].Key != "shop" || apps[0].Nodes == 0 {
		t.Fatalf("apps = %s", text)
	}
	if apps[0].EdgesByKind["CALLS_CODE"] == 0 {
		t.Errorf("expected CALLS_CODE edges, got %v", apps[0].EdgesByKind)
	}
}

func TestBuildGraphArgumentErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	cases := map[string]string{
		"missing app":   `{"repo_path": "/tmp"}`,
		"missing repo":  `{"app": "shop"}`,
		"relative repo": `{"app": "shop", "repo_path": "src"}`,
		"bad json":      `{"app":`,
	}
	for name, args := range cases {
		res, _ := call(t, srv.handleBuildGraph, args)
		if !res.IsError {
			t.Errorf("%s: expected error result", name)
		}
	}

	res, text := call(t, srv.handleLinkGraph, `{"app": "nope"}`)
	if !res.IsError || !strings.Contains(text, "application not found") {
		t.Errorf("link_graph unknown app = %s", text)
	}
}

func TestSearchNodes(t *testing.T) {
	srv, repo := newTestServer(t)
	buildShop(t, srv, repo)

	res, text := call(t, srv.handleSearchNodes, `{"app": "shop", "kind": "method", "name_pattern": "^p"}`)
	if res.IsError {
		t.Fatalf("search_nodes: %s", text)
	}
	var out struct {
		Total   int `json:"total"`
		Results []struct {
			FQN      string `json:"fqn"`
			InDegree int    `json:"in_degree"`
		} `json:"results"`
	}
	decode(t, text, &out)
	if out.Total != 1 || out.Results[0].FQN != "foo.B.ping" {
		t.Fatalf("search = %s", text)
	}
	if out.Results[0].InDegree == 0 {
		t.Errorf("ping should have incoming edges: %s", text)
	}

	if res, _ := call(t, srv.handleSearchNodes, `{"app": "shop", "kind": "GADGET"}`); !res.IsError {
		t.Error("unknown kind should be rejected")
	}
	if res, _ := call(t, srv.handleSearchNodes, `{"app": "other"}`); !res.IsError {
		t.Error("unknown app should be rejected")
	}
}

func TestGetNode(t *testing.T) {
	srv, repo := newTestServer(t)
	buildShop(t, srv, repo)

	res, text := call(t, srv.handleGetNode, `{"app": "shop", "fqn": "foo.A.use", "include_source": true}`)
	if res.IsError {
		t.Fatalf("get_node: %s", text)
	}
	var out struct {
		Kind     string `json:"kind"`
		Parent   string `json:"parent"`
		Source   string `json:"source_code"`
		Outgoing []struct {
			Kind string `json:"kind"`
			To   string `json:"to"`
		} `json:"outgoing"`
	}
	decode(t, text, &out)
	if out.Kind != "METHOD" || out.Parent != "foo.A" || !strings.Contains(out.Source, "b.ping()") {
		t.Fatalf("get_node = %s", text)
	}
	found := false
	for _, e := range out.Outgoing {
		if e.Kind == "CALLS_CODE" && e.To == "foo.B.ping" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing call edge to foo.B.ping: %s", text)
	}

	if res, _ := call(t, srv.handleGetNode, `{"app": "shop", "fqn": "foo.Missing"}`); !res.IsError {
		t.Error("missing node should be an error")
	}
}

func TestTraceCalls(t *testing.T) {
	srv, repo := newTestServer(t)
	buildShop(t, srv, repo)

	var out struct {
		Hops []struct {
			Hop   int `json:"hop"`
			Nodes []struct {
				FQN string `json:"fqn"`
			} `json:"nodes"`
		} `json:"hops"`
		Total int `json:"total_results"`
	}
	res, text := call(t, srv.handleTraceCalls, `{"app": "shop", "fqn": "foo.B.ping", "direction": "inbound"}`)
	if res.IsError {
		t.Fatalf("trace_calls: %s", text)
	}
	decode(t, text, &out)
	if out.Total != 1 || len(out.Hops) != 1 || out.Hops[0].Nodes[0].FQN != "foo.A.use" {
		t.Fatalf("trace = %s", text)
	}

	if res, _ := call(t, srv.handleTraceCalls, `{"app": "shop", "fqn": "foo.B.ping", "direction": "sideways"}`); !res.IsError {
		t.Error("invalid direction should be rejected")
	}
}

func TestBuildLibrariesRequiresJars(t *testing.T) {
	srv, _ := newTestServer(t)
	if res, _ := call(t, srv.handleBuildLibraries, `{}`); !res.IsError {
		t.Error("missing paths should be rejected")
	}
	args, _ := json.Marshal(map[string]any{"paths": []string{t.TempDir()}})
	res, text := call(t, srv.handleBuildLibraries, string(args))
	if !res.IsError || !strings.Contains(text, libbuild.ErrNoJars.Error()) {
		t.Errorf("empty dir = %s", text)
	}
}
