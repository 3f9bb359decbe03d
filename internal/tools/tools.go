package tools

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/docgraph/internal/builder"
	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/libbuild"
	"github.com/DeusData/docgraph/internal/store"
)

// Version is reported in the MCP handshake. Overridden at link time.
var Version = "dev"

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp    *mcp.Server
	store  *store.Store
	graphs *builder.Builder
	libs   *libbuild.Builder
}

// NewServer creates a new MCP server with all tools registered. libs may be
// nil, in which case build_libraries reports an error.
func NewServer(s *store.Store, graphs *builder.Builder, libs *libbuild.Builder) *Server {
	srv := &Server{
		store:  s,
		graphs: graphs,
		libs:   libs,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "docgraph",
				Version: Version,
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "build_graph",
		Description: "Walk a Kotlin/Java repository, upsert its declarations as graph nodes and link them. Unchanged declarations are skipped by content hash, so rebuilding is cheap.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"app": {
					"type": "string",
					"description": "Application key the graph is stored under (e.g. 'orders-service')"
				},
				"repo_path": {
					"type": "string",
					"description": "Absolute path to the repository root"
				},
				"classpath": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Optional jar files or directories used to resolve library types"
				}
			},
			"required": ["app", "repo_path"]
		}`),
	}, s.handleBuildGraph)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "link_graph",
		Description: "Re-run edge derivation for an application that was already built. Use after building libraries so integration edges pick up the new library nodes.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"app": {"type": "string", "description": "Application key"}
			},
			"required": ["app"]
		}`),
	}, s.handleLinkGraph)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "build_libraries",
		Description: "Analyze jar artifacts: resolve Maven coordinates, extract classes, methods and fields, and detect HTTP, Kafka and Camel integration points in bytecode. Already-built coordinates are skipped.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"paths": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Jar files or directories searched recursively for jars"
				}
			},
			"required": ["paths"]
		}`),
	}, s.handleBuildLibraries)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_applications",
		Description: "List built applications with node and edge counts.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}, s.handleListApplications)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "search_nodes",
		Description: "Search graph nodes of an application by kind, name regex and file glob. Results include in/out degree and are paginated with a total count.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"app": {"type": "string", "description": "Application key"},
				"kind": {"type": "string", "description": "Node kind, e.g. CLASS, METHOD, SERVICE, ENDPOINT"},
				"name_pattern": {"type": "string", "description": "Regex matched against name and FQN"},
				"file_pattern": {"type": "string", "description": "Glob matched against the file path, e.g. '*/controller/*'"},
				"edge_kind": {"type": "string", "description": "Count degree over this edge kind only"},
				"limit": {"type": "integer", "description": "Max results (default 50)"},
				"offset": {"type": "integer", "description": "Results to skip"}
			},
			"required": ["app"]
		}`),
	}, s.handleSearchNodes)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_node",
		Description: "Return one node by FQN with its metadata, outgoing and incoming edges, and edges into library nodes. Set include_source to also return the stored source text.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"app": {"type": "string", "description": "Application key"},
				"fqn": {"type": "string", "description": "Fully qualified name, e.g. 'com.acme.OrderService.place'"},
				"include_source": {"type": "boolean", "description": "Include source_code in the response"}
			},
			"required": ["app", "fqn"]
		}`),
	}, s.handleGetNode)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "trace_calls",
		Description: "Breadth-first traversal from a node along call edges (or the given edge kinds). Returns nodes grouped by hop and the traversed edges.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"app": {"type": "string", "description": "Application key"},
				"fqn": {"type": "string", "description": "FQN of the start node"},
				"direction": {
					"type": "string",
					"enum": ["outbound", "inbound", "both"],
					"description": "'outbound' follows callees, 'inbound' follows callers (default outbound)"
				},
				"depth": {"type": "integer", "description": "Maximum depth (1-10, default 3)"},
				"edge_kinds": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Edge kinds to follow (default CALLS_CODE)"
				}
			},
			"required": ["app", "fqn"]
		}`),
	}, s.handleTraceCalls)
}

// jsonResult marshals data to JSON and returns as tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

// getStringArg extracts a string argument from parsed args.
func getStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// getIntArg extracts an integer argument with a default value.
func getIntArg(args map[string]any, key string, defaultVal int) int {
	f, ok := args[key].(float64) // JSON numbers decode as float64
	if !ok {
		return defaultVal
	}
	return int(f)
}

// getBoolArg extracts a boolean argument from parsed args.
func getBoolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// getStringSliceArg extracts a string array argument. Non-string items are dropped.
func getStringSliceArg(args map[string]any, key string) []string {
	return domain.AsStrings(args[key])
}

// application resolves the "app" argument to a stored application.
func (s *Server) application(args map[string]any) (*domain.Application, error) {
	key := getStringArg(args, "app")
	if key == "" {
		return nil, fmt.Errorf("app is required")
	}
	app, err := s.store.GetApplication(key)
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	if app == nil {
		return nil, fmt.Errorf("application not found: %s", key)
	}
	return app, nil
}

// findNode resolves the "fqn" argument within app.
func (s *Server) findNode(app *domain.Application, args map[string]any) (*domain.Node, error) {
	fqn := getStringArg(args, "fqn")
	if fqn == "" {
		return nil, fmt.Errorf("fqn is required")
	}
	node, err := s.store.FindNode(app.ID, fqn)
	if err != nil {
		return nil, fmt.Errorf("find node: %w", err)
	}
	if node == nil {
		return nil, fmt.Errorf("node not found: %s", fqn)
	}
	return node, nil
}

func nodeInfo(n *domain.Node) map[string]any {
	info := map[string]any{
		"id":        n.ID,
		"fqn":       n.FQN,
		"name":      n.Name,
		"kind":      n.Kind,
		"lang":      n.Lang,
		"file_path": n.FilePath,
	}
	if n.PackageName != "" {
		info["package"] = n.PackageName
	}
	if n.Signature != "" {
		info["signature"] = n.Signature
	}
	if n.LineStart != nil {
		info["line_start"] = *n.LineStart
	}
	if n.LineEnd != nil {
		info["line_end"] = *n.LineEnd
	}
	return info
}
