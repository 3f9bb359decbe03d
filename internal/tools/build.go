package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/docgraph/internal/builder"
	"github.com/DeusData/docgraph/internal/libbuild"
	"github.com/DeusData/docgraph/internal/linker"
)

func (s *Server) handleBuildGraph(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	app := getStringArg(args, "app")
	if app == "" {
		return errResult("app is required"), nil
	}
	repoPath := getStringArg(args, "repo_path")
	if repoPath == "" {
		return errResult("repo_path is required"), nil
	}
	if !filepath.IsAbs(repoPath) {
		return errResult(fmt.Sprintf("repo_path must be absolute: %s", repoPath)), nil
	}

	res, err := s.graphs.Build(ctx, app, repoPath, getStringSliceArg(args, "classpath"))
	if err != nil {
		return errResult(fmt.Sprintf("build failed: %v", err)), nil
	}

	out := map[string]any{
		"run_id":        res.RunID,
		"app":           res.App,
		"files":         res.Files,
		"declarations":  res.Decls,
		"nodes_created": res.NodesCreated,
		"nodes_updated": res.NodesUpdated,
		"nodes_skipped": res.NodesSkipped,
		"edges":         res.EdgesWritten,
		"library_edges": res.LibraryEdgesWritten,
		"errors":        len(res.Errors),
		"duration_ms":   res.Duration.Milliseconds(),
	}
	if len(res.Errors) > 0 {
		out["first_errors"] = firstN(res.Errors, 10)
	}
	if res.Linking != nil {
		out["linking"] = linkingInfo(res.Linking)
	}
	return jsonResult(out), nil
}

func (s *Server) handleLinkGraph(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	app := getStringArg(args, "app")
	if app == "" {
		return errResult("app is required"), nil
	}

	res, err := s.graphs.Link(ctx, app)
	if errors.Is(err, builder.ErrUnknownApplication) {
		return errResult(fmt.Sprintf("application not found: %s", app)), nil
	}
	if err != nil {
		return errResult(fmt.Sprintf("link failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"app":           app,
		"edges":         res.EdgesWritten,
		"library_edges": res.LibraryEdgesWritten,
		"linking":       linkingInfo(&res.Stats),
	}), nil
}

func (s *Server) handleBuildLibraries(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.libs == nil {
		return errResult("library building is not enabled"), nil
	}
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	paths := getStringSliceArg(args, "paths")
	if len(paths) == 0 {
		return errResult("paths is required"), nil
	}

	jars, err := libbuild.Jars(paths)
	if err != nil {
		return errResult(err.Error()), nil
	}
	res, err := s.libs.BuildAll(ctx, jars)
	if err != nil {
		return errResult(fmt.Sprintf("library build interrupted: %v", err)), nil
	}

	artifacts := make([]map[string]any, 0, len(res.Artifacts))
	for _, a := range res.Artifacts {
		info := map[string]any{
			"path":   a.Path,
			"status": a.Status,
		}
		if !a.Coordinate.IsZero() {
			info["coordinate"] = a.Coordinate.String()
			info["strategy"] = a.Strategy
		}
		if a.Reason != "" {
			info["reason"] = a.Reason
		}
		if a.Nodes > 0 {
			info["nodes"] = a.Nodes
			info["integration_sites"] = a.Sites
		}
		artifacts = append(artifacts, info)
	}
	out := map[string]any{
		"processed":     res.Processed,
		"skipped":       res.Skipped,
		"failed":        res.Failed,
		"nodes_created": res.NodesCreated,
		"artifacts":     artifacts,
		"duration_ms":   res.Duration.Milliseconds(),
	}
	if len(res.Errors) > 0 {
		out["errors"] = firstN(res.Errors, 20)
	}
	return jsonResult(out), nil
}

func linkingInfo(st *linker.LinkingStats) map[string]any {
	return map[string]any{
		"nodes":         st.Nodes,
		"edges":         st.Edges,
		"failures":      st.Failures,
		"virtual_nodes": st.VirtualNodes,
		"enriched":      st.Enriched,
		"duration_ms":   st.Duration.Milliseconds(),
	}
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
