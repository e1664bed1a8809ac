package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/pagetree/internal/blueprint"
)

// MCP returns an MCP server exposing read-only page tools to agents.
func (s *Server) MCP(version string) *mcpserver.MCPServer {
	m := mcpserver.NewMCPServer("pagetree", version, mcpserver.WithToolCapabilities(false))

	m.AddTool(mcp.NewTool("resolve_path",
		mcp.WithDescription("Resolve a request path to the page it designates, with the matched chain and captured variables"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Request path, e.g. /blog/2021/hello.json")),
		mcp.WithNumber("site", mcp.Description("Site id (default 1)")),
	), s.toolResolve)

	m.AddTool(mcp.NewTool("page_tree",
		mcp.WithDescription("Return the page tree of a site"),
		mcp.WithNumber("site", mcp.Description("Site id (default 1)")),
		mcp.WithNumber("depth", mcp.Description("Maximum depth, -1 for no limit")),
		mcp.WithBoolean("nav", mcp.Description("Only pages shown by navigation menus")),
	), s.toolTree)

	m.AddTool(mcp.NewTool("page_url",
		mcp.WithDescription("Build the URL of a page, formatting pattern pages with the given variables"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Page id")),
		mcp.WithNumber("site", mcp.Description("Site id (default 1)")),
		mcp.WithObject("variables", mcp.Description("Pattern variables, e.g. {\"year\": \"2021\"}")),
	), s.toolURL)

	return m
}

func (s *Server) toolSite(req mcp.CallToolRequest) (int64, error) {
	id := int64(req.GetInt("site", 1))
	if _, ok := s.cfg.Site(id); !ok {
		return 0, fmt.Errorf("site %d is not configured", id)
	}
	return id, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) toolResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.toolSite(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	site, _ := s.cfg.Site(id)

	res, err := s.resolver.Resolve(ctx, site, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(Resolution{Site: site, Page: res.Page, Chain: res.Chain, Extension: res.Extension})
}

func (s *Server) toolTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.toolSite(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bp, err := s.model.Blueprint(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var filter blueprint.FilterFunc
	if req.GetBool("nav", false) {
		filter = blueprint.NavigationHidden
	}
	bp = bp.Subset(0, req.GetInt("depth", blueprint.Unbounded), filter)
	return jsonResult(nodeViews(bp.Roots(), true))
}

func (s *Server) toolURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.toolSite(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	site, _ := s.cfg.Site(id)

	vars := make(map[string]string)
	if raw, ok := req.GetArguments()["variables"].(map[string]any); ok {
		for k, v := range raw {
			vars[k] = fmt.Sprint(v)
		}
	}
	u, err := s.resolver.URL(ctx, site, int64(pageID), vars)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(u), nil
}
