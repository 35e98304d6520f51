// Package mcp provides the gitcmd MCP server, registering the git tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/gitcmd"
	"github.com/deixis/gitcmd/internal/config"
	"github.com/deixis/gitcmd/internal/host"
	"github.com/deixis/gitcmd/internal/report"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	store  report.Store
	logger *slog.Logger

	mu        sync.Mutex
	host      *host.Host
	workspace string
	cfgPath   string
}

// NewServer creates an MCP server with all gitcmd tools registered. Runs
// without an explicit repository_path target workspace, which is replaced by
// the first root the client reports.
func NewServer(h *host.Host, store report.Store, workspace string, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	hd := &handler{
		store:     store,
		logger:    logger,
		host:      h,
		workspace: workspace,
	}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			hd.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "gitcmd", Version: gitcmd.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "git_workspace",
		Description: "Summarise the git workspace: repository root, current branch, and pending changes.",
	}, hd.workspaceHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "git_run",
		Description: `Run one git command and return its outcome.

The command is always "git -C <repository_path> <git_args...>". The run is stopped
with an error once timeout_seconds have elapsed (default 30, 0 disables it).
The full stdout and stderr are stored for drill-down via git_inspect.`,
	}, hd.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "git_inspect",
		Description: `Return the captured output of a previous git_run.

Use the run_id from the git_run output. stream selects stdout, stderr, or all (default).`,
	}, hd.inspectHandler)

	return s
}

// session returns the host and workspace used for the next tool call.
func (h *handler) session() (*host.Host, string, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.host, h.workspace, h.cfgPath
}

// updateWorkspaceFromRoots queries the client for MCP roots and, if a file
// root is returned, loads its .gitcmd and makes it the default repository.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		h.logger.WarnContext(ctx, "ignoring workspace config", "workspace", workspace, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	next := host.New(loaded.Config, h.store, h.logger)
	next.Metrics = h.host.Metrics
	h.host = next
	h.workspace = workspace
	h.cfgPath = loaded.Path
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
