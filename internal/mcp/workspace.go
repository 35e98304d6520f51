package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/gitcmd/internal/config"
)

type workspaceParams struct{}

func (h *handler) workspaceHandler(ctx context.Context, req *mcp.CallToolRequest, _ workspaceParams) (*mcp.CallToolResult, any, error) {
	hst, workspace, cfgPath := h.session()
	if workspace == "" {
		return errorResult("no workspace root is known; pass repository_path to git_run instead")
	}

	rec, err := run(ctx, hst, config.LaunchConfig{
		RepositoryPath: workspace,
		GitArgs:        []string{"status", "--branch", "--porcelain=v1"},
	})
	if err != nil {
		return errorResult(err.Error())
	}
	if !rec.Result.Success {
		msg := strings.TrimSpace(rec.Result.Stderr)
		if rec.Result.Error != nil {
			msg = *rec.Result.Error
		}
		return errorResult(fmt.Sprintf("%s is not a usable git repository: %s", workspace, msg))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Workspace: %s\n", workspace)
	if cfgPath != "" {
		fmt.Fprintf(&b, "Config: %s\n", cfgPath)
	} else {
		fmt.Fprintln(&b, "Config: (defaults)")
	}

	branch, changes := parseStatus(rec.Result.Stdout)
	fmt.Fprintf(&b, "Branch: %s\n", branch)
	fmt.Fprintln(&b)
	if len(changes) == 0 {
		fmt.Fprintln(&b, "Working tree clean.")
	} else {
		fmt.Fprintf(&b, "Changes (%d):\n", len(changes))
		for _, c := range changes {
			fmt.Fprintf(&b, "  %s\n", c)
		}
	}
	fmt.Fprintf(&b, "\nRun: %s\n", rec.ID)
	return textResult(b.String())
}

// parseStatus splits `git status --branch --porcelain=v1` output into the
// branch header and the change lines.
func parseStatus(out string) (branch string, changes []string) {
	branch = "(unknown)"
	for _, line := range strings.Split(out, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "## "):
			branch = strings.TrimPrefix(line, "## ")
		default:
			changes = append(changes, line)
		}
	}
	return branch, changes
}
