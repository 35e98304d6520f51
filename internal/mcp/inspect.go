package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/gitcmd/internal/report"
)

type inspectParams struct {
	RunID  string `json:"run_id" jsonschema:"the run ID from a git_run result"`
	Stream string `json:"stream,omitempty" jsonschema:"stdout, stderr, or all. Default: all."`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	stream, ok := report.ParseStream(params.Stream)
	if !ok {
		return errorResult(fmt.Sprintf("unknown stream %q: use stdout, stderr, or all", params.Stream))
	}

	rec, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}
	return textResult(formatInspect(rec, stream))
}

func formatInspect(rec *report.Record, stream report.Stream) string {
	var b strings.Builder

	status := "FAIL"
	if rec.Result.Success {
		status = "PASS"
	}
	fmt.Fprintf(&b, "Run: %s (%s)\n", rec.ID, status)
	fmt.Fprintf(&b, "Command: %s\n", strings.Join(rec.Result.Command, " "))
	fmt.Fprintf(&b, "Started: %s\n", rec.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "Stream: %s\n", stream)
	fmt.Fprintln(&b)

	out := rec.Output(stream)
	if out == "" {
		fmt.Fprintln(&b, "(no output)")
		return b.String()
	}
	b.WriteString(out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Fprintln(&b)
	}
	return b.String()
}
