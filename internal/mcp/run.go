package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/gitcmd/internal/config"
	"github.com/deixis/gitcmd/internal/host"
	"github.com/deixis/gitcmd/internal/report"
)

// excerptLines bounds how much of a stream git_run echoes back.
const excerptLines = 40

type runParams struct {
	RepositoryPath   string   `json:"repository_path,omitempty" jsonschema:"path of the repository passed to git -C. Defaults to the workspace root."`
	GitArgs          []string `json:"git_args" jsonschema:"arguments after git -C <repository_path>, e.g. [\"status\", \"--porcelain\"]"`
	TimeoutSeconds   *uint32  `json:"timeout_seconds,omitempty" jsonschema:"seconds before the run fails with a timeout. Default 30; 0 disables the timeout."`
	WorkingDirectory *string  `json:"working_directory,omitempty" jsonschema:"directory git is started in. Defaults to the server's working directory."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	hst, workspace, _ := h.session()

	lc := config.LaunchConfig{
		RepositoryPath:   params.RepositoryPath,
		GitArgs:          params.GitArgs,
		TimeoutSeconds:   params.TimeoutSeconds,
		WorkingDirectory: params.WorkingDirectory,
	}
	if lc.RepositoryPath == "" {
		lc.RepositoryPath = workspace
	}
	if lc.RepositoryPath == "" {
		return errorResult("repository_path is required when no workspace root is known")
	}

	rec, err := run(ctx, hst, lc)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatRun(rec))
}

// run drives one execution through the host.
func run(ctx context.Context, hst *host.Host, lc config.LaunchConfig) (*report.Record, error) {
	data, err := json.Marshal(lc)
	if err != nil {
		return nil, fmt.Errorf("encoding launch config: %w", err)
	}
	rec, err := hst.Run(ctx, data)
	switch {
	case errors.Is(err, host.ErrAbandoned):
		return nil, fmt.Errorf("git did not finish: %w", err)
	case err != nil:
		return nil, fmt.Errorf("git run failed: %w", err)
	}
	return rec, nil
}

func formatRun(rec *report.Record) string {
	var b strings.Builder
	res := rec.Result

	if res.Success {
		fmt.Fprintln(&b, "Status: PASS")
	} else {
		fmt.Fprintln(&b, "Status: FAIL")
	}
	fmt.Fprintf(&b, "Run: %s\n", rec.ID)
	fmt.Fprintf(&b, "Command: %s\n", strings.Join(res.Command, " "))
	if res.ExitCode != nil {
		fmt.Fprintf(&b, "Exit code: %d\n", *res.ExitCode)
	} else {
		fmt.Fprintln(&b, "Exit code: none")
	}
	if res.ExecutionTimeMs != nil {
		fmt.Fprintf(&b, "Elapsed: %dms\n", *res.ExecutionTimeMs)
	}
	if res.Error != nil {
		fmt.Fprintf(&b, "Error: %s\n", *res.Error)
	}
	fmt.Fprintln(&b)

	writeExcerpt(&b, "Stdout", res.Stdout)
	if !res.Success {
		writeExcerpt(&b, "Stderr", res.Stderr)
	}

	fmt.Fprintf(&b, "Inspect with git_inspect(run_id=%q, stream=\"stdout|stderr|all\").\n", rec.ID)
	return b.String()
}

func writeExcerpt(b *strings.Builder, name, text string) {
	if text == "" {
		fmt.Fprintf(b, "%s: (empty)\n\n", name)
		return
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	fmt.Fprintf(b, "%s (%d bytes):\n", name, len(text))
	for i, line := range lines {
		if i == excerptLines {
			fmt.Fprintf(b, "    ... %d more lines\n", len(lines)-excerptLines)
			break
		}
		fmt.Fprintf(b, "    %s\n", line)
	}
	fmt.Fprintln(b)
}
