// Command gitcmd runs git commands through the event-driven actor, either
// once from the command line or as tools of an MCP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/gitcmd"
	"github.com/deixis/gitcmd/internal/config"
	"github.com/deixis/gitcmd/internal/host"
	"github.com/deixis/gitcmd/internal/logging"
	"github.com/deixis/gitcmd/internal/metrics"
	gitmcp "github.com/deixis/gitcmd/internal/mcp"
	"github.com/deixis/gitcmd/internal/report"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("gitcmd: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = runMain(args)
	case "runs":
		err = runsMain(args)
	case "mcp":
		err = mcpMain(args)
	case "version":
		fmt.Println(gitcmd.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "gitcmd: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: gitcmd <command> [flags]

Commands:
  run         Run one git command: gitcmd run [flags] -- <git args>
  runs        List recent runs (store.backend: sqlite)
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "gitcmd <command> -h" for command-specific flags.`)
}

// --- run ---

func runMain(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	repo := fs.String("C", ".", "repository passed to git -C")
	timeout := fs.Uint("timeout", config.DefaultTimeoutSeconds, "seconds before the run times out (0 disables)")
	dir := fs.String("dir", "", "working directory for git (default: current directory)")
	jsonFlag := fs.Bool("json", false, "output the result record as JSON")
	verbose := fs.Bool("v", false, "verbose output (debug logging)")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("run: no git arguments given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	h, _, closeStore, err := newHost(*verbose)
	if err != nil {
		return err
	}
	defer closeStore()

	secs := uint32(*timeout)
	lc := config.LaunchConfig{
		RepositoryPath: *repo,
		GitArgs:        fs.Args(),
		TimeoutSeconds: &secs,
	}
	if *dir != "" {
		lc.WorkingDirectory = dir
	}
	data, err := json.Marshal(lc)
	if err != nil {
		return err
	}

	rec, err := h.Run(ctx, data)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}
	} else {
		printRecord(rec, *verbose)
	}

	if !rec.Result.Success {
		closeStore()
		os.Exit(1)
	}
	return nil
}

func printRecord(rec *report.Record, verbose bool) {
	res := rec.Result
	fmt.Print(res.Stdout)
	fmt.Fprint(os.Stderr, res.Stderr)

	if res.Error != nil {
		fmt.Fprintf(os.Stderr, "gitcmd: %s\n", *res.Error)
	}
	if !verbose {
		return
	}

	status := "ok"
	if !res.Success {
		status = "FAIL"
	}
	elapsed := "?"
	if res.ExecutionTimeMs != nil {
		elapsed = fmt.Sprintf("%dms", *res.ExecutionTimeMs)
	}
	code := "none"
	if res.ExitCode != nil {
		code = fmt.Sprint(*res.ExitCode)
	}
	fmt.Fprintf(os.Stderr, "%s  %s  exit=%s  %s  run=%s\n", status, strings.Join(res.Command, " "), code, elapsed, rec.ID)
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(gitmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return serve(ctx, *httpAddr)
}

func serve(ctx context.Context, httpAddr string) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	h, logger, closeStore, err := newHost(false)
	if err != nil {
		return err
	}
	defer closeStore()

	server := gitmcp.NewServer(h, h.Store, workspace, logger)

	if httpAddr != "" {
		return serveHTTP(ctx, server, h.Metrics, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

// serveHTTP serves MCP on / and the run metrics on /metrics.
func serveHTTP(ctx context.Context, server *mcpsdk.Server, m *metrics.Metrics, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/", mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	))
	m.Mount(mux)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- runs ---

func runsMain(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	n := fs.Int("n", 10, "number of runs to list")
	_ = fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StoreBackend() != config.StoreSQLite {
		return fmt.Errorf("runs: listing needs store.backend: %s in %s", config.StoreSQLite, config.FileName)
	}
	if cfg.Store.Dir == "" {
		return fmt.Errorf("runs: store.dir must be set to list past runs")
	}

	db, err := report.OpenSQLiteStore(cfg.Store.Dir)
	if err != nil {
		return err
	}
	defer db.Close()

	ids, err := db.Recent(*n)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := db.Load(id)
		if err != nil {
			return err
		}
		status := "ok"
		if !rec.Result.Success {
			status = "FAIL"
		}
		fmt.Printf("%s  %s  %-4s  %s\n", rec.ID, rec.StartedAt.Format(time.RFC3339), status, strings.Join(rec.Result.Command, " "))
	}
	return nil
}

// --- shared ---

func loadConfig() (*config.Config, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return loaded.Config, nil
}

// newHost loads .gitcmd from the current directory upward and builds the
// logger, store and host it describes. Logs always go to stderr. The
// returned func releases the store.
func newHost(verbose bool) (*host.Host, *slog.Logger, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	} else if level == "" {
		level = "warn"
	}
	logger := logging.New(os.Stderr, cfg.Log.Format, level)
	slog.SetDefault(logger)

	var (
		back       report.Store
		closeStore = func() {}
	)
	switch cfg.StoreBackend() {
	case config.StoreSQLite:
		db, err := report.OpenSQLiteStore(cfg.Store.Dir)
		if err != nil {
			return nil, nil, nil, err
		}
		back = db
		closeStore = func() { _ = db.Close() }
	default:
		back = report.NewDiskStore(cfg.Store.Dir)
	}

	store := report.NewLRUStore(cfg.StoreCapacity(), back)
	return host.New(cfg, store, logger), logger, closeStore, nil
}
