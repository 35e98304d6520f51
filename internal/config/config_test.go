package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoad_FromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("version: 1\ndeadline: 2m\nmax_output: 512\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Path != filepath.Join(dir, FileName) {
		t.Errorf("Path = %q, want %q", res.Path, filepath.Join(dir, FileName))
	}
	if res.Config.Version != 1 {
		t.Errorf("Config.Version = %d, want 1", res.Config.Version)
	}
	if res.Config.Deadline() != 2*time.Minute {
		t.Errorf("Deadline() = %v, want 2m", res.Config.Deadline())
	}
	if res.Config.MaxOutputBytes() != 512 {
		t.Errorf("MaxOutputBytes() = %d, want 512", res.Config.MaxOutputBytes())
	}
}

func TestLoad_FromSubdirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("version: 2\nlog:\n  format: json\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Config.Version != 2 {
		t.Errorf("Config.Version = %d, want 2", res.Config.Version)
	}
	if res.Config.Log.Format != "json" || res.Config.Log.Level != "debug" {
		t.Errorf("Config.Log = %+v, want json/debug", res.Config.Log)
	}
}

func TestLoad_NoFile(t *testing.T) {
	dir := t.TempDir()

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Path != "" {
		// A .gitcmd further up the real filesystem would be picked up; only
		// assert defaults when nothing was found.
		t.Skipf("found unrelated %s at %s", FileName, res.Path)
	}
	if res.Config.Deadline() != DefaultDeadline {
		t.Errorf("Deadline() = %v, want %v", res.Config.Deadline(), DefaultDeadline)
	}
	if res.Config.StoreCapacity() != DefaultStoreCapacity {
		t.Errorf("StoreCapacity() = %d, want %d", res.Config.StoreCapacity(), DefaultStoreCapacity)
	}
	if res.Config.Clock() != ClockSystem {
		t.Errorf("Clock() = %q, want %q", res.Config.Clock(), ClockSystem)
	}
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("version: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestConfig_InvalidDeadlineFallsBack(t *testing.T) {
	cfg := &Config{RawDeadline: "soon"}
	if cfg.Deadline() != DefaultDeadline {
		t.Errorf("Deadline() = %v, want %v", cfg.Deadline(), DefaultDeadline)
	}
	cfg.RawDeadline = "-5s"
	if cfg.Deadline() != DefaultDeadline {
		t.Errorf("Deadline() = %v, want %v", cfg.Deadline(), DefaultDeadline)
	}
}

func TestConfig_ClockNone(t *testing.T) {
	cfg := &Config{RawClock: "none"}
	if cfg.Clock() != ClockNone {
		t.Errorf("Clock() = %q, want %q", cfg.Clock(), ClockNone)
	}
	cfg.RawClock = "atomic"
	if cfg.Clock() != ClockSystem {
		t.Errorf("Clock() = %q, want %q", cfg.Clock(), ClockSystem)
	}
}

func TestParseLaunch_Defaults(t *testing.T) {
	l, err := ParseLaunch([]byte(`{"repository_path":"/repo","git_args":["status","--porcelain"]}`))
	if err != nil {
		t.Fatalf("ParseLaunch: %v", err)
	}
	if l.TimeoutSeconds() != DefaultTimeoutSeconds {
		t.Errorf("TimeoutSeconds() = %d, want %d", l.TimeoutSeconds(), DefaultTimeoutSeconds)
	}
	if l.WorkingDirectory() != "" {
		t.Errorf("WorkingDirectory() = %q, want empty", l.WorkingDirectory())
	}
	want := []string{"git", "-C", "/repo", "status", "--porcelain"}
	if got := l.Command(); !slices.Equal(got, want) {
		t.Errorf("Command() = %v, want %v", got, want)
	}
}

func TestParseLaunch_ExplicitFields(t *testing.T) {
	l, err := ParseLaunch([]byte(`{"repository_path":"/r","git_args":[],"timeout_seconds":0,"working_directory":"/tmp"}`))
	if err != nil {
		t.Fatalf("ParseLaunch: %v", err)
	}
	if l.TimeoutSeconds() != 0 {
		t.Errorf("TimeoutSeconds() = %d, want 0", l.TimeoutSeconds())
	}
	if l.WorkingDirectory() != "/tmp" {
		t.Errorf("WorkingDirectory() = %q, want /tmp", l.WorkingDirectory())
	}
}

func TestParseLaunch_Missing(t *testing.T) {
	_, err := ParseLaunch(nil)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestParseLaunch_Undecodable(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`{"git_args":"status"}`,
		`{"timeout_seconds":-1}`,
		`null`,
		`{}`,
		`{"git_args":["status"]}`,
		`{"repository_path":"/r"}`,
		`{"repository_path":null,"git_args":["status"]}`,
		`{"repository_path":"/r","git_args":null}`,
	} {
		_, err := ParseLaunch([]byte(in))
		if !errors.Is(err, ErrConfig) {
			t.Errorf("ParseLaunch(%s) err = %v, want ErrConfig", in, err)
		}
	}
}

func TestLaunch_ArgsAreCopied(t *testing.T) {
	args := []string{"log"}
	l := NewLaunch(LaunchConfig{RepositoryPath: "/r", GitArgs: args})
	args[0] = "push"
	if got := l.GitArgs(); got[0] != "log" {
		t.Errorf("GitArgs()[0] = %q, want log", got[0])
	}
	l.GitArgs()[0] = "reset"
	if got := l.GitArgs(); got[0] != "log" {
		t.Errorf("GitArgs()[0] = %q after caller mutation, want log", got[0])
	}
}

func TestConfig_StoreBackend(t *testing.T) {
	cfg := &Config{}
	if got := cfg.StoreBackend(); got != StoreDisk {
		t.Errorf("StoreBackend() = %q, want %q", got, StoreDisk)
	}
	cfg.Store.Backend = "sqlite"
	if got := cfg.StoreBackend(); got != StoreSQLite {
		t.Errorf("StoreBackend() = %q, want %q", got, StoreSQLite)
	}
	cfg.Store.Backend = "s3"
	if got := cfg.StoreBackend(); got != StoreDisk {
		t.Errorf("StoreBackend() = %q for unknown backend, want %q", got, StoreDisk)
	}
}
