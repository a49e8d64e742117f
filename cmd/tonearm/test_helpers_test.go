package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tonearm/internal/analysis"
	"tonearm/internal/config"
	"tonearm/internal/daemon"
	"tonearm/internal/logging"
	"tonearm/internal/pipeline"
	"tonearm/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	serverAddr string
	configPath string
	baseDir    string
}

func beatsDescriptor() pipeline.Descriptor {
	return pipeline.Descriptor{
		ID:     analysis.StageBeats,
		Phase:  "Beat detection",
		Detail: "Analyzing rhythm",
		Run: func(context.Context, *pipeline.RunContext, string) (any, error) {
			return &analysis.BeatAnalysis{Tempo: 120}, nil
		},
	}
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	registry, err := pipeline.NewRegistry(beatsDescriptor())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	pipe, err := pipeline.New(registry, logging.NewNop(), cfg.Pipeline.EventBuffer)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	d, err := daemon.New(cfg, store, logging.NewNop(), pipe)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("daemon has no API address")
	}

	configPath := filepath.Join(homeDir, ".config", "tonearm", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		serverAddr: addr,
		configPath: configPath,
		baseDir:    base,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
models_dir = %q
data_dir = %q
log_dir = %q
output_dir = %q
`, cfg.Paths.ModelsDir, cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.OutputDir)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, serverAddr, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := make([]string, 0, 4)
	if serverAddr != "" {
		flags = append(flags, "--server", serverAddr)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// closedServerAddr reserves a port and releases it so connections to the
// address are refused.
func closedServerAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	if err := listener.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}
	return addr
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
