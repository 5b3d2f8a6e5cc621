package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docgate/internal/config"
	"docgate/internal/engine"
	"docgate/internal/engine/enginetest"
	"docgate/internal/gateway"
	"docgate/internal/logging"
	"docgate/internal/rpcapi"
	"docgate/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	fake       *enginetest.Engine
	server     *rpcapi.Server
	addr       string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedEngine("exit 0"))
	cfg.Server.Port = 2013
	cfg.Engine.Port = 2012

	configPath := filepath.Join(homeDir, ".config", "docgate", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	fake := enginetest.New()
	store := testsupport.MustOpenJournal(t, cfg)
	provider := gateway.NewSharedProvider(func(context.Context) (engine.Session, error) { return fake, nil }, logging.NewNop())
	gw, err := gateway.New(gateway.Options{Provider: provider, Journal: store, Connection: "test"}, logging.NewNop())
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := rpcapi.NewServer(ctx, "127.0.0.1:0", gw, store, logging.NewNop())
	if err != nil {
		cancel()
		t.Skipf("loopback listener unavailable: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = gw.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		fake:       fake,
		server:     srv,
		addr:       srv.Addr(),
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, addr, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if addr != "" {
		flags = append(flags, "--addr", addr)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[server]\nport = %d\n\n[engine]\nagent_command = %q\nexecutable = %q\nport = %d\n\n[paths]\nstate_dir = %q\nlog_dir = %q\n",
		cfg.Server.Port,
		cfg.Engine.AgentCommand,
		cfg.Engine.Executable,
		cfg.Engine.Port,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
