package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"fseqgen/internal/config"
	"fseqgen/internal/testsupport"
	"fseqgen/internal/topology"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	t.Setenv("FSEQGEN_OUTPUT_DIR", "")
	t.Setenv("GITHUB_TOKEN", "")
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))

	testsupport.WriteSequence(t, filepath.Join(cfg.Paths.SourceDir, "show.fseq"), testsupport.Sequence{Channels: 100, Frames: 4})
	testsupport.WriteSequence(t, filepath.Join(cfg.Paths.SourceDir, "encore.fseq"), testsupport.Sequence{Channels: 100, Frames: 2})
	testsupport.WriteTopology(t, filepath.Join(cfg.Paths.SourceDir, topology.DefaultFileName),
		testsupport.ControllerSpec{Name: "Garage", IP: "192.168.1.50", Networks: []int{40}},
		testsupport.ControllerSpec{Name: "Tree", IP: "192.168.1.51", Networks: []int{60}},
	)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "fseqgen.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// run executes one CLI invocation against the environment's config.
func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}
