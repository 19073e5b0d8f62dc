package testsupport

import (
	"path/filepath"
	"testing"

	"fseqgen/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// History is disabled and the updater points nowhere unless an option says
// otherwise.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SourceDir = filepath.Join(base, "shows")
	cfgVal.Paths.OutputDir = filepath.Join(base, "out")
	cfgVal.Paths.TopologyFile = filepath.Join(cfgVal.Paths.SourceDir, "xlights_networks.xml")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.History.Enabled = false
	cfgVal.Update.Enabled = false
	cfgVal.Update.Token = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithHistory enables the export ledger under the state directory.
func WithHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = true
	}
}

// WithReleasesURL enables the updater against url.
func WithReleasesURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Update.Enabled = true
		b.cfg.Update.ReleasesURL = url
	}
}

// WithExport overrides the export encoding defaults.
func WithExport(format, compression string, sparse bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Export.Format = format
		b.cfg.Export.Compression = compression
		b.cfg.Export.Sparse = sparse
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.SourceDir)
}
