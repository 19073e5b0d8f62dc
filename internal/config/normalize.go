package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fseqgen/internal/codec"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeExport()
	c.normalizeUpdate()
	c.normalizeHistory()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.SourceDir) == "" {
		c.Paths.SourceDir = defaultSourceDir
	}
	if c.Paths.SourceDir, err = expandPath(strings.TrimSpace(c.Paths.SourceDir)); err != nil {
		return fmt.Errorf("paths.source_dir: %w", err)
	}
	if value, ok := os.LookupEnv("FSEQGEN_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = value
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TopologyFile) == "" {
		c.Paths.TopologyFile = filepath.Join(c.Paths.SourceDir, defaultTopologyName)
	}
	if c.Paths.TopologyFile, err = expandPath(strings.TrimSpace(c.Paths.TopologyFile)); err != nil {
		return fmt.Errorf("paths.topology_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = os.TempDir()
	}
	if c.Paths.DownloadDir, err = expandPath(strings.TrimSpace(c.Paths.DownloadDir)); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeExport() {
	c.Export.Format = strings.TrimSpace(c.Export.Format)
	if c.Export.Format == "" {
		c.Export.Format = defaultFormat
	}
	c.Export.Compression = strings.ToLower(strings.TrimSpace(c.Export.Compression))
	if parsed, err := codec.ParseCompression(c.Export.Compression); err == nil {
		c.Export.Compression = parsed.String()
	}
	c.Export.SourcePattern = strings.TrimSpace(c.Export.SourcePattern)
	if c.Export.SourcePattern == "" {
		c.Export.SourcePattern = defaultSourcePattern
	}
}

func (c *Config) normalizeUpdate() {
	c.Update.ReleasesURL = strings.TrimSpace(c.Update.ReleasesURL)
	if c.Update.ReleasesURL == "" {
		c.Update.ReleasesURL = defaultReleasesURL
	}
	c.Update.BuildTag = strings.TrimSpace(c.Update.BuildTag)
	if c.Update.BuildTag == "" {
		c.Update.BuildTag = defaultBuildTag
	}
	if c.Update.TimeoutSeconds <= 0 {
		c.Update.TimeoutSeconds = defaultUpdateTimeout
	}
	c.Update.Token = strings.TrimSpace(c.Update.Token)
	if c.Update.Token == "" {
		if value, ok := os.LookupEnv("GITHUB_TOKEN"); ok {
			c.Update.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeHistory() {
	if c.History.RetentionDays < 0 {
		c.History.RetentionDays = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
