package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"fseqgen/internal/codec"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	if err := c.validateUpdate(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.SourceDir) == "" {
		return errors.New("paths.source_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateExport() error {
	major, _ := codec.ParseFormat(c.Export.Format)
	if major != 1 && major != 2 {
		return fmt.Errorf("export.format %q must name version 1 or 2 (e.g. \"2.2\")", c.Export.Format)
	}
	if _, err := codec.ParseCompression(c.Export.Compression); err != nil {
		return fmt.Errorf("export.compression: %w", err)
	}
	if level := c.Export.CompressionLevel; level != codec.DefaultLevel && (level < -2 || level > 22) {
		return fmt.Errorf("export.compression_level %d must be -99 (codec default) or between -2 and 22", level)
	}
	if _, err := filepath.Match(c.Export.SourcePattern, "sample.fseq"); err != nil {
		return fmt.Errorf("export.source_pattern %q: %w", c.Export.SourcePattern, err)
	}
	return nil
}

func (c *Config) validateUpdate() error {
	if !c.Update.Enabled {
		return nil
	}
	parsed, err := url.Parse(c.Update.ReleasesURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("update.releases_url %q must be an absolute URL", c.Update.ReleasesURL)
	}
	if c.Update.TimeoutSeconds <= 0 {
		return errors.New("update.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}
