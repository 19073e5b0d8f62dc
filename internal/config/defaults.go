package config

import "os"

const (
	defaultConfigPath       = "~/.config/fseqgen/config.toml"
	defaultSourceDir        = "~"
	defaultOutputDir        = "~/fseqgen"
	defaultTopologyName     = "xlights_networks.xml"
	defaultLogDir           = "~/.local/share/fseqgen/logs"
	defaultStateDir         = "~/.local/share/fseqgen"
	defaultFormat           = "2.2"
	defaultCompression      = "zstd"
	defaultCompressionLevel = -99
	defaultSourcePattern    = "*.fseq"
	defaultReleasesURL      = "https://api.github.com/repos/computergeek1507/controller_gen/releases"
	defaultBuildTag         = "ci_win"
	defaultUpdateTimeout    = 30
	defaultHistoryRetention = 90
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SourceDir:   defaultSourceDir,
			OutputDir:   defaultOutputDir,
			LogDir:      defaultLogDir,
			StateDir:    defaultStateDir,
			DownloadDir: os.TempDir(),
		},
		Export: Export{
			Format:           defaultFormat,
			Compression:      defaultCompression,
			CompressionLevel: defaultCompressionLevel,
			SourcePattern:    defaultSourcePattern,
		},
		Update: Update{
			Enabled:        true,
			ReleasesURL:    defaultReleasesURL,
			BuildTag:       defaultBuildTag,
			TimeoutSeconds: defaultUpdateTimeout,
		},
		History: History{
			Enabled:       true,
			RetentionDays: defaultHistoryRetention,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
