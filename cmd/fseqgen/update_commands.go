package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fseqgen/internal/update"
)

func newUpdateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check for and download newer releases",
	}
	cmd.AddCommand(newUpdateCheckCommand(ctx))
	cmd.AddCommand(newUpdateDownloadCommand(ctx))
	return cmd
}

func (c *commandContext) checker() (*update.Checker, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Update.Enabled {
		return nil, fmt.Errorf("update checks are disabled (set update.enabled in %s)", c.configPath)
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return update.NewChecker(cfg, version, logger), nil
}

func newUpdateCheckCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer release is available",
		RunE: func(cmd *cobra.Command, args []string) error {
			checker, err := ctx.checker()
			if err != nil {
				return err
			}
			info, err := checker.Check(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, info)
			}
			fmt.Fprint(cmd.OutOrStdout(), updateSummary(info))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func updateSummary(info update.Info) string {
	var b strings.Builder
	if !info.Available {
		fmt.Fprintf(&b, "fseqgen %s is up to date (latest %s)\n", info.Current, info.Latest)
		return b.String()
	}
	fmt.Fprintf(&b, "fseqgen %s is available (running %s)\n", info.Latest, info.Current)
	fmt.Fprintf(&b, "Asset: %s\n", info.AssetName)
	if info.Date != "" {
		if t, err := time.Parse(time.RFC3339, info.Date); err == nil {
			fmt.Fprintf(&b, "Published: %s\n", formatWhen(t))
		} else {
			fmt.Fprintf(&b, "Published: %s\n", info.Date)
		}
	}
	if changes := strings.TrimSpace(info.Changes); changes != "" {
		fmt.Fprintf(&b, "\n%s\n", changes)
	}
	b.WriteString("\nRun `fseqgen update download` to fetch it.\n")
	return b.String()
}

func newUpdateDownloadCommand(ctx *commandContext) *cobra.Command {
	var dir string
	var force bool
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the newest release asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			checker, err := ctx.checker()
			if err != nil {
				return err
			}
			info, err := checker.Check(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !info.Available && !force {
				fmt.Fprintf(out, "fseqgen %s is up to date; use --force to download %s anyway\n", info.Current, info.Latest)
				return nil
			}
			if strings.TrimSpace(dir) == "" {
				dir = ctx.config.Paths.DownloadDir
			}
			progress := newDownloadBar(cmd.ErrOrStderr(), isTerminal(cmd.ErrOrStderr()), info.AssetName)
			path, err := checker.Download(cmd.Context(), info.URL, dir, progress)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Downloaded %s to %s\n", info.AssetName, path)
			fmt.Fprintln(out, "Run the installer manually to upgrade.")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Download directory (default paths.download_dir)")
	cmd.Flags().BoolVar(&force, "force", false, "Download even when no newer release exists")
	return cmd
}
