package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fseqgen/internal/batch"
	"fseqgen/internal/codec"
	"fseqgen/internal/export"
	"fseqgen/internal/logging"
	"fseqgen/internal/session"
)

type targetFlags struct {
	format      string
	compression string
	level       int
	sparse      bool
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", "", "Destination version: 2.2, 2.0 or 1 (default from export.format)")
	cmd.Flags().StringVar(&f.compression, "compression", "", "zstd, zlib or none (default from export.compression)")
	cmd.Flags().IntVar(&f.level, "level", codec.DefaultLevel, "Compression level; -99 uses the codec default")
	cmd.Flags().BoolVar(&f.sparse, "sparse", false, "Record sparse ranges (and, for export, keep only --start/--count)")
}

// apply layers explicitly set flags over the configured defaults.
func (f *targetFlags) apply(cmd *cobra.Command, target export.Target) (export.Target, error) {
	if cmd.Flags().Changed("format") {
		major, minor := codec.ParseFormat(f.format)
		if major != 1 && major != 2 {
			return target, fmt.Errorf("--format %q must name version 1 or 2", f.format)
		}
		target.FormatVersion, target.FormatMinor = major, minor
	}
	if cmd.Flags().Changed("compression") {
		compression, err := codec.ParseCompression(f.compression)
		if err != nil {
			return target, fmt.Errorf("--compression: %w", err)
		}
		target.Compression = compression
	}
	if cmd.Flags().Changed("level") {
		target.CompressionLevel = f.level
	}
	if cmd.Flags().Changed("sparse") {
		target.Sparse = f.sparse
	}
	return target, nil
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var flags targetFlags
	var dest, sourceDir, controller string
	var files, exclude []string
	var start, count uint32

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the selected sequences with one target",
		Long: "Export copies every selected sequence in the show folder to --dest.\n" +
			"With --sparse only --count channels starting at 0-based --start are kept;\n" +
			"--controller fills --start and --count from the topology.",
		RunE: func(cmd *cobra.Command, args []string) error {
			progress := newBatchProgress(cmd.ErrOrStderr(), isTerminal(cmd.ErrOrStderr()))
			s, err := ctx.ensureSession(progress.report)
			if err != nil {
				return err
			}
			defer ctx.close()

			if err := prepareSources(s, sourceDir, files, exclude); err != nil {
				return err
			}
			target, err := flags.apply(cmd, s.DefaultTarget())
			if err != nil {
				return err
			}
			result, runErr := s.ExportSingle(cmd.Context(), session.SingleOptions{
				DestDir:    dest,
				Target:     target,
				Start:      start,
				Count:      count,
				Controller: controller,
			})
			progress.finish()
			return finishRun(cmd.OutOrStdout(), result, runErr)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "Destination directory (default paths.output_dir)")
	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "Show folder to scan (default paths.source_dir)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Export only this sequence (repeatable)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "Skip this sequence (repeatable)")
	cmd.Flags().Uint32Var(&start, "start", 0, "First channel offset (0-based) kept with --sparse")
	cmd.Flags().Uint32Var(&count, "count", 0, "Number of channels kept with --sparse")
	cmd.Flags().StringVar(&controller, "controller", "", "Take --start and --count from this controller")
	return cmd
}

func newFleetCommand(ctx *commandContext) *cobra.Command {
	var flags targetFlags
	var dest, sourceDir, topologyPath string
	var files, exclude []string

	cmd := &cobra.Command{
		Use:   "fleet",
		Short: "Export every selected sequence once per controller",
		Long: "Fleet writes each controller's channel block of every selected sequence.\n" +
			"With more than one controller, output goes to --dest/<controller>/<file>.",
		RunE: func(cmd *cobra.Command, args []string) error {
			progress := newBatchProgress(cmd.ErrOrStderr(), isTerminal(cmd.ErrOrStderr()))
			s, err := ctx.ensureSession(progress.report)
			if err != nil {
				return err
			}
			defer ctx.close()

			if err := prepareSources(s, sourceDir, files, exclude); err != nil {
				return err
			}
			template, err := flags.apply(cmd, s.DefaultTarget())
			if err != nil {
				return err
			}
			result, runErr := s.ExportFleet(cmd.Context(), session.FleetOptions{
				DestDir:  dest,
				Topology: topologyPath,
				Template: template,
			})
			progress.finish()
			return finishRun(cmd.OutOrStdout(), result, runErr)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "Destination directory (default paths.output_dir)")
	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "Show folder to scan (default paths.source_dir)")
	cmd.Flags().StringVarP(&topologyPath, "topology", "t", "", "Controller file (default paths.topology_file or the one in the show folder)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Export only this sequence (repeatable)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "Skip this sequence (repeatable)")
	return cmd
}

func prepareSources(s *session.Session, dir string, include, exclude []string) error {
	if _, err := s.RefreshFiles(dir); err != nil {
		return err
	}
	return s.Select(include, exclude)
}

func finishRun(out io.Writer, result batch.Result, runErr error) error {
	if failures := result.Failures(); len(failures) > 0 {
		rows := make([][]string, 0, len(failures))
		for _, item := range failures {
			rows = append(rows, []string{
				orDash(item.Controller),
				item.Source,
				logging.ErrorKind(item.Err).Value.String(),
				item.Err.Error(),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"Controller", "Source", "Kind", "Error"}, rows, nil))
	}

	skipped := result.Total - len(result.Items)
	summary := fmt.Sprintf("%d exported, %d failed", result.Succeeded(), result.Failed())
	if skipped > 0 {
		summary += fmt.Sprintf(", %d skipped", skipped)
	}
	if result.RunID != "" && result.Total > 0 {
		summary += fmt.Sprintf(" (run %s)", shortID(result.RunID))
	}
	fmt.Fprintln(out, summary)
	if result.Total == 0 && runErr == nil {
		fmt.Fprintln(out, "Nothing to export: no sequences selected or no controllers loaded")
	}
	if result.Canceled {
		fmt.Fprintln(out, "Export canceled; completed files were kept")
	}
	return runErr
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
