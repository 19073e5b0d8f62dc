package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fseqgen/internal/channels"
	"fseqgen/internal/config"
	"fseqgen/internal/fseq"
	"fseqgen/internal/library"
	"fseqgen/internal/topology"
)

func newControllersCommand(ctx *commandContext) *cobra.Command {
	var topologyPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "controllers",
		Short: "List the controllers in the topology and their channel blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.ensureSession(nil)
			if err != nil {
				return err
			}
			defer ctx.close()

			controllers, err := s.LoadTopology(topologyPath)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, controllers)
			}
			out := cmd.OutOrStdout()
			if len(controllers) == 0 {
				fmt.Fprintf(out, "No controllers with channels in %s\n", s.TopologyPath())
				return nil
			}
			fmt.Fprintln(out, controllersTable(controllers))
			fmt.Fprintf(out, "%d controllers, %s channels\n", len(controllers), formatCount(topology.TotalChannels(controllers)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&topologyPath, "topology", "t", "", "Controller file (default paths.topology_file)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func controllersTable(controllers []topology.Controller) string {
	rows := make([][]string, 0, len(controllers))
	for _, c := range controllers {
		rows = append(rows, []string{
			c.Name,
			orDash(c.Address),
			strconv.FormatUint(c.StartChannel, 10),
			strconv.FormatUint(c.ChannelCount, 10),
			strconv.FormatUint(c.EndChannel(), 10),
		})
	}
	return renderTable(
		[]string{"Name", "Address", "Start", "Channels", "End"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
}

func newFilesCommand(ctx *commandContext) *cobra.Command {
	var sourceDir string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List the sequences in the show folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.ensureSession(nil)
			if err != nil {
				return err
			}
			defer ctx.close()

			entries, err := s.RefreshFiles(sourceDir)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No sequences in %s\n", s.SourceDir())
				return nil
			}
			fmt.Fprintln(out, filesTable(entries))
			if controllers := s.Controllers(); len(controllers) > 0 {
				fmt.Fprintf(out, "%d controllers loaded from %s\n", len(controllers), s.TopologyPath())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "Show folder to scan (default paths.source_dir)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func filesTable(entries []library.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Name, formatBytes(e.Size), formatWhen(e.ModTime)})
	}
	return renderTable([]string{"File", "Size", "Modified"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft})
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "info <file>",
		Short:       "Print the header of a sequence file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			header, err := fseq.Inspect(path)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), headerSummary(header))
			return nil
		},
	}
}

func headerSummary(h fseq.Header) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Version:      %d.%d\n", h.Major, h.Minor)
	fmt.Fprintf(&b, "Channels:     %s\n", formatCount(uint64(h.ChannelCount)))
	fmt.Fprintf(&b, "Frames:       %s\n", formatCount(uint64(h.FrameCount)))
	fmt.Fprintf(&b, "Step time:    %d ms\n", h.StepTimeMS)
	fmt.Fprintf(&b, "Total time:   %s\n", h.TotalTime())
	fmt.Fprintf(&b, "Data offset:  %d\n", h.DataOffset)
	if h.Major >= 2 {
		fmt.Fprintf(&b, "Compression:  %s\n", h.Compression)
		fmt.Fprintf(&b, "Blocks:       %d\n", len(h.Blocks))
		fmt.Fprintf(&b, "Unique ID:    %d\n", h.UniqueID)
	}
	if len(h.SparseRanges) > 0 {
		fmt.Fprintf(&b, "Sparse ranges (%s channels):\n", formatCount(channels.Total(h.SparseRanges)))
		for _, r := range h.SparseRanges {
			fmt.Fprintf(&b, "  start %d, length %d\n", r.Offset, r.Length)
		}
	}
	if len(h.VariableHeaders) > 0 {
		b.WriteString("Variable headers:\n")
		for _, v := range h.VariableHeaders {
			fmt.Fprintf(&b, "  %s: %s\n", v.Code, v.Value())
		}
	}
	return b.String()
}
