package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"fseqgen/internal/volumes"
)

func newVolumesCommand(ctx *commandContext) *cobra.Command {
	var all, asJSON bool

	cmd := &cobra.Command{
		Use:   "volumes",
		Short: "List mounted volumes an export can target",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			list, err := volumes.List(logger)
			if err != nil {
				return err
			}
			if !all {
				list = writableVolumes(list)
			}
			if asJSON {
				return writeJSON(cmd, list)
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No writable volumes mounted")
				return nil
			}
			fmt.Fprintln(out, volumesTable(list))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include read-only volumes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.AddCommand(newVolumesWatchCommand(ctx))
	return cmd
}

func writableVolumes(list []volumes.Volume) []volumes.Volume {
	out := make([]volumes.Volume, 0, len(list))
	for _, v := range list {
		if v.Writable {
			out = append(out, v)
		}
	}
	return out
}

func volumesTable(list []volumes.Volume) string {
	rows := make([][]string, 0, len(list))
	for _, v := range list {
		rows = append(rows, []string{
			orDash(v.Name),
			v.MountPoint,
			v.Device,
			v.FSType,
			formatBytes(int64(v.FreeBytes)),
			formatBytes(int64(v.TotalBytes)),
			yesNo(v.Removable),
			yesNo(v.Writable),
		})
	}
	return renderTable(
		[]string{"Name", "Mount", "Device", "FS", "Free", "Size", "Removable", "Writable"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func newVolumesWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Report SD cards and USB drives as they are inserted or removed",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var mu sync.Mutex
			watcher := volumes.NewWatcher(logger, func(_ context.Context, event volumes.Event) {
				mu.Lock()
				defer mu.Unlock()
				printVolumeEvent(out, event)
			})
			if err := watcher.Start(cmd.Context()); err != nil {
				return fmt.Errorf("watch volumes: %w", err)
			}
			defer watcher.Stop()

			fmt.Fprintln(out, "Watching for volumes; press Ctrl-C to stop")
			<-cmd.Context().Done()
			return nil
		},
	}
}

func printVolumeEvent(out io.Writer, event volumes.Event) {
	label := event.Label
	if label == "" {
		label = event.Device
	}
	switch event.Action {
	case "add":
		fmt.Fprintf(out, "Inserted %s (%s, %s); run `fseqgen volumes` once it is mounted\n", label, event.Device, orDash(event.FSType))
	case "remove":
		fmt.Fprintf(out, "Removed %s (%s)\n", label, event.Device)
	default:
		fmt.Fprintf(out, "%s %s\n", event.Action, event.Device)
	}
}
