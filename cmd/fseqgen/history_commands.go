package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fseqgen/internal/history"
)

func (c *commandContext) historyStore() (*history.Store, error) {
	s, err := c.ensureSession(nil)
	if err != nil {
		return nil, err
	}
	store := s.History()
	if store == nil {
		return nil, errors.New("export history is disabled or unavailable (see [history] in the config)")
	}
	return store, nil
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent export runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.historyStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No export runs recorded")
				return nil
			}
			fmt.Fprintln(out, runsTable(runs, isTerminal(out)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func runsTable(runs []history.Run, colorize bool) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.Mode,
			statusLabel(string(r.Status), colorize),
			fmt.Sprintf("%d/%d", r.Succeeded, r.Total),
			strconv.Itoa(r.Failed),
			formatWhen(r.StartedAt),
			formatDuration(r.Duration()),
			r.DestDir,
		})
	}
	return renderTable(
		[]string{"Run", "Mode", "Status", "Exported", "Failed", "Started", "Took", "Destination"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight, alignLeft},
	)
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the exports of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.historyStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			items, err := store.Items(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, struct {
					Run   *history.Run   `json:"run"`
					Items []history.Item `json:"items"`
				}{run, items})
			}
			out := cmd.OutOrStdout()
			writeRunDetail(out, *run, items, isTerminal(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func writeRunDetail(out io.Writer, run history.Run, items []history.Item, colorize bool) {
	fmt.Fprintf(out, "Run:          %s\n", run.ID)
	fmt.Fprintf(out, "Mode:         %s\n", run.Mode)
	fmt.Fprintf(out, "Status:       %s\n", statusLabel(string(run.Status), colorize))
	fmt.Fprintf(out, "Destination:  %s\n", run.DestDir)
	fmt.Fprintf(out, "Started:      %s (%s)\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"), formatWhen(run.StartedAt))
	fmt.Fprintf(out, "Exported:     %d of %d\n", run.Succeeded, run.Total)
	if run.Error != "" {
		fmt.Fprintf(out, "Error:        %s\n", firstLine(run.Error))
	}
	if run.TargetJSON != "" {
		fmt.Fprintf(out, "Target:       %s\n", run.TargetJSON)
	}
	if len(items) == 0 {
		return
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.Itoa(item.Seq),
			orDash(item.Controller),
			item.DestPath,
			statusLabel(string(item.Status), colorize),
			formatDuration(item.Duration),
			orDash(item.ErrorKind),
		})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Controller", "Destination", "Status", "Took", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
