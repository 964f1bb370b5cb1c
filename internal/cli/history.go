package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/webprobe/internal/digest"
	"github.com/ibeckermayer/webprobe/internal/probe"
	"github.com/ibeckermayer/webprobe/internal/store"
)

func newHistoryCommand(gs *globalState) *cobra.Command {
	var (
		limit    int
		asJSON   bool
		asText   bool
		htmlPath string
		open     bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent runs, or show one run in full",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(gs, nil)
			if err != nil {
				return err
			}
			h, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer h.Close()

			if len(args) == 1 {
				id, err := h.ResolveID(args[0])
				if err != nil {
					return fmt.Errorf("run %s: %w", args[0], err)
				}
				r, err := h.GetRun(id)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(gs, r)
				}
				printSummary(gs.stdout, r)
				return nil
			}

			runs, err := h.RecentRuns(limit)
			if err != nil {
				return err
			}
			if htmlPath != "" {
				return writeDigest(gs, runs, limit, htmlPath, open)
			}
			if asText {
				return printDigest(gs, runs, limit)
			}
			if asJSON {
				return printJSON(gs, runs)
			}
			printRuns(gs, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&asText, "text", false, "print a plain-text digest with pass rate instead of a table")
	cmd.Flags().StringVar(&htmlPath, "html", "", "render the listed runs as an HTML page at this path")
	cmd.Flags().BoolVar(&open, "open", false, "open the HTML page in the default browser")

	return cmd
}

func buildDigest(runs []store.RunSummary, limit int) (*digest.Digest, error) {
	b, err := digest.New(limit)
	if err != nil {
		return nil, err
	}
	return b.Build(runs)
}

func printDigest(gs *globalState, runs []store.RunSummary, limit int) error {
	if len(runs) == 0 {
		fmt.Fprintln(gs.stdout, "No runs recorded yet.")
		return nil
	}
	d, err := buildDigest(runs, limit)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(gs.stdout, d.PlainBody)
	return err
}

func writeDigest(gs *globalState, runs []store.RunSummary, limit int, path string, open bool) error {
	d, err := buildDigest(runs, limit)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(gs.fs, path, []byte(d.HTMLBody), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	gs.logger.WithField("path", path).Infof("Wrote history for %d runs", len(d.RunIDs))

	if open {
		return browser.OpenFile(path)
	}
	return nil
}

func printJSON(gs *globalState, v any) error {
	enc := json.NewEncoder(gs.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRuns(gs *globalState, runs []store.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(gs.stdout, "No runs recorded yet.")
		return
	}

	tw := tabwriter.NewWriter(gs.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tCHECKS\tDURATION\tID\tURL")
	for _, r := range runs {
		// pad before coloring, escape codes would throw off the column width
		status := statusColor(r.Status).Sprintf("%-6s", r.Status)
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			status,
			r.Passed, r.Passed+r.Failed+r.Skipped,
			r.Duration.Round(10*time.Millisecond),
			shortID(r.ID),
			r.URL,
		)
		if r.Status == probe.StatusError && r.Error != "" {
			fmt.Fprintf(tw, "\t\t\t\t\t%s\n", dimColor.Sprint(r.Error))
		}
	}
	tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
