package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/yeisme/yukumo/pkg/internal/model"
	"github.com/yeisme/yukumo/pkg/internal/reconcile"
	"github.com/yeisme/yukumo/pkg/internal/types"
)

func printJSON(w io.Writer, v any) error {
	b, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))

	return err
}

// printSync 每个文件一行，最后一行为汇总.
func printSync(w io.Writer, resp types.SyncResponse) {
	if resp.DryRun {
		for _, d := range resp.Decisions {
			line := fmt.Sprintf("%-8s %s", d.Action, d.Path)
			if d.Reason != "" {
				line += " (" + d.Reason + ")"
			}

			if d.Error != "" {
				line += ": " + d.Error
			}

			fmt.Fprintln(w, line)
		}

		fmt.Fprintf(w, "dry run: %d file(s) examined\n", len(resp.Decisions))

		return
	}

	for _, o := range resp.Outcomes {
		line := fmt.Sprintf("%-16s %s", o.Status, o.Path)

		switch {
		case o.Error != "":
			line += ": " + o.Error
		case o.FileURL != "" && o.Status != string(reconcile.StatusSkipped):
			line += " -> " + o.FileURL
		}

		fmt.Fprintln(w, line)
	}

	parts := make([]string, 0, len(reconcile.Statuses))
	for _, s := range reconcile.Statuses {
		parts = append(parts, fmt.Sprintf("%s=%d", s, resp.Counts[s.String()]))
	}

	fmt.Fprintf(w, "run %s: %s\n", resp.RunID, strings.Join(parts, " "))
}

func printRecords(w io.Writer, recs []model.FileRecord) {
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.FileName, r.FileURL, r.OriginFilePath)
	}
}
