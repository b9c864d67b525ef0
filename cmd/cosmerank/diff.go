package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/cosmerank/internal/ranking"
)

var (
	diffOut  string
	diffFrom string
	diffTo   string
)

// diffCmd creates the "diff" subcommand.
func diffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff [snapshot.csv...]",
		Short: "Compare weekly snapshots and write rank movement",
		Long: `Load two or more weekly snapshot CSVs, order them by week number and
compare each consecutive pair on (category_id, ranking_type, group_type,
group_value, product_id). Each row is tagged new, dropped, same, up or down.

With --from and --to only that pair is written, e.g.
  cosmerank diff --from week2 --to week3 week2_cosme.csv week3_cosme.csv`,
		Args: cobra.MinimumNArgs(2),
		RunE: runDiff,
	}

	cmd.Flags().StringVarP(&diffOut, "out", "o", "", "delta CSV path (default <dir of last file>/<from>to<to>_cosme_rank.csv)")
	cmd.Flags().StringVar(&diffFrom, "from", "", "only keep rows from this snapshot label")
	cmd.Flags().StringVar(&diffTo, "to", "", "only keep rows to this snapshot label")

	return cmd
}

func runDiff(cmd *cobra.Command, args []string) error {
	if (diffFrom == "") != (diffTo == "") {
		return fmt.Errorf("--from and --to must be given together")
	}

	panel, err := ranking.LoadAndPrepare(args)
	if err != nil {
		return err
	}
	labels := panel.Snapshots()
	if len(labels) < 2 {
		return fmt.Errorf("need at least two snapshots with rows, got %v", labels)
	}
	rows := ranking.BetweenSnapshots(panel)
	if diffFrom != "" {
		rows = ranking.Filter(rows, diffFrom, diffTo)
		if len(rows) == 0 {
			return fmt.Errorf("no consecutive snapshot pair %s -> %s in %v", diffFrom, diffTo, labels)
		}
	}

	out := diffOut
	if out == "" {
		from, to := labels[0], labels[len(labels)-1]
		if diffFrom != "" {
			from, to = diffFrom, diffTo
		}
		out = filepath.Join(filepath.Dir(args[len(args)-1]), fmt.Sprintf("%sto%s_cosme_rank.csv", from, to))
	}

	if err := ranking.WriteDeltaCSV(out, rows); err != nil {
		return fmt.Errorf("write delta: %w", err)
	}

	ranking.RenderSummary(os.Stdout, ranking.Summarize(rows))
	fmt.Printf("saved: %s\n", out)
	return nil
}
