package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/cosmerank/internal/jobs"
)

var (
	jobsTest    bool
	jobsCatalog string
)

// jobsCmd creates the "jobs" subcommand.
func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List the job catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := jobs.Select(jobsCatalog, jobsTest)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetStyle(table.StyleRounded)
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"category", "name", "ranking_type", "kind", "group", "target", "pages"})
			for _, j := range catalog.Jobs {
				t.AppendRow(table.Row{j.CategoryID, j.CategoryName, j.RankingType, j.Kind, j.GroupType, j.TargetN, len(j.URLs)})
			}
			t.AppendFooter(table.Row{"", "", "", "", "", "total", catalog.TotalPages()})
			t.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jobsTest, "test", false, "show the smoke catalog")
	cmd.Flags().StringVar(&jobsCatalog, "catalog", "", "job catalog YAML file")

	return cmd
}
