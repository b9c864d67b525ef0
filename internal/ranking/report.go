package ranking

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PairSummary counts delta statuses for one snapshot pair.
type PairSummary struct {
	From, To string
	Counts   map[Status]int
	Total    int
}

// Summarize counts statuses per snapshot pair, in row order.
func Summarize(rows []DeltaRow) []PairSummary {
	var out []PairSummary
	index := make(map[[2]string]int)
	for _, r := range rows {
		k := [2]string{r.FromSnapshot, r.ToSnapshot}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, PairSummary{From: r.FromSnapshot, To: r.ToSnapshot, Counts: make(map[Status]int)})
		}
		out[i].Counts[r.Status]++
		out[i].Total++
	}
	return out
}

// RenderSummary writes the summaries as a table.
func RenderSummary(w io.Writer, summaries []PairSummary) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	// status names as written to the delta CSV
	t.Style().Format.Header = text.FormatDefault
	t.SetOutputMirror(w)

	header := table.Row{"from", "to"}
	for _, s := range Statuses {
		header = append(header, string(s))
	}
	header = append(header, "total")
	t.AppendHeader(header)

	for _, s := range summaries {
		row := table.Row{s.From, s.To}
		for _, st := range Statuses {
			row = append(row, s.Counts[st])
		}
		row = append(row, s.Total)
		t.AppendRow(row)
	}
	t.Render()
}
