package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/eargollo/orgest/internal/pipeline"
	"github.com/eargollo/orgest/internal/stage"
)

// column describes one table column. Width caps the cell width; zero
// leaves it at 60.
type column struct {
	title string
	right bool
	width int
}

// renderTable draws rows under cols with rounded borders. Short rows are
// padded, extra cells dropped. A non-empty caption is printed below.
func renderTable(cols []column, rows [][]string, caption string) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, 0, len(cols))
	configs := make([]table.ColumnConfig, 0, len(cols))
	for i, c := range cols {
		header = append(header, c.title)
		cfg := table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft, WidthMax: 60}
		if c.right {
			cfg.Align = text.AlignRight
		}
		if c.width > 0 {
			cfg.WidthMax = c.width
		}
		configs = append(configs, cfg)
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	if caption != "" {
		tw.SetCaption("%s", caption)
	}
	return tw.Render()
}

// renderResults summarizes the per-stage outcome of a finished job.
func renderResults(st pipeline.State) string {
	rows := make([][]string, 0, len(st.Results))
	for _, r := range st.Results {
		rows = append(rows, []string{fmt.Sprint(r.Index), r.Title, r.Outcome, formatCounts(r.Counts), r.Error})
	}
	cols := []column{
		{title: "#", right: true},
		{title: "Stage"},
		{title: "Outcome"},
		{title: "Counts", width: 80},
		{title: "Error", width: 80},
	}
	return renderTable(cols, rows, "")
}

// formatCounts renders counters as "k=v" pairs sorted by key, skipping
// zeros.
func formatCounts(c stage.Counts) string {
	keys := make([]string, 0, len(c))
	for k, v := range c {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, c[k])
	}
	return strings.Join(parts, " ")
}
