package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/namelens/ratethrottle/internal/core"
)

// TableFormatter renders runs as ASCII tables.
type TableFormatter struct{}

// FormatRun renders the run header, one row per worker and the summary.
func (f *TableFormatter) FormatRun(run *core.Run) (string, error) {
	if run == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run %s (%s, %s)\n", run.ID, run.Strategy, runStatus(run)))
	if run.LogDir != "" {
		sb.WriteString(fmt.Sprintf("Log dir: %s\n", run.LogDir))
	}
	if run.Error != "" {
		sb.WriteString(fmt.Sprintf("Error: %s\n", run.Error))
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Worker", "Requests", "Retry Ratio", "Max Sleep"})
	for i, r := range run.Results {
		name := r.Worker
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}
		t.AppendRow(table.Row{name, r.RequestCount, formatRatio(r.RetryRatio), formatSeconds(r.MaxSleepVal)})
	}

	s := core.Summarize(run.Results)
	if s.Workers > 0 {
		t.AppendFooter(table.Row{
			fmt.Sprintf("%d workers", s.Workers),
			s.TotalRequests,
			"mean " + formatRatio(s.MeanRetryRatio),
			"max " + formatSeconds(s.MaxSleepVal),
		})
	}

	sb.WriteString(t.Render())
	return sb.String(), nil
}

// FormatRuns renders one row per run.
func (f *TableFormatter) FormatRuns(runs []core.Run) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Started", "Strategy", "Threads", "Processes", "Scale", "Requests", "Mean Retry", "Status"})

	for i := range runs {
		run := &runs[i]
		s := core.Summarize(run.Results)
		t.AppendRow(table.Row{
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Strategy,
			run.ThreadCount,
			run.ProcessCount,
			run.TimeScale,
			s.TotalRequests,
			formatRatio(s.MeanRetryRatio),
			runStatus(run),
		})
	}

	return t.Render(), nil
}

func renderKeyValueTable(rows [][2]string) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Metric", "Value"})
	for _, row := range rows {
		t.AppendRow(table.Row{row[0], row[1]})
	}
	return t.Render()
}
