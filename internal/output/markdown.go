package output

import (
	"fmt"
	"strings"

	"github.com/namelens/ratethrottle/internal/core"
)

// MarkdownFormatter renders runs as markdown tables.
type MarkdownFormatter struct{}

// FormatRun renders a run as Markdown.
func (f *MarkdownFormatter) FormatRun(run *core.Run) (string, error) {
	if run == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Run %s\n\n", escapeMarkdownCell(run.ID)))
	sb.WriteString(fmt.Sprintf("- **Strategy**: %s\n", escapeMarkdownCell(run.Strategy)))
	sb.WriteString(fmt.Sprintf("- **Status**: %s\n", runStatus(run)))
	sb.WriteString(fmt.Sprintf("- **Workers**: %d threads x %d processes\n", run.ThreadCount, run.ProcessCount))
	if run.Error != "" {
		sb.WriteString(fmt.Sprintf("- **Error**: %s\n", escapeMarkdownCell(run.Error)))
	}

	sb.WriteString("\n| Worker | Requests | Retry Ratio | Max Sleep |\n")
	sb.WriteString("|--------|----------|-------------|-----------|\n")
	for i, r := range run.Results {
		name := r.Worker
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n",
			escapeMarkdownCell(name),
			r.RequestCount,
			formatRatio(r.RetryRatio),
			formatSeconds(r.MaxSleepVal),
		))
	}

	s := core.Summarize(run.Results)
	if s.Workers > 0 {
		sb.WriteString(fmt.Sprintf("\n**Summary**: %d requests, mean retry ratio %s, max sleep %s\n",
			s.TotalRequests, formatRatio(s.MeanRetryRatio), formatSeconds(s.MaxSleepVal)))
	}
	return sb.String(), nil
}

// FormatRuns renders a markdown table with one row per run.
func (f *MarkdownFormatter) FormatRuns(runs []core.Run) (string, error) {
	var sb strings.Builder
	sb.WriteString("| ID | Started | Strategy | Threads | Processes | Requests | Mean Retry | Status |\n")
	sb.WriteString("|----|---------|----------|---------|-----------|----------|------------|--------|\n")
	for i := range runs {
		run := &runs[i]
		s := core.Summarize(run.Results)
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %d | %s | %s |\n",
			shortID(run.ID),
			run.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
			escapeMarkdownCell(run.Strategy),
			run.ThreadCount,
			run.ProcessCount,
			s.TotalRequests,
			formatRatio(s.MeanRetryRatio),
			runStatus(run),
		))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
