package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/namelens/ratethrottle/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders demo runs.
type Formatter interface {
	FormatRun(run *core.Run) (string, error)
	FormatRuns(runs []core.Run) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// RunReport is the JSON shape of a run together with its summary.
type RunReport struct {
	*core.Run
	Summary core.Summary `json:"summary"`
}

// FormatSummary renders only the aggregate statistics of results.
func FormatSummary(format Format, results []core.WorkerResult) (string, error) {
	summary := core.Summarize(results)
	if format == FormatJSON {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	rows := summaryRows(summary)
	if format == FormatMarkdown {
		var sb strings.Builder
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		for _, row := range rows {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", row[0], row[1]))
		}
		return sb.String(), nil
	}
	return renderKeyValueTable(rows), nil
}

func summaryRows(s core.Summary) [][2]string {
	return [][2]string{
		{"Workers", fmt.Sprintf("%d", s.Workers)},
		{"Total requests", fmt.Sprintf("%d", s.TotalRequests)},
		{"Requests per worker", fmt.Sprintf("%d-%d (spread %d)", s.MinRequestCount, s.MaxRequestCount, s.RequestsSpread)},
		{"Mean retry ratio", formatRatio(s.MeanRetryRatio)},
		{"Max retry ratio", formatRatio(s.MaxRetryRatio)},
		{"Max sleep", formatSeconds(s.MaxSleepVal)},
		{"Median max sleep", formatSeconds(s.MedianSleepVal)},
	}
}

func runStatus(run *core.Run) string {
	switch {
	case run.Error != "":
		return "failed"
	case run.FinishedAt == nil:
		return "running"
	default:
		return "completed"
	}
}

func formatRatio(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func formatSeconds(v float64) string {
	return fmt.Sprintf("%.3fs", v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
