package output

import (
	"encoding/json"

	"github.com/namelens/ratethrottle/internal/core"
)

// JSONFormatter renders runs as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatRun renders a run and its summary as JSON.
func (f *JSONFormatter) FormatRun(run *core.Run) (string, error) {
	if run == nil {
		return "", nil
	}
	return f.marshal(RunReport{Run: run, Summary: core.Summarize(run.Results)})
}

// FormatRuns renders runs as a JSON array. Results are included.
func (f *JSONFormatter) FormatRuns(runs []core.Run) (string, error) {
	reports := make([]RunReport, 0, len(runs))
	for i := range runs {
		reports = append(reports, RunReport{Run: &runs[i], Summary: core.Summarize(runs[i].Results)})
	}
	return f.marshal(reports)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
