// Package report renders a self-contained HTML artifact for one analysis
// result: the composite score, the per-part breakdown and the numeric
// details, so a result can be reviewed without the agent running.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kinescore/kinescore-agent/internal/analysis"
)

// Writer renders result reports into a base directory.
type Writer struct {
	baseDir string
	logger  *slog.Logger
}

// NewWriter creates a report writer rooted at baseDir.
func NewWriter(baseDir string, logger *slog.Logger) *Writer {
	return &Writer{baseDir: baseDir, logger: logger}
}

// Render writes the report for one result and returns its path.
func (w *Writer) Render(videoID string, res analysis.Result) (string, error) {
	dir := filepath.Join(w.baseDir, videoID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("cannot create report dir: %w", err)
	}
	path := filepath.Join(dir, "report.html")

	page := components.NewPage()
	page.PageTitle = "kinescore result " + videoID
	page.AddCharts(w.scoreGauge(res), w.detailsBar(res))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("cannot create report file: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return "", fmt.Errorf("cannot render report: %w", err)
	}

	if w.logger != nil {
		w.logger.Info("report rendered", "video_id", videoID)
	}
	return path, nil
}

// scoreGauge shows the composite 0-100 score.
func (w *Writer) scoreGauge(res analysis.Result) components.Charter {
	gauge := charts.NewGauge()
	gauge.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "AI score", Subtitle: res.Band}),
	)
	gauge.AddSeries("score", []opts.GaugeData{
		{Name: res.Band, Value: round1(res.AIScore)},
	})
	return gauge
}

// detailsBar charts the scalar metrics from the details payload, sorted by
// key so the output is stable.
func (w *Writer) detailsBar(res analysis.Result) components.Charter {
	var keys []string
	for k, v := range res.Details {
		if _, ok := asFloat(v); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var values []opts.BarData
	for _, k := range keys {
		v, _ := asFloat(res.Details[k])
		values = append(values, opts.BarData{Value: round1(v)})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "metrics"}),
	)
	bar.SetXAxis(keys).AddSeries("value", values)
	return bar
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
