package analytics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	colorPrimary   = drawing.ColorFromHex("81A1C1")
	colorSecondary = drawing.ColorFromHex("A3BE8C")
	colorFailure   = drawing.ColorFromHex("BF616A")
	colorBg        = drawing.ColorFromHex("2E3440")
	colorGrid      = drawing.ColorFromHex("3B4252")
	colorText      = drawing.ColorFromHex("D8DEE9")
)

// GenerateVolumeChart renders daily job volume as a PNG time series:
// completed jobs against failed jobs.
func (s *Service) GenerateVolumeChart(data []DailyVolume, width, height int) ([]byte, error) {
	if len(data) == 0 {
		return generateEmptyChart(width, height, "No job data")
	}

	var xValues []time.Time
	var completedY []float64
	var failedY []float64

	for _, d := range data {
		xValues = append(xValues, d.Date)
		completedY = append(completedY, float64(d.Completed))
		failedY = append(failedY, float64(d.Failed))
	}

	graph := chart.Chart{
		Width:  width,
		Height: height,
		Background: chart.Style{
			FillColor: colorBg,
			Padding: chart.Box{
				Top:    20,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Canvas: chart.Style{
			FillColor: colorBg,
		},
		XAxis: chart.XAxis{
			Style: chart.Style{
				StrokeColor: colorGrid,
				FontColor:   colorText,
				FontSize:    10,
			},
			ValueFormatter: chart.TimeDateValueFormatter,
			GridMajorStyle: chart.Style{
				StrokeColor: colorGrid,
				StrokeWidth: 1,
			},
		},
		YAxis: chart.YAxis{
			Style: chart.Style{
				StrokeColor: colorGrid,
				FontColor:   colorText,
				FontSize:    10,
			},
			GridMajorStyle: chart.Style{
				StrokeColor: colorGrid,
				StrokeWidth: 1,
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Completed",
				XValues: xValues,
				YValues: completedY,
				Style: chart.Style{
					StrokeColor: colorSecondary,
					StrokeWidth: 2,
					FillColor:   colorSecondary.WithAlpha(50),
				},
			},
			chart.TimeSeries{
				Name:    "Failed",
				XValues: xValues,
				YValues: failedY,
				Style: chart.Style{
					StrokeColor: colorFailure,
					StrokeWidth: 2,
				},
			},
		},
	}

	graph.Elements = []chart.Renderable{
		chart.LegendThin(&graph, chart.Style{
			FillColor: colorBg,
			FontColor: colorText,
			FontSize:  10,
		}),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render volume chart: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateToolChart renders the per-tool breakdown as a PNG donut.
func (s *Service) GenerateToolChart(data []ToolStat, width, height int) ([]byte, error) {
	if len(data) == 0 {
		return generateEmptyChart(width, height, "No tool data")
	}

	colors := []drawing.Color{
		drawing.ColorFromHex("81A1C1"), // nord9 blue
		drawing.ColorFromHex("A3BE8C"), // nord14 green
		drawing.ColorFromHex("EBCB8B"), // nord13 yellow
		drawing.ColorFromHex("BF616A"), // nord11 red
		drawing.ColorFromHex("B48EAD"), // nord15 purple
		drawing.ColorFromHex("88C0D0"), // nord8 cyan
		drawing.ColorFromHex("5E81AC"), // nord10 deep blue
	}

	var values []chart.Value
	for i, d := range data {
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%.0f%%)", d.Tool, d.Percentage),
			Value: float64(d.Count),
			Style: chart.Style{
				FillColor: colors[i%len(colors)],
				FontColor: colorText,
				FontSize:  10,
			},
		})
	}

	pie := chart.DonutChart{
		Width:  width,
		Height: height,
		Values: values,
		Background: chart.Style{
			FillColor: colorBg,
		},
	}

	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render tool chart: %w", err)
	}
	return buf.Bytes(), nil
}

func generateEmptyChart(width, height int, message string) ([]byte, error) {
	graph := chart.Chart{
		Width:  width,
		Height: height,
		Background: chart.Style{
			FillColor: colorBg,
		},
		Canvas: chart.Style{
			FillColor: colorBg,
		},
		XAxis: chart.XAxis{
			Style: chart.Style{
				Hidden: true,
			},
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: 100,
			},
		},
		YAxis: chart.YAxis{
			Style: chart.Style{
				Hidden: true,
			},
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: 100,
			},
		},
		Series: []chart.Series{
			chart.AnnotationSeries{
				Annotations: []chart.Value2{
					{XValue: 50, YValue: 50, Label: message},
				},
				Style: chart.Style{
					FontColor: colorText,
					FontSize:  14,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render empty chart: %w", err)
	}
	return buf.Bytes(), nil
}
