package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/smartretail/scanpos/internal/httputil"
)

// fpsChart renders the rolling frame-interval window as an HTML line chart.
// Debugging-only endpoint: it answers "is the kiosk keeping up with the
// camera" without attaching a terminal.
func (s *Server) fpsChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	times := s.stats.FrameTimes()
	if len(times) < 2 {
		httputil.WriteJSONError(w, http.StatusNotFound, "not enough frames yet")
		return
	}

	xaxis := make([]string, 0, len(times)-1)
	data := make([]opts.LineData, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		interval := times[i].Sub(times[i-1]).Seconds()
		fps := 0.0
		if interval > 0 {
			fps = 1 / interval
		}
		xaxis = append(xaxis, times[i].Format("15:04:05.000"))
		data = append(data, opts.LineData{Value: fps})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Scanner Frame Rate", Theme: "dark", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Processing frame rate",
			Subtitle: fmt.Sprintf("last %d frames, current %.1f fps", len(times), s.stats.Snapshot().FPS),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "fps"}),
	)
	line.SetXAxis(xaxis)
	line.AddSeries("fps", data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
