package api

import (
	"bytes"
	"fmt"
	"image/color"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/queue.report/internal/buckets"
	"github.com/banshee-data/queue.report/internal/httputil"
	"github.com/banshee-data/queue.report/internal/report"
)

// AttachDebugCharts mounts the heatmap and occupancy plot on the tsweb debug
// page of mux.
func (s *Server) AttachDebugCharts(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("heatmap", "Queue heatmap by ten-minute slot", http.HandlerFunc(s.handleHeatmapChart))
	debug.Handle("occupancy.png", "Occupancy over the last 24 hours", http.HandlerFunc(s.handleOccupancyPlot))
}

// handleHeatmapChart renders queue minutes per ten-minute slot and date as a
// coloured scatter. Query params:
//   - days (optional; default 7)
func (s *Server) handleHeatmapChart(w http.ResponseWriter, r *http.Request) {
	days, err := report.ParseDays(r.URL.Query().Get("days"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	cells, err := s.reports.Heatmap(r.Context(), days)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build heatmap: %v", err))
		return
	}

	type cellKey struct {
		date string
		slot int
	}
	minutes := make(map[cellKey]float64)
	dateSet := make(map[string]bool)
	for _, c := range cells {
		minutes[cellKey{c.Date, c.Slot}] += c.DurationMinutes
		dateSet[c.Date] = true
	}
	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	row := make(map[string]int, len(dates))
	for i, d := range dates {
		row[d] = i
	}

	maxMinutes := 10.0
	data := make([]opts.ScatterData, 0, len(minutes))
	for k, m := range minutes {
		data = append(data, opts.ScatterData{
			Name:  fmt.Sprintf("%s %s", k.date, buckets.BucketKey{Slot: k.slot, SlotMinutes: 10}.Label()),
			Value: []interface{}{float64(k.slot) / 6, row[k.date], m},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Queue Heatmap", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Queue minutes per ten-minute slot", Subtitle: fmt.Sprintf("location=%s days=%d cells=%d", s.reports.LocationID, days, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: 24, Name: "Hour", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -1, Max: len(dates), Name: "Day", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxMinutes),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#f7fbff", "#c6dbef", "#6baed6", "#2171b5", "#08306b"}},
		}),
	)
	scatter.AddSeries("queue", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleOccupancyPlot renders raw counts over the last 24 hours as a PNG
// with the capacity threshold drawn across it.
func (s *Server) handleOccupancyPlot(w http.ResponseWriter, r *http.Request) {
	now := s.reports.Now()
	loc := s.reports.Location
	if loc == nil {
		loc = time.UTC
	}
	samples, err := s.reports.Store.SamplesBetween(r.Context(), s.reports.LocationID, now.Add(-24*time.Hour), now.Add(time.Second))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load samples: %v", err))
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Occupancy at %s", s.reports.LocationID)
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Count"
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04", Time: func(t float64) time.Time {
		return time.Unix(int64(t), 0).In(loc)
	}}
	p.Add(plotter.NewGrid())

	if len(samples) > 0 {
		pts := make(plotter.XYs, 0, len(samples))
		for _, sm := range samples {
			pts = append(pts, plotter.XY{X: float64(sm.Time.Unix()), Y: float64(sm.Count)})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to plot samples: %v", err))
			return
		}
		line.Width = vg.Points(1)
		line.Color = color.RGBA{R: 33, G: 113, B: 181, A: 255}
		p.Add(line)

		capacity := plotter.NewFunction(func(float64) float64 { return float64(s.reports.Thresholds.Capacity) })
		capacity.Color = color.RGBA{R: 200, A: 255}
		capacity.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(capacity)
		p.Legend.Add("count", line)
		p.Legend.Add("capacity", capacity)
	}

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		log.Printf("failed to write occupancy plot: %v", err)
	}
}
