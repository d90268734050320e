// Package api serves the JSON reports, the live event stream and the debug
// charts over HTTP.
package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/queue.report/internal/broadcast"
	"github.com/banshee-data/queue.report/internal/httputil"
	"github.com/banshee-data/queue.report/internal/queue"
	"github.com/banshee-data/queue.report/internal/report"
	"github.com/banshee-data/queue.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	reports *report.Service
	events  http.Handler
}

// NewServer builds a server over reports. events serves /api/events and may
// be nil, in which case the stream is not mounted.
func NewServer(reports *report.Service, events *broadcast.SSEHandler) *Server {
	s := &Server{reports: reports}
	if events != nil {
		s.events = events
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.get(s.health))
	mux.HandleFunc("/api/status/latest", s.get(s.statusLatest))
	mux.HandleFunc("/api/status/history", s.get(s.statusHistory))
	mux.HandleFunc("/api/stats/count", s.get(s.statsCount))
	mux.HandleFunc("/api/stats/daily", s.get(s.statsDaily))
	mux.HandleFunc("/api/stats/hourly", s.get(s.statsHourly))
	mux.HandleFunc("/api/stats/weekly-hourly", s.getEstimate(s.statsWeeklyHourly))
	mux.HandleFunc("/api/queue/current", s.getEstimate(s.queueCurrent))
	mux.HandleFunc("/api/queue/daily", s.getEstimate(s.queueDaily))
	mux.HandleFunc("/api/queue/history", s.getEstimate(s.queueHistory))
	mux.HandleFunc("/api/queue/stacks", s.getEstimate(s.queueStacks))
	mux.HandleFunc("/api/queue/heatmap", s.getEstimate(s.queueHeatmap))
	mux.HandleFunc("/api/dashboard/current", s.getEstimate(s.dashboard))
	if s.events != nil {
		mux.Handle("/api/events", s.events)
	}
	return mux
}

type handlerFunc func(r *http.Request) (interface{}, error)

// estimateEnvelope is the response body of endpoints that report queue
// estimates.
type estimateEnvelope struct {
	httputil.Envelope
	EstimateNote string `json:"estimate_note"`
}

// get adapts a report call to a GET endpoint. report.ErrBadRequest maps to
// 400; anything else is logged and maps to 500.
func (s *Server) get(fn handlerFunc) http.HandlerFunc {
	return s.handle(fn, false)
}

// getEstimate is get for payloads carrying queue estimates.
func (s *Server) getEstimate(fn handlerFunc) http.HandlerFunc {
	return s.handle(fn, true)
}

func (s *Server) handle(fn handlerFunc, estimate bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		data, err := fn(r)
		switch {
		case err == nil && estimate:
			httputil.WriteJSON(w, http.StatusOK, estimateEnvelope{
				Envelope:     httputil.Envelope{Success: true, Data: data},
				EstimateNote: queue.EstimateNote,
			})
		case err == nil:
			httputil.WriteData(w, data)
		case errors.Is(err, report.ErrBadRequest):
			httputil.BadRequest(w, err.Error())
		default:
			log.Printf("%s failed: %v", r.URL.Path, err)
			httputil.InternalServerError(w, "failed to build report")
		}
	}
}

func (s *Server) health(r *http.Request) (interface{}, error) {
	return map[string]string{
		"status":   "ok",
		"version":  version.Version,
		"location": s.reports.LocationID,
	}, nil
}

func (s *Server) statusLatest(r *http.Request) (interface{}, error) {
	return s.reports.Latest(r.Context())
}

func (s *Server) statusHistory(r *http.Request) (interface{}, error) {
	limit, err := report.ParseLimit(r.URL.Query().Get("limit"), report.DefaultStatusLimit)
	if err != nil {
		return nil, err
	}
	return s.reports.StatusHistory(r.Context(), limit)
}

func (s *Server) statsCount(r *http.Request) (interface{}, error) {
	return s.reports.Count(r.Context())
}

func (s *Server) statsDaily(r *http.Request) (interface{}, error) {
	days, err := report.ParseDays(r.URL.Query().Get("days"))
	if err != nil {
		return nil, err
	}
	return s.reports.DailySamples(r.Context(), days)
}

func (s *Server) statsHourly(r *http.Request) (interface{}, error) {
	day, err := report.ParseDate(r.URL.Query().Get("date"), s.reports.Location, s.reports.Now())
	if err != nil {
		return nil, err
	}
	return s.reports.HourlySamples(r.Context(), day)
}

func (s *Server) statsWeeklyHourly(r *http.Request) (interface{}, error) {
	days, err := report.ParseDays(r.URL.Query().Get("days"))
	if err != nil {
		return nil, err
	}
	return s.reports.WeeklyHourly(r.Context(), days)
}

func (s *Server) queueCurrent(r *http.Request) (interface{}, error) {
	return s.reports.Current(r.Context())
}

func (s *Server) queueDaily(r *http.Request) (interface{}, error) {
	days, err := report.ParseDays(r.URL.Query().Get("days"))
	if err != nil {
		return nil, err
	}
	return s.reports.QueueDaily(r.Context(), days)
}

func (s *Server) queueHistory(r *http.Request) (interface{}, error) {
	limit, err := report.ParseLimit(r.URL.Query().Get("limit"), report.DefaultHistoryLimit)
	if err != nil {
		return nil, err
	}
	return s.reports.QueueHistory(r.Context(), limit)
}

func (s *Server) queueStacks(r *http.Request) (interface{}, error) {
	days, err := report.ParseDays(r.URL.Query().Get("days"))
	if err != nil {
		return nil, err
	}
	return s.reports.QueueStacks(r.Context(), days)
}

func (s *Server) queueHeatmap(r *http.Request) (interface{}, error) {
	days, err := report.ParseDays(r.URL.Query().Get("days"))
	if err != nil {
		return nil, err
	}
	return s.reports.Heatmap(r.Context(), days)
}

func (s *Server) dashboard(r *http.Request) (interface{}, error) {
	days, err := report.ParseDays(r.URL.Query().Get("days"))
	if err != nil {
		return nil, err
	}
	return s.reports.Dashboard(r.Context(), days)
}
