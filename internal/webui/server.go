// Package webui serves the usage and waterfall views as JSON and streams
// status updates over a WebSocket.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/tobert/tracestat/internal/report"
	"github.com/tobert/tracestat/internal/storage"
	"github.com/tobert/tracestat/internal/tracetree"
)

// Server serves the JSON API and WebSocket updates.
type Server struct {
	store   *storage.Store
	reports *report.Service
}

// New creates a new web server.
func New(store *storage.Store, reports *report.Service) *Server {
	return &Server{store: store, reports: reports}
}

// RegisterRoutes attaches the API routes to an existing ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/usage", s.handleUsage)
	mux.HandleFunc("GET /api/usage/chart", s.handleUsageChart)
	mux.HandleFunc("GET /api/traces", s.handleTraces)
	mux.HandleFunc("GET /api/traces/{id}/waterfall", s.handleWaterfall)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// ListenAndServe starts a standalone HTTP server.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleUsage returns the project usage table.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := s.reports.Table(q.Get("category"), q.Get("sort"), q.Get("statsPeriod"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, view)
}

// handleUsageChart returns the org usage chart.
func (s *Server) handleUsageChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := s.reports.Chart(q.Get("category"), q.Get("transform"), q.Get("statsPeriod"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, view)
}

// handleTraces lists stored traces, newest first.
func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, s.reports.Traces(q.Get("service"), limit))
}

// handleWaterfall lays out one trace. collapsed is a comma separated list of
// node IDs.
func (s *Server) handleWaterfall(w http.ResponseWriter, r *http.Request) {
	var collapsed []string
	if c := r.URL.Query().Get("collapsed"); c != "" {
		collapsed = strings.Split(c, ",")
	}

	view, err := s.reports.Waterfall(r.PathValue("id"), collapsed)
	if errors.Is(err, tracetree.ErrTraceNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, view)
}

// statusResponse is the JSON shape for /api/status.
type statusResponse struct {
	Generation uint64  `json:"generation"`
	Spans      uint64  `json:"spans"`
	Points     uint64  `json:"points"`
	Traces     int     `json:"traces"`
	Projects   int     `json:"projects"`
	Uptime     float64 `json:"uptime_seconds"`
}

func (s *Server) status() statusResponse {
	stats := s.store.Stats()
	return statusResponse{
		Generation: stats.Generation,
		Spans:      stats.SpansReceived,
		Points:     stats.PointsReceived,
		Traces:     stats.Traces.TraceCount,
		Projects:   stats.Outcomes.ProjectCount,
		Uptime:     stats.UptimeSeconds,
	}
}

// handleStatus returns generation counter, receipt counts, and uptime.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status())
}

// wsFilter is the client-sent view selection on the WebSocket.
type wsFilter struct {
	Category    string `json:"category"`
	Sort        string `json:"sort"`
	StatsPeriod string `json:"statsPeriod"`
	Paused      bool   `json:"paused"`
}

// wsUpdate is the server-sent update message on the WebSocket.
type wsUpdate struct {
	Status statusResponse         `json:"status"`
	Table  *report.TableView      `json:"table,omitempty"`
	Traces []storage.TraceSummary `json:"traces,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

const wsRecentTraces = 20

// handleWebSocket upgrades to WebSocket and pushes the usage table and recent
// traces whenever stored data changes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for localhost dev
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	notifyCh, unsubscribe := s.store.Subscribe()
	defer unsubscribe()

	var filter wsFilter

	filterCh := make(chan wsFilter, 4)
	go func() {
		defer close(filterCh)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var f wsFilter
			if json.Unmarshal(data, &f) == nil {
				select {
				case filterCh <- f:
				default:
				}
			}
		}
	}()

	s.sendWSUpdate(ctx, conn, filter)

	// Keepalive ticker (send status even with no data changes, so client knows we're alive)
	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return

		case f, ok := <-filterCh:
			if !ok {
				return
			}
			filter = f
			if !filter.Paused {
				s.sendWSUpdate(ctx, conn, filter)
			}

		case <-notifyCh:
			if filter.Paused {
				continue
			}
			s.sendWSUpdate(ctx, conn, filter)

		case <-keepalive.C:
			if filter.Paused {
				continue
			}
			s.sendWSUpdate(ctx, conn, filter)
		}
	}
}

// sendWSUpdate sends the current status, table and recent traces.
func (s *Server) sendWSUpdate(ctx context.Context, conn *websocket.Conn, filter wsFilter) {
	update := wsUpdate{
		Status: s.status(),
		Traces: s.reports.Traces("", wsRecentTraces),
	}

	table, err := s.reports.Table(filter.Category, filter.Sort, filter.StatsPeriod)
	if err != nil {
		update.Error = err.Error()
	} else {
		update.Table = &table
	}

	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("⚠️  webui: failed to marshal update: %v\n", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		// Connection closed; the main loop will handle cleanup.
		return
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "")
	if err := enc.Encode(v); err != nil {
		log.Printf("⚠️  webui: failed to write JSON: %v\n", err)
	}
}
