package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/comalice/harel"
	"github.com/comalice/harel/internal/core"
	"github.com/comalice/harel/internal/production"
	"github.com/comalice/harel/reader"
)

// server exposes machines of one chart over HTTP. Each machine runs as a
// core.Machine persisted to the configured store.
type server struct {
	chart   *harel.Chart
	doc     *reader.Document
	store   core.Store
	logger  *slog.Logger
	metrics *production.Metrics
	reg     *prometheus.Registry
	tick    time.Duration

	mu       sync.Mutex
	machines map[string]*core.Machine
}

func newServer(c *harel.Chart, doc *reader.Document, store core.Store, tick time.Duration, logger *slog.Logger) *server {
	reg := prometheus.NewRegistry()
	return &server{
		chart:    c,
		doc:      doc,
		store:    store,
		logger:   logger,
		metrics:  production.NewMetrics(reg),
		reg:      reg,
		tick:     tick,
		machines: make(map[string]*core.Machine),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/chart", s.describe)
	r.Get("/chart.dot", s.dot)
	r.Post("/machines", s.create)
	r.Route("/machines/{id}", func(r chi.Router) {
		r.Get("/", s.get)
		r.Delete("/", s.stop)
		r.Post("/events", s.send)
		r.Get("/revisions", s.revisions)
		r.Get("/dot", s.machineDot)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	return r
}

type machineView struct {
	ID     string   `json:"id"`
	Active []string `json:"active"`
	Halted bool     `json:"halted"`
	Error  string   `json:"error,omitempty"`
}

type eventRequest struct {
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (s *server) newMachine(id string) *core.Machine {
	opts := []core.Option{
		core.WithLogger(s.logger),
		core.WithHost(s.doc.NewDataModel()),
		core.WithStore(s.store),
		core.WithEngineOptions(harel.WithLifecycleHooks(s.metrics.Hooks())),
	}
	if id != "" {
		opts = append(opts, core.WithID(id))
	}
	if s.tick > 0 {
		opts = append(opts, core.WithTickInterval(s.tick))
	}
	return core.NewMachine(s.chart, opts...)
}

// lookup returns a running machine, resuming it from the store when this
// process has not seen it yet.
func (s *server) lookup(ctx context.Context, id string) (*core.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.machines[id]; ok {
		return m, nil
	}
	m := s.newMachine(id)
	if err := m.Load(ctx); err != nil {
		return nil, err
	}
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	s.machines[id] = m
	s.logger.Info("machine resumed", slog.String("machine", id))
	return m, nil
}

func (s *server) create(w http.ResponseWriter, r *http.Request) {
	m := s.newMachine("")
	if err := m.Start(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.mu.Lock()
	s.machines[m.ID()] = m
	s.mu.Unlock()
	s.logger.Info("machine created", slog.String("machine", m.ID()))
	writeJSON(w, http.StatusCreated, s.view(m))
}

func (s *server) get(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.view(m))
}

func (s *server) send(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("body must be {\"name\": ..., \"properties\": {...}}"))
		return
	}
	if err := m.Send(harel.NewEvent(req.Name, req.Properties)); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, core.ErrStopped) {
			status = http.StatusGone
		}
		writeError(w, status, err)
		return
	}
	if err := m.Sync(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(m))
}

func (s *server) stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	m, ok := s.machines[id]
	delete(s.machines, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, core.ErrNotFound)
		return
	}
	_ = m.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) revisions(w http.ResponseWriter, r *http.Request) {
	hist, ok := s.store.(core.History)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("store keeps no history"))
		return
	}
	revs, err := hist.Revisions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, revs)
}

func (s *server) describe(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, new(production.DefaultVisualizer).Describe(s.chart))
}

func (s *server) dot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = w.Write([]byte(new(production.DefaultVisualizer).ExportDOT(s.chart, harel.StateMachine{})))
}

func (s *server) machineDot(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = w.Write([]byte(new(production.DefaultVisualizer).ExportDOT(s.chart, m.Current())))
}

func (s *server) machine(w http.ResponseWriter, r *http.Request) (*core.Machine, bool) {
	m, err := s.lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return nil, false
	}
	return m, true
}

func (s *server) view(m *core.Machine) machineView {
	h := m.Current()
	v := machineView{ID: m.ID(), Active: h.Labels(s.chart), Halted: h.Halted(s.chart)}
	if err := m.Err(); err != nil {
		v.Error = err.Error()
	}
	return v
}

// shutdown stops every machine.
func (s *server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.machines {
		_ = m.Stop()
		delete(s.machines, id)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, harel.ErrUnknownState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
