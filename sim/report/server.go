// Package report serves archived ResultSets over HTTP: run listings, per-run
// summaries, post-processed series, cross-replication distributions and a
// Prometheus scrape endpoint.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/mixnet-sim/sim/stats"
)

// Server answers queries against a result store.
type Server struct {
	store     *stats.Store
	collector *stats.Collector
	router    *mux.Router
}

// RunInfo identifies one stored run.
type RunInfo struct {
	Key   string `json:"key"`
	Batch string `json:"batch"`
	Run   string `json:"run"`
}

// SeriesInfo summarizes one series of a run.
type SeriesInfo struct {
	Metric    string  `json:"metric"`
	Entity    string  `json:"entity"`
	Samples   int     `json:"samples"`
	Aggregate float64 `json:"aggregate"`
	Unit      string  `json:"unit"`
}

// RunSummary describes one stored run.
type RunSummary struct {
	RunInfo
	Seed     int64             `json:"seed"`
	Start    int64             `json:"start"`
	End      int64             `json:"end"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Series   []SeriesInfo      `json:"series"`
}

// SeriesResponse is a post-processed series.
type SeriesResponse struct {
	Metric string        `json:"metric"`
	Entity string        `json:"entity"`
	Window string        `json:"window"`
	Unit   string        `json:"unit"`
	Points []stats.Point `json:"points"`
}

// DistributionResponse is the spread of one series across the runs of a batch.
type DistributionResponse struct {
	Batch  string  `json:"batch"`
	Metric string  `json:"metric"`
	Entity string  `json:"entity"`
	Window string  `json:"window"`
	Runs   int     `json:"runs"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// NewServer creates a Server over store and publishes every stored run to the
// Prometheus collector.
func NewServer(store *stats.Store) (*Server, error) {
	s := &Server{store: store, collector: stats.NewCollector()}
	keys, err := store.Keys()
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		rs, err := store.Get(k)
		if err != nil {
			return nil, err
		}
		s.collector.Observe(rs)
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/runs", s.listRuns).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{batch}", s.listBatch).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{batch}/{run}", s.runSummary).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{batch}/{run}/series/{metric}/{entity:.+}", s.series).Methods(http.MethodGet)
	r.HandleFunc("/api/distribution/{batch}/{metric}/{entity:.+}", s.distribution).Methods(http.MethodGet)
	r.Handle("/metrics", s.collector.Handler())
	s.router = r
	logrus.Debugf("report server loaded %d runs", len(keys))
	return s, nil
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler { return s.router }

// Collector returns the Prometheus collector fed by the stored runs.
func (s *Server) Collector() *stats.Collector { return s.collector }

// Serve accepts connections on l until it fails.
func (s *Server) Serve(l net.Listener) error {
	logrus.Infof("serving results on http://%s", l.Addr())
	return http.Serve(l, s.router)
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	keys, err := s.store.Keys()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	runs := make([]RunInfo, 0, len(keys))
	for _, k := range keys {
		runs = append(runs, splitKey(k))
	}
	writeJSON(w, runs)
}

func (s *Server) listBatch(w http.ResponseWriter, r *http.Request) {
	batch := mux.Vars(r)["batch"]
	results, err := s.store.Batch(batch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(results) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("batch %q: %w", batch, stats.ErrNotFound))
		return
	}
	out := make([]RunSummary, 0, len(results))
	for _, rs := range results {
		out = append(out, summarize(batch, rs))
	}
	writeJSON(w, out)
}

func (s *Server) runSummary(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rs, ok := s.load(w, vars["batch"], vars["run"])
	if !ok {
		return
	}
	writeJSON(w, summarize(vars["batch"], rs))
}

func (s *Server) series(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	metric, entity, pp, ok := parseQuery(w, r)
	if !ok {
		return
	}
	rs, ok := s.load(w, vars["batch"], vars["run"])
	if !ok {
		return
	}
	if _, found := rs.Lookup(metric, entity); !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("no %s series for %s: %w", metric, entity, stats.ErrNotFound))
		return
	}
	points := rs.Query(metric, entity, pp)
	if points == nil {
		points = []stats.Point{}
	}
	writeJSON(w, SeriesResponse{
		Metric: string(metric),
		Entity: entity.String(),
		Window: pp.Name(),
		Unit:   pp.Unit(metric.Unit()),
		Points: points,
	})
}

func (s *Server) distribution(w http.ResponseWriter, r *http.Request) {
	batch := mux.Vars(r)["batch"]
	metric, entity, pp, ok := parseQuery(w, r)
	if !ok {
		return
	}
	results, err := s.store.Batch(batch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(results) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("batch %q: %w", batch, stats.ErrNotFound))
		return
	}
	d := stats.Summarize(results, metric, entity, pp)
	writeJSON(w, DistributionResponse{
		Batch: batch, Metric: string(metric), Entity: entity.String(), Window: pp.Name(),
		Runs: len(results), Mean: d.Mean, StdDev: d.StdDev,
		P50: d.P50, P95: d.P95, P99: d.P99, Min: d.Min, Max: d.Max, Count: d.Count,
	})
}

func (s *Server) load(w http.ResponseWriter, batch, run string) (*stats.ResultSet, bool) {
	rs, err := s.store.Get(stats.StoreKey(batch, run))
	if errors.Is(err, stats.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return rs, true
}

// parseQuery reads the metric and entity path variables and the window query
// parameter, answering 400 when any is invalid.
func parseQuery(w http.ResponseWriter, r *http.Request) (stats.Metric, stats.Entity, stats.PostProcessor, bool) {
	vars := mux.Vars(r)
	metric, err := stats.ParseMetric(vars["metric"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", stats.Entity{}, nil, false
	}
	entity, err := stats.ParseEntity(vars["entity"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", stats.Entity{}, nil, false
	}
	pp, err := stats.NewPostProcessor(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", stats.Entity{}, nil, false
	}
	return metric, entity, pp, true
}

func summarize(batch string, rs *stats.ResultSet) RunSummary {
	out := RunSummary{
		RunInfo:  RunInfo{Key: stats.StoreKey(batch, rs.RunID), Batch: batch, Run: rs.RunID},
		Seed:     rs.Seed,
		Start:    rs.Start,
		End:      rs.End,
		Metadata: rs.Metadata,
		Series:   make([]SeriesInfo, 0, len(rs.Series)),
	}
	for i := range rs.Series {
		sr := &rs.Series[i]
		out.Series = append(out.Series, SeriesInfo{
			Metric:    string(sr.Metric),
			Entity:    sr.Entity.String(),
			Samples:   len(sr.Samples),
			Aggregate: sr.Aggregate(),
			Unit:      sr.Metric.Unit(),
		})
	}
	sort.SliceStable(out.Series, func(i, j int) bool {
		if out.Series[i].Metric != out.Series[j].Metric {
			return out.Series[i].Metric < out.Series[j].Metric
		}
		return out.Series[i].Entity < out.Series[j].Entity
	})
	return out
}

func splitKey(key string) RunInfo {
	batch, run, _ := strings.Cut(key, "/")
	return RunInfo{Key: key, Batch: batch, Run: run}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
