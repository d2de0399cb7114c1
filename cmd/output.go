package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/inference-sim/mixnet-sim/sim/network"
	"github.com/inference-sim/mixnet-sim/sim/stats"
	"github.com/inference-sim/mixnet-sim/sim/trace"
)

// summaryMetrics are reported for the global entity of every run.
var summaryMetrics = []stats.Metric{
	stats.EndToEndLatency,
	stats.RoundTripTime,
	stats.RouteFailures,
}

// runReport is the printed outcome of one replication.
type runReport struct {
	RunID    string             `json:"run_id"`
	Seed     int64              `json:"seed"`
	Status   string             `json:"status"`
	Key      string             `json:"store_key,omitempty"`
	Counters network.Counters   `json:"counters"`
	Global   map[string]float64 `json:"global,omitempty"`
	Trace    *trace.Summary     `json:"trace,omitempty"` // only with a trace level
}

// batchReport is the printed outcome of a run or replicate command.
type batchReport struct {
	Batch   string                        `json:"batch,omitempty"`
	Runs    []runReport                   `json:"runs"`
	Summary map[string]stats.Distribution `json:"summary,omitempty"`
}

func newBatchReport(batch string, results []network.RunResult, keys map[string]string) batchReport {
	rep := batchReport{Batch: batch, Runs: make([]runReport, 0, len(results))}
	var finished []*stats.ResultSet
	for _, r := range results {
		rr := runReport{RunID: r.RunID, Seed: r.Seed, Status: r.Status(), Key: keys[r.RunID], Counters: r.Counters}
		if r.Trace != nil {
			rr.Trace = trace.Summarize(r.Trace)
		}
		if r.Results != nil {
			rr.Global = make(map[string]float64)
			for _, m := range summaryMetrics {
				if v, ok := r.Results.Value(m, stats.Global, nil); ok {
					rr.Global[string(m)] = v
				}
			}
			if r.Err == nil {
				finished = append(finished, r.Results)
			}
		}
		rep.Runs = append(rep.Runs, rr)
	}
	// Only finished runs enter the cross-replication summary.
	if len(finished) > 1 {
		rep.Summary = make(map[string]stats.Distribution)
		for _, m := range summaryMetrics {
			if d := stats.Summarize(finished, m, stats.Global, nil); d.Count > 0 {
				rep.Summary[string(m)] = d
			}
		}
	}
	return rep
}

// printJSON writes a header line followed by v as indented JSON.
func printJSON(w io.Writer, header string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "=== %s ===\n%s\n", header, data)
	return err
}
