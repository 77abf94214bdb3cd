package utils

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics counts what one batch run did. It is written out as a
// node-exporter textfile at the end of the run.
type RunMetrics struct {
	reg *prometheus.Registry

	Candidates     prometheus.Counter
	Skipped        *prometheus.CounterVec
	Classified     *prometheus.CounterVec
	NewListings    prometheus.Counter
	NewDeals       prometheus.Counter
	ProbeResults   *prometheus.CounterVec
	Removed        *prometheus.CounterVec
	LastRunSeconds prometheus.Gauge
}

// NewRunMetrics registers the run counters for job (scrape|prune) on a
// private registry.
func NewRunMetrics(job string) *RunMetrics {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"job_name": job}

	m := &RunMetrics{
		reg: reg,
		Candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "drive_deals_candidates_total",
			Help:        "Unique shippable candidates collected from the marketplace",
			ConstLabels: constLabels,
		}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "drive_deals_candidates_skipped_total",
			Help:        "Candidates not turned into listings, by reason",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		Classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "drive_deals_classifications_total",
			Help:        "Classification calls, by outcome",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		NewListings: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "drive_deals_new_listings_total",
			Help:        "Listings added to the listing store",
			ConstLabels: constLabels,
		}),
		NewDeals: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "drive_deals_new_deals_total",
			Help:        "Deals added to the deal store",
			ConstLabels: constLabels,
		}),
		ProbeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "drive_deals_probe_results_total",
			Help:        "Liveness probe outcomes",
			ConstLabels: constLabels,
		}, []string{"state"}),
		Removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "drive_deals_pruned_total",
			Help:        "Items removed by the liveness pass, by store",
			ConstLabels: constLabels,
		}, []string{"store"}),
		LastRunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "drive_deals_last_run_timestamp_seconds",
			Help:        "Unix time the run finished",
			ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(m.Candidates, m.Skipped, m.Classified, m.NewListings,
		m.NewDeals, m.ProbeResults, m.Removed, m.LastRunSeconds)
	return m
}

// WriteTextfile stamps the finish time and writes the registry to path.
// An empty path is a no-op.
func (m *RunMetrics) WriteTextfile(path string, finished time.Time) error {
	if path == "" {
		return nil
	}
	m.LastRunSeconds.Set(float64(finished.Unix()))
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("metrics: write textfile %q: %w", path, err)
	}
	return nil
}
