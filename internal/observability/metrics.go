package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/verdantis/esgdata-backend/internal/platform/envutil"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

// Metrics holds the process counters exposed in Prometheus text format on
// /metrics. Every field tolerates a nil receiver so instrumented code never
// has to guard for disabled metrics.
type Metrics struct {
	APIRequests *CounterVec
	APILatency  *HistogramVec
	APIInflight *Gauge

	DatasetsStored    *Counter
	DataPointsStored  *Counter
	QaVerdictsApplied *Counter
	ActiveSlotMoves   *Counter
	StagingEvictions  *Counter
	QaQueueDepth      *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = &Metrics{
			APIRequests: NewCounterVec("esg_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
			APILatency: NewHistogramVec(
				"esg_api_request_duration_seconds",
				"API request latency in seconds by method/route.",
				[]string{"method", "route"},
				[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			),
			APIInflight:       NewGauge("esg_api_inflight_requests", "In-flight API requests."),
			DatasetsStored:    NewCounter("esg_datasets_stored_total", "Datasets decomposed and persisted."),
			DataPointsStored:  NewCounter("esg_data_points_stored_total", "Data points persisted, standalone and from datasets."),
			QaVerdictsApplied: NewCounter("esg_qa_verdicts_applied_total", "QA verdicts durably applied."),
			ActiveSlotMoves:   NewCounter("esg_active_slot_moves_total", "Active dataset changes per data key."),
			StagingEvictions:  NewCounter("esg_staging_evictions_total", "Staged payload evictions after persistence confirmations."),
			QaQueueDepth:      NewGauge("esg_qa_queue_depth", "QA verdicts queued or executing in the keyed dispatcher."),
		}
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.APIRequests, m.APILatency, m.APIInflight,
		m.DatasetsStored, m.DataPointsStored,
		m.QaVerdictsApplied, m.ActiveSlotMoves, m.StagingEvictions,
		m.QaQueueDepth,
	}
	for _, metric := range writers {
		if err := metric.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names, values []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, 0, len(names))
	for i, name := range names {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		parts = append(parts, fmt.Sprintf("%s=%q", name, value))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

type Counter struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc() {
	c.Add(1)
}

func (c *Counter) Add(v float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", c.name, c.val)
	return err
}

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl]++
	c.mu.Unlock()
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, c.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val++
	g.mu.Unlock()
}

func (g *Gauge) Dec() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val--
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.val
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", g.name, g.val)
	return err
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	counts     map[string][]float64
	sums       map[string]float64
	totals     map[string]float64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	return &HistogramVec{
		name:       name,
		help:       help,
		labelNames: labels,
		buckets:    buckets,
		counts:     map[string][]float64{},
		sums:       map[string]float64{},
		totals:     map[string]float64{},
	}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	counts, ok := h.counts[lbl]
	if !ok {
		counts = make([]float64, len(h.buckets))
		h.counts[lbl] = counts
	}
	for i, bound := range h.buckets {
		if v <= bound {
			counts[i]++
		}
	}
	h.sums[lbl] += v
	h.totals[lbl]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.counts))
	for k := range h.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, lbl := range keys {
		trimmed := strings.TrimSuffix(strings.TrimPrefix(lbl, "{"), "}")
		for i, bound := range h.buckets {
			boundLbl := fmt.Sprintf("le=%q", fmt.Sprintf("%g", bound))
			if trimmed != "" {
				boundLbl = trimmed + "," + boundLbl
			}
			if _, err := fmt.Fprintf(w, "%s_bucket{%s} %f\n", h.name, boundLbl, h.counts[lbl][i]); err != nil {
				return err
			}
		}
		infLbl := `le="+Inf"`
		if trimmed != "" {
			infLbl = trimmed + "," + infLbl
		}
		if _, err := fmt.Fprintf(w, "%s_bucket{%s} %f\n", h.name, infLbl, h.totals[lbl]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n", h.name, lbl, h.sums[lbl]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %f\n", h.name, lbl, h.totals[lbl]); err != nil {
			return err
		}
	}
	return nil
}
