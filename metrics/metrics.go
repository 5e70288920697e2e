// Package metrics collects Prometheus metrics for compilations and
// executions. Metrics are exported to a node-exporter textfile rather than
// served over the network.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chazu/kestrel/vm"
)

const namespace = "kestrel"

// Collector holds the toolchain metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	compilations    *prometheus.CounterVec
	compileDuration prometheus.Histogram
	diagnostics     *prometheus.CounterVec

	executions      *prometheus.CounterVec
	executeDuration prometheus.Histogram
	runtimeErrors   *prometheus.CounterVec
	instructions    prometheus.Counter

	cacheLookups *prometheus.CounterVec
}

// New creates a collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,

		compilations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compiler",
			Name:      "compilations_total",
			Help:      "Compilation units processed, by result",
		}, []string{"result"}),
		compileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compiler",
			Name:      "duration_seconds",
			Help:      "Time spent compiling one unit",
			Buckets:   prometheus.DefBuckets,
		}),
		diagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compiler",
			Name:      "diagnostics_total",
			Help:      "Diagnostics reported, by message id",
		}, []string{"id"}),

		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "executions_total",
			Help:      "Programs executed, by result",
		}, []string{"result"}),
		executeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "duration_seconds",
			Help:      "Time spent executing one program",
			Buckets:   prometheus.DefBuckets,
		}),
		runtimeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "runtime_errors_total",
			Help:      "Runtime errors raised, by message id",
		}, []string{"id"}),
		instructions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "instructions_total",
			Help:      "Bytecode instructions executed",
		}),

		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Compiled image cache lookups, by result",
		}, []string{"result"}),
	}
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// ObserveCompile records one compilation and the message ids of its
// diagnostics.
func (c *Collector) ObserveCompile(elapsed time.Duration, diagnosticIDs []string) {
	c.compilations.WithLabelValues(result(len(diagnosticIDs) == 0)).Inc()
	c.compileDuration.Observe(elapsed.Seconds())
	for _, id := range diagnosticIDs {
		c.diagnostics.WithLabelValues(id).Inc()
	}
}

// ObserveExecute records one execution. Runtime errors are counted by
// message id; other errors as "other".
func (c *Collector) ObserveExecute(elapsed time.Duration, instructions uint64, err error) {
	c.executions.WithLabelValues(result(err == nil)).Inc()
	c.executeDuration.Observe(elapsed.Seconds())
	c.instructions.Add(float64(instructions))
	if err == nil {
		return
	}
	id := "other"
	var re *vm.RuntimeError
	if errors.As(err, &re) {
		id = re.MessageID
	}
	c.runtimeErrors.WithLabelValues(id).Inc()
}

// ObserveCacheLookup records a cache hit or miss.
func (c *Collector) ObserveCacheLookup(hit bool) {
	label := "miss"
	if hit {
		label = "hit"
	}
	c.cacheLookups.WithLabelValues(label).Inc()
}

// WriteToTextfile writes every metric in the Prometheus text format,
// atomically replacing path.
func (c *Collector) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
