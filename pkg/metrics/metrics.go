// Package metrics exposes operational counters and gauges as
// prometheus collectors. A nil *Recorder is a valid no-op, so
// components take one without caring whether metrics are wired.
package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "gbp"

// Recorder registers and feeds the prometheus collectors
type Recorder struct {
	once sync.Once

	pulls         *prom.CounterVec
	publishes     *prom.CounterVec
	pruned        *prom.CounterVec
	taskFailures  *prom.CounterVec
	pullDuration  prom.Histogram
	storedNodes   prom.Gauge
	storedBytes   prom.Gauge
	machineBuilds *prom.GaugeVec
}

// NewRecorder constructs the collectors and registers them with reg,
// or with a private registry when reg is nil
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{}
	r.once.Do(func() {
		r.pulls = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pulls_total",
			Help:      "Completed artifact pulls by machine",
		}, []string{"machine"})
		r.publishes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Publish pointer swaps by machine",
		}, []string{"machine"})
		r.pruned = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_builds_total",
			Help:      "Builds removed by retention pruning",
		}, []string{"machine"})
		r.taskFailures = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "task_failures_total",
			Help:      "Permanently failed orchestrator tasks by name",
		}, []string{"task"})
		r.pullDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "pull_duration_seconds",
			Help:      "Fetch-to-commit duration of one pull",
			Buckets:   prom.DefBuckets,
		})
		r.storedNodes = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_nodes",
			Help:      "Content nodes currently referenced in the store",
		})
		r.storedBytes = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_bytes",
			Help:      "Deduplicated bytes held by referenced content nodes",
		})
		r.machineBuilds = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "machine_builds",
			Help:      "Committed builds per machine",
		}, []string{"machine"})
		reg.MustRegister(r.pulls, r.publishes, r.pruned, r.taskFailures,
			r.pullDuration, r.storedNodes, r.storedBytes, r.machineBuilds)
	})
	return r
}

func (r *Recorder) IncPull(machine string) {
	if r == nil {
		return
	}
	r.pulls.WithLabelValues(machine).Inc()
}

func (r *Recorder) IncPublish(machine string) {
	if r == nil {
		return
	}
	r.publishes.WithLabelValues(machine).Inc()
}

func (r *Recorder) IncPruned(machine string) {
	if r == nil {
		return
	}
	r.pruned.WithLabelValues(machine).Inc()
}

func (r *Recorder) IncTaskFailure(task string) {
	if r == nil {
		return
	}
	r.taskFailures.WithLabelValues(task).Inc()
}

func (r *Recorder) ObservePullDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.pullDuration.Observe(d.Seconds())
}

func (r *Recorder) SetStoredNodes(count, bytes int64) {
	if r == nil {
		return
	}
	r.storedNodes.Set(float64(count))
	r.storedBytes.Set(float64(bytes))
}

func (r *Recorder) SetMachineBuilds(machine string, count int) {
	if r == nil {
		return
	}
	r.machineBuilds.WithLabelValues(machine).Set(float64(count))
}
