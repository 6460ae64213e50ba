// Package metrics exposes scheduler and allocator accounting as
// Prometheus collectors, in the spirit of the retrieved
// google-schedviz scheduler-metrics service: a kernel this size has
// no business shipping its own metrics wire format when the
// ecosystem's client library already does gauges/counters/histograms
// correctly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// PageMetrics tracks the page allocator's frame pool.
type PageMetrics struct {
	free  prometheus.Gauge
	total prometheus.Gauge
}

// NewPageMetrics registers (or, if already registered, reuses) the
// page-allocator gauges against reg.
func NewPageMetrics(reg prometheus.Registerer) *PageMetrics {
	m := &PageMetrics{
		free: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kernel_page_frames_free",
			Help: "Number of physical page frames currently on the free list.",
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kernel_page_frames_total",
			Help: "Total physical page frames under allocator management.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.free, m.total)
	}
	return m
}

func (m *PageMetrics) SetFree(v float64)  { m.free.Set(v) }
func (m *PageMetrics) SetTotal(v float64) { m.total.Set(v) }

// SchedMetrics tracks scheduler activity.
type SchedMetrics struct {
	ContextSwitches prometheus.Counter
	Reschedules     prometheus.Counter
	RunqDepth       *prometheus.GaugeVec // label: scope (cpu|group|system), policy
	Preemptions     prometheus.Counter
}

// NewSchedMetrics registers the scheduler collectors against reg.
func NewSchedMetrics(reg prometheus.Registerer) *SchedMetrics {
	m := &SchedMetrics{
		ContextSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_sched_context_switches_total",
			Help: "Total context switches performed by reschedule().",
		}),
		Reschedules: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_sched_reschedules_total",
			Help: "Total calls to reschedule(), including no-op ones.",
		}),
		RunqDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kernel_sched_runqueue_depth",
			Help: "Runnable thread count per run-queue scope and policy.",
		}, []string{"scope", "policy"}),
		Preemptions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_sched_preemptions_total",
			Help: "Total preemptions triggered by enqueue, tick, or IPI.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ContextSwitches, m.Reschedules, m.RunqDepth, m.Preemptions)
	}
	return m
}
