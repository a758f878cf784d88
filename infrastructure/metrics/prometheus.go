// Package metrics records host telemetry with Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/ports"
)

const namespace = "reglet_script"

// Recorder implements ports.MetricsRecorder.
type Recorder struct {
	Decisions        *prometheus.CounterVec
	ModuleLoads      *prometheus.CounterVec
	ModuleLoadTime   *prometheus.HistogramVec
	HostCalls        *prometheus.CounterVec
	HostCallDuration *prometheus.HistogramVec
}

var _ ports.MetricsRecorder = (*Recorder)(nil)

// NewRecorder registers the host metrics with reg. A nil reg uses the
// default registerer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broker_decisions_total",
				Help:      "Permission broker decisions by capability and outcome",
			},
			[]string{"capability", "allowed"},
		),
		ModuleLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "module_loads_total",
				Help:      "Module fetches by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		ModuleLoadTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "module_load_duration_seconds",
				Help:      "Module fetch duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"kind"},
		),
		HostCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "host_calls_total",
				Help:      "Host-call dispatches by op and status",
			},
			[]string{"op", "status"},
		),
		HostCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "host_call_duration_seconds",
				Help:      "Host-call duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"op"},
		),
	}
}

// RecordDecision counts one broker decision.
func (r *Recorder) RecordDecision(c entities.Capability, allowed bool) {
	r.Decisions.WithLabelValues(c.String(), strconv.FormatBool(allowed)).Inc()
}

// RecordModuleLoad observes one module fetch.
func (r *Recorder) RecordModuleLoad(kind entities.ModuleKind, outcome string, d time.Duration) {
	r.ModuleLoads.WithLabelValues(kind.String(), outcome).Inc()
	r.ModuleLoadTime.WithLabelValues(kind.String()).Observe(d.Seconds())
}

// RecordHostCall observes one host-call dispatch.
func (r *Recorder) RecordHostCall(name, status string, d time.Duration) {
	r.HostCalls.WithLabelValues(name, status).Inc()
	r.HostCallDuration.WithLabelValues(name).Observe(d.Seconds())
}
