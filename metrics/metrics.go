package metrics

import (
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warriorguo/dagflow/types"
)

// Recorder receives the execution events the orchestrator reports.
type Recorder interface {
	InstanceStarted(definitionID string)
	InstanceFinished(definitionID string, state types.State, elapsed time.Duration)
	NodeExecuted(kind types.NodeKind, err error, elapsed time.Duration)
}

var (
	_ Recorder = &Collector{}
	_ Recorder = Nop{}
)

// Nop drops every event.
type Nop struct{}

func (Nop) InstanceStarted(string)                              {}
func (Nop) InstanceFinished(string, types.State, time.Duration) {}
func (Nop) NodeExecuted(types.NodeKind, error, time.Duration)   {}

// Collector implements Recorder with prometheus metrics.
type Collector struct {
	instancesStarted  *prometheus.CounterVec
	instancesFinished *prometheus.CounterVec
	instanceDuration  *prometheus.HistogramVec
	activeInstances   prometheus.Gauge
	nodesExecuted     *prometheus.CounterVec
	nodeDuration      *prometheus.HistogramVec
}

// NewCollector registers the dagflow metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		instancesStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagflow_instances_started_total",
				Help: "Total number of workflow instances started",
			},
			[]string{"definition"},
		),
		instancesFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagflow_instances_finished_total",
				Help: "Total number of workflow instances that reached a terminal state",
			},
			[]string{"definition", "state"},
		),
		instanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dagflow_instance_duration_seconds",
				Help:    "Time from instance start to its terminal state",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800},
			},
			[]string{"definition", "state"},
		),
		activeInstances: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagflow_active_instances",
				Help: "Number of started instances not yet terminal",
			},
		),
		nodesExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagflow_nodes_executed_total",
				Help: "Total number of node dispatches",
			},
			[]string{"kind", "status"},
		),
		nodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dagflow_node_duration_seconds",
				Help:    "Node dispatch duration in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
	}
}

func (c *Collector) InstanceStarted(definitionID string) {
	c.instancesStarted.WithLabelValues(definitionID).Inc()
	c.activeInstances.Inc()
}

func (c *Collector) InstanceFinished(definitionID string, state types.State, elapsed time.Duration) {
	c.instancesFinished.WithLabelValues(definitionID, state.String()).Inc()
	c.instanceDuration.WithLabelValues(definitionID, state.String()).Observe(elapsed.Seconds())
	c.activeInstances.Dec()
}

func (c *Collector) NodeExecuted(kind types.NodeKind, err error, elapsed time.Duration) {
	status := "success"
	switch {
	case errors.Is(err, types.ErrNotReady):
		status = "waiting"
	case err != nil:
		status = "failure"
	}
	c.nodesExecuted.WithLabelValues(kind.String(), status).Inc()
	c.nodeDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}
