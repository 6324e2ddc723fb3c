package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gantryio/gantry/internal/engine"
	"github.com/gantryio/gantry/pkg/domain"
)

// Collector holds the engine's prometheus instruments.
type Collector struct {
	transitions  *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	gateFailures prometheus.Counter
	materialized prometheus.Counter
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gantry",
			Name:      "transitions_total",
			Help:      "Applied status transitions by entity type and target status.",
		}, []string{"entity_type", "status"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gantry",
			Name:      "transition_rejections_total",
			Help:      "Rejected commands by entity type and reason.",
		}, []string{"entity_type", "reason"}),
		gateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gantry",
			Name:      "control_gate_failures_total",
			Help:      "Phase-complete attempts vetoed by critical controls.",
		}),
		materialized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gantry",
			Name:      "materialized_entities_total",
			Help:      "Instances created by plan materializations.",
		}),
	}
	reg.MustRegister(c.transitions, c.rejections, c.gateFailures, c.materialized)
	return c
}

// Hooks adapts the collector to the engine's observability callbacks.
func (c *Collector) Hooks() engine.Hooks {
	return engine.Hooks{
		OnTransition: func(event domain.TransitionEvent) {
			c.transitions.WithLabelValues(string(event.EntityType), string(event.NewStatus)).Inc()
		},
		OnRejection: func(entityType domain.EntityType, reason string) {
			c.rejections.WithLabelValues(string(entityType), reason).Inc()
		},
		OnGateFailure: func(phaseID string, failing int) {
			c.gateFailures.Inc()
		},
		OnMaterialize: func(count int) {
			c.materialized.Add(float64(count))
		},
	}
}
