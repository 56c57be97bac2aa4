package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters for the ingestion pipeline
type Metrics struct {
	AlertsIngested        *prometheus.CounterVec
	AlertsRejected        *prometheus.CounterVec
	IncidentsCreated      prometheus.Counter
	IncidentsAutoResolved prometheus.Counter
	EscalationsPerformed  prometheus.Counter
	FlapSuppressions      prometheus.Counter
	MaintenanceSuppressed prometheus.Counter
}

// New registers the pipeline metrics on the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AlertsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsewatch",
			Name:      "alerts_ingested_total",
			Help:      "Webhook alerts accepted, by source and normalized severity",
		}, []string{"source", "severity"}),
		AlertsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsewatch",
			Name:      "alerts_rejected_total",
			Help:      "Webhook payloads rejected before persistence, by source",
		}, []string{"source"}),
		IncidentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsewatch",
			Name:      "incidents_created_total",
			Help:      "Incidents opened by the correlation engine",
		}),
		IncidentsAutoResolved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsewatch",
			Name:      "incidents_auto_resolved_total",
			Help:      "Incidents closed because their last active alert resolved",
		}),
		EscalationsPerformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsewatch",
			Name:      "escalations_total",
			Help:      "Escalation level raises performed by the scheduler",
		}),
		FlapSuppressions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsewatch",
			Name:      "flap_suppressions_total",
			Help:      "Alerts withheld from incident creation by the flap filter",
		}),
		MaintenanceSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsewatch",
			Name:      "maintenance_suppressions_total",
			Help:      "Alerts withheld from incident creation by maintenance windows",
		}),
	}
}

// NewDefault registers the metrics on the default Prometheus registry
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
