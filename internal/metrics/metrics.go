package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "korner_support"

// AlertMetrics counts ticket alert deliveries by outcome.
type AlertMetrics struct {
	Deliveries *prometheus.CounterVec
	Sweeps     prometheus.Counter
}

func NewAlertMetrics(reg prometheus.Registerer) (*AlertMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "deliveries_total",
		Help:      "Ticket alert delivery attempts partitioned by trigger and outcome.",
	}, []string{"trigger", "status"})
	if err := reg.Register(deliveries); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register deliveries collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing deliveries collector has unexpected type %T", already.ExistingCollector)
		}
		deliveries = existing
	}

	sweeps := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "retry_sweeps_total",
		Help:      "Completed alert re-delivery sweeps.",
	})
	if err := reg.Register(sweeps); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register sweeps collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("existing sweeps collector has unexpected type %T", already.ExistingCollector)
		}
		sweeps = existing
	}

	return &AlertMetrics{Deliveries: deliveries, Sweeps: sweeps}, nil
}

func (m *AlertMetrics) ObserveDelivery(trigger, status string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(trigger, status).Inc()
}

func (m *AlertMetrics) ObserveSweep() {
	if m == nil {
		return
	}
	m.Sweeps.Inc()
}
