package catalogapi

import (
	"github.com/c360studio/semstreams/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// catalogMetrics counts requests and ingestion outcomes.
type catalogMetrics struct {
	requests *prometheus.CounterVec
	ingested *prometheus.CounterVec
}

// newCatalogMetrics builds the counters and registers them when a registry is
// given. Without a registry the counters still work but are not exported.
func newCatalogMetrics(registry *metric.MetricsRegistry) (*catalogMetrics, error) {
	m := &catalogMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semtypes",
			Subsystem: "catalog",
			Name:      "requests_total",
			Help:      "Total catalog API requests by operation and status code",
		}, []string{"operation", "status"}),

		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semtypes",
			Subsystem: "catalog",
			Name:      "ingested_total",
			Help:      "Types and columns seen during model ingestion by outcome",
		}, []string{"kind", "outcome"}),
	}

	if registry == nil {
		return m, nil
	}
	if err := registry.RegisterCounterVec("catalog", "requests", m.requests); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("catalog", "ingested", m.ingested); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *catalogMetrics) observeIngest(typesCreated, typesExisted, columnsCreated, columnsExisted int) {
	m.ingested.WithLabelValues("type", "created").Add(float64(typesCreated))
	m.ingested.WithLabelValues("type", "existed").Add(float64(typesExisted))
	m.ingested.WithLabelValues("column", "created").Add(float64(columnsCreated))
	m.ingested.WithLabelValues("column", "existed").Add(float64(columnsExisted))
}
