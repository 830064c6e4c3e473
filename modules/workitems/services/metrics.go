package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	allocatedTotal *prometheus.CounterVec
	fallbackTotal  *prometheus.CounterVec
	retryTotal     prometheus.Counter
	migratedTotal  *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		allocatedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workitem_ids",
			Name:      "allocated_total",
			Help:      "Total number of DD/MM/YY/NNN ids handed out.",
		}, []string{"mode"}),
		fallbackTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workitem_ids",
			Name:      "fallback_total",
			Help:      "Total number of legacy-shaped fallback ids handed out.",
		}, []string{"reason"}),
		retryTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "workitem_ids",
			Name:      "insert_retry_total",
			Help:      "Total number of inserts retried after an id conflict.",
		}),
		migratedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workitem_ids",
			Name:      "migrated_total",
			Help:      "Total number of legacy ids processed by the migration commit phase.",
		}, []string{"result"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
