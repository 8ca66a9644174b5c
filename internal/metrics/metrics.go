package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the sync layer.
type Metrics struct {
	SyncRuns       *prometheus.CounterVec
	RecordsSynced  *prometheus.CounterVec
	APIRequests    *prometheus.CounterVec
	TokenRefreshes prometheus.Counter
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visma_sync_runs_total",
			Help: "Sync runs by entity type and result.",
		}, []string{"entity", "result"}),
		RecordsSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visma_sync_records_total",
			Help: "Records processed by entity type, direction and outcome.",
		}, []string{"entity", "direction", "outcome"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visma_api_requests_total",
			Help: "Outbound Visma.net API requests by method and status class.",
		}, []string{"method", "status"}),
		TokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visma_token_refreshes_total",
			Help: "OAuth access token refreshes performed.",
		}),
	}
	reg.MustRegister(m.SyncRuns, m.RecordsSynced, m.APIRequests, m.TokenRefreshes)
	return m
}

// ObserveRun is nil-safe so components can take an optional *Metrics.
func (m *Metrics) ObserveRun(entity, result string) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(entity, result).Inc()
}

// ObserveRecord counts one record outcome; nil-safe.
func (m *Metrics) ObserveRecord(entity, direction, outcome string) {
	if m == nil {
		return
	}
	m.RecordsSynced.WithLabelValues(entity, direction, outcome).Inc()
}

// ObserveAPIRequest counts one outbound request; nil-safe.
func (m *Metrics) ObserveAPIRequest(method, status string) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(method, status).Inc()
}

// ObserveTokenRefresh counts one refresh; nil-safe.
func (m *Metrics) ObserveTokenRefresh() {
	if m == nil {
		return
	}
	m.TokenRefreshes.Inc()
}
