/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AuditMetrics holds Prometheus metrics for the audit sink.
type AuditMetrics struct {
	// EventsTotal counts audit events by operation and success.
	EventsTotal *prometheus.CounterVec
	// WriteErrors counts batch write failures by operation.
	WriteErrors *prometheus.CounterVec
	// WriteDuration tracks batch write latency by operation.
	WriteDuration *prometheus.HistogramVec
	// BufferDrops counts events dropped due to a full buffer, by operation.
	BufferDrops *prometheus.CounterVec
	// QueriesTotal counts audit log queries.
	QueriesTotal prometheus.Counter
	// QueryDuration tracks audit query latency.
	QueryDuration prometheus.Histogram
}

// NewAuditMetrics creates and registers all Prometheus metrics for the audit sink.
func NewAuditMetrics() *AuditMetrics {
	return &AuditMetrics{
		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "codeops_vault_audit_events_total",
			Help: "Total number of audit events logged",
		}, []string{"operation", "success"}),

		WriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "codeops_vault_audit_write_errors_total",
			Help: "Total number of audit write errors",
		}, []string{"operation"}),

		WriteDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeops_vault_audit_write_duration_seconds",
			Help:    "Duration of audit log batch writes",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		BufferDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "codeops_vault_audit_buffer_drops_total",
			Help: "Total number of audit events dropped due to full buffer",
		}, []string{"operation"}),

		QueriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "codeops_vault_audit_queries_total",
			Help: "Total number of audit log queries",
		}),

		QueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "codeops_vault_audit_query_duration_seconds",
			Help:    "Duration of audit log queries",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// NewAuditMetricsWithRegistry creates audit metrics with a custom registry for testing.
func NewAuditMetricsWithRegistry(reg *prometheus.Registry) *AuditMetrics {
	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codeops_vault_audit_events_total",
		Help: "Total number of audit events logged",
	}, []string{"operation", "success"})

	writeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codeops_vault_audit_write_errors_total",
		Help: "Total number of audit write errors",
	}, []string{"operation"})

	writeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codeops_vault_audit_write_duration_seconds",
		Help:    "Duration of audit log batch writes",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	bufferDrops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codeops_vault_audit_buffer_drops_total",
		Help: "Total number of audit events dropped due to full buffer",
	}, []string{"operation"})

	queriesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "codeops_vault_audit_queries_total",
		Help: "Total number of audit log queries",
	})

	queryDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "codeops_vault_audit_query_duration_seconds",
		Help:    "Duration of audit log queries",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(
		eventsTotal, writeErrors, writeDuration,
		bufferDrops, queriesTotal, queryDuration,
	)

	return &AuditMetrics{
		EventsTotal:   eventsTotal,
		WriteErrors:   writeErrors,
		WriteDuration: writeDuration,
		BufferDrops:   bufferDrops,
		QueriesTotal:  queriesTotal,
		QueryDuration: queryDuration,
	}
}
