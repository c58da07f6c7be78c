// Package metrics содержит prometheus-метрики операций с документами.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docmanager/internal/domain"
)

type Metrics struct {
	DocumentsCreated    prometheus.Counter
	VersionsAdded       prometheus.Counter
	VersionsReused      prometheus.Counter
	DuplicatesRejected  prometheus.Counter
	IdentifiersAssigned *prometheus.CounterVec
	IdentifierStrips    *prometheus.CounterVec
	OperationErrors     *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DocumentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docmanager",
			Name:      "documents_created_total",
			Help:      "Number of documents created.",
		}),
		VersionsAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docmanager",
			Name:      "versions_added_total",
			Help:      "Number of document versions appended to the ledger.",
		}),
		VersionsReused: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docmanager",
			Name:      "versions_reused_total",
			Help:      "Uploads whose content matched an existing version.",
		}),
		DuplicatesRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docmanager",
			Name:      "duplicate_uploads_rejected_total",
			Help:      "Strict uploads rejected because the content already exists.",
		}),
		IdentifiersAssigned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docmanager",
			Name:      "owner_identifiers_assigned_total",
			Help:      "Owner identifiers written, by owner kind.",
		}, []string{"kind"}),
		IdentifierStrips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docmanager",
			Name:      "owner_identifier_updates_stripped_total",
			Help:      "Bulk updates that tried to change an owner identifier.",
		}, []string{"kind"}),
		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docmanager",
			Name:      "operation_errors_total",
			Help:      "Failed operations by operation and error kind.",
		}, []string{"operation", "kind"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docmanager",
			Name:      "operation_duration_seconds",
			Help:      "Duration of document and ledger operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Observe фиксирует длительность операции и, при ошибке, ее вид.
// Безопасно вызывать на nil.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		kind := string(domain.KindOf(err))
		if kind == "" {
			kind = "internal"
		}
		m.OperationErrors.WithLabelValues(operation, kind).Inc()
	}
}

func (m *Metrics) IncDocumentsCreated() {
	if m != nil {
		m.DocumentsCreated.Inc()
	}
}

func (m *Metrics) IncVersionsAdded() {
	if m != nil {
		m.VersionsAdded.Inc()
	}
}

func (m *Metrics) IncVersionsReused() {
	if m != nil {
		m.VersionsReused.Inc()
	}
}

func (m *Metrics) IncDuplicatesRejected() {
	if m != nil {
		m.DuplicatesRejected.Inc()
	}
}

func (m *Metrics) IncIdentifierAssigned(kind string) {
	if m != nil {
		m.IdentifiersAssigned.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncIdentifierStripped(kind string) {
	if m != nil {
		m.IdentifierStrips.WithLabelValues(kind).Inc()
	}
}
