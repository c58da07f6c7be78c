package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"docmanager/internal/domain"
)

func TestObserveCountsErrorsByKind(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Observe("add_version", time.Now(), nil)
	m.Observe("add_version", time.Now(), domain.ErrDuplicateContent)
	m.Observe("add_version", time.Now(), errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationErrors.WithLabelValues("add_version", "duplicate_content")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationErrors.WithLabelValues("add_version", "internal")))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Observe("create", time.Now(), errors.New("x"))
		m.IncDocumentsCreated()
		m.IncIdentifierAssigned("organization")
	})
}
