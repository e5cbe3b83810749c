package observability

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets", http.MethodPost, http.StatusCreated, 20*time.Millisecond)
	m.RecordRequest("/tickets", http.MethodPost, http.StatusCreated, 10*time.Millisecond)
	m.RecordError("/admin/tickets/:id/start", http.MethodPost, "CONFLICT")
	m.RecordSoftFailure("attachment")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/tickets|POST|201"])
	assert.Equal(t, int64(1), snap.Errors["/admin/tickets/:id/start|POST|CONFLICT"])
	assert.Equal(t, int64(1), snap.SoftFailures["attachment"])

	snap.SoftFailures["attachment"] = 99
	assert.Equal(t, int64(1), m.Snapshot().SoftFailures["attachment"])
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", http.MethodGet, http.StatusOK, time.Millisecond)
	m.RecordSoftFailure("notification")
	assert.Empty(t, m.Snapshot().Requests)
}
