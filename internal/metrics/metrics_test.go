package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Mutation("create")
	m.Mutation("create")
	m.PersistenceFailure(true)
	m.CorruptedLoad()
	m.Suggestion("ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Mutations.WithLabelValues("create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistenceFailures.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorruptedLoads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Suggestions.WithLabelValues("ok")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Mutation("create")
		m.PersistenceFailure(false)
		m.CorruptedLoad()
		m.Suggestion("error")
		m.Backup("ok")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Backup("ok")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `listmanager_backups_total{outcome="ok"} 1`)
}
