package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()
	m.Transaction("2.0.0", "ok")
	m.Transaction("2.0.0", "ok")
	m.Transaction("1.0.0", "fault")
	m.Action("2.0.0", "Insert")
	m.Fault("OperationParsingFailed")

	body := scrape(t, m)
	require.Contains(t, body, `wfs_proxy_transactions_total{outcome="ok",version="2.0.0"} 2`)
	require.Contains(t, body, `wfs_proxy_transactions_total{outcome="fault",version="1.0.0"} 1`)
	require.Contains(t, body, `wfs_proxy_actions_total{kind="Insert",version="2.0.0"} 1`)
	require.Contains(t, body, `wfs_proxy_faults_total{code="OperationParsingFailed"} 1`)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, families, 3)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Fault("NoApplicableCode")
	require.NotContains(t, scrape(t, b), "wfs_proxy_faults_total")
}
