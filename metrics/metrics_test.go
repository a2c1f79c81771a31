package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsEndpoint(t *testing.T) {
	m := New("127.0.0.1:0")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	CertificatesIssued.Inc()
	RequestsRejected.WithLabelValues("validation").Inc()

	m.srv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "diploma_registry_certificates_issued_total")
	assert.Contains(t, body, `diploma_registry_requests_rejected_total{category="validation"}`)
}
