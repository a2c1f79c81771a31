// Package metrics exposes Prometheus counters for registry operations and a
// standalone metrics HTTP server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CertificatesIssued counts successfully issued certificates.
	CertificatesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diploma_registry_certificates_issued_total",
		Help: "Number of certificates issued",
	})

	// CertificatesRevoked counts successfully revoked certificates.
	CertificatesRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diploma_registry_certificates_revoked_total",
		Help: "Number of certificates revoked",
	})

	// RequestsRejected counts rejected operations by error category.
	RequestsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diploma_registry_requests_rejected_total",
		Help: "Number of rejected registry operations by error category",
	}, []string{"category"})

	// GovernanceProposals counts issuer governance proposals by action.
	GovernanceProposals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diploma_registry_governance_proposals_total",
		Help: "Number of issuer governance proposals by action",
	}, []string{"action"})

	// GovernanceExecutions counts executed issuer governance proposals.
	GovernanceExecutions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diploma_registry_governance_executions_total",
		Help: "Number of executed issuer governance proposals",
	})
)

// MetricsServer serves the Prometheus scrape endpoint on its own listener so
// metrics stay reachable while the API server drains.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given listen address.
func New(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe starts the metrics HTTP server and blocks until shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics HTTP server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
