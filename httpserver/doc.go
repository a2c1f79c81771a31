/*
Package httpserver implements the HTTP API of the diploma certificate registry.

It exposes the registry transaction processor over JSON endpoints, appends the
events each successful transaction emits to the audit log, and maps typed
rejections onto HTTP status codes. The server also carries the operational
endpoints a load balancer needs for zero-downtime rollouts.

# Certificate API

  - POST /api/certificates - submit a signed issuance transaction
  - GET /api/certificates/{certificate_id} - fetch the full record
  - GET /api/certificates/{certificate_id}/status - lifecycle status only
  - POST /api/certificates/{certificate_id}/revoke - revoke an active certificate

# Governance API

  - GET /api/issuers - current issuer allow-list
  - POST /api/governance/proposals - propose an allow-list change (admin only)
  - GET /api/governance/proposals/{proposal_id} - inspect a proposal
  - POST /api/governance/proposals/{proposal_id}/approve - approve as an issuer
  - POST /api/governance/proposals/{proposal_id}/execute - execute at threshold (admin only)
  - PUT /api/governance/threshold - update the approval threshold (admin only)

# Audit API

  - GET /api/events?after=N - replay the append-only event log

# Error Mapping

Registry rejections carry a category that translates directly to a status
code: authorization failures return 403, state conflicts 409, validation
failures 400 (404 for missing records), signature failures 401. The JSON
error body repeats the category so clients don't need to parse messages.

# Operational Endpoints

  - GET /livez - liveness check
  - GET /readyz - readiness check
  - GET /drain - mark not ready and wait out the drain period
  - GET /undrain - mark ready again
  - /debug - pprof handlers, when enabled

Prometheus metrics are served from a separate listener so scrapes keep
working while the API drains.
*/
package httpserver
