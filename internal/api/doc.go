// Package api hosts the HTTP server, middleware, and REST handlers for the
// release tracker. Notable routes:
//   - GET /healthz and /readyz for probes; readyz reports the storage mode.
//   - GET /metrics for Prometheus scraping.
//   - /v1/releases and /v1/webhooks for administrative CRUD.
//   - GET /v1/settings and POST /v1/refresh for refresh control.
package api
