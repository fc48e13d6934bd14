// Package api hosts the HTTP server, middleware, and handlers. Routes:
//   - GET / serves the lookup form.
//   - GET /{ref} downloads the report PDF for a parcel.
//   - POST /generate-pdf downloads the report for the submitted form field ref_catastral.
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
package api
