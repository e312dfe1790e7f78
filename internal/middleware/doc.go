// Package middleware provides HTTP middleware for the media-forge API.
//
// It includes:
//   - Request ids (X-Request-ID), propagated through the request context
//   - One access log line per request, with optional health check filtering
//   - Prometheus request metrics labelled by mux route template
package middleware
