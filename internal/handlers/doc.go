// Package handlers provides the HTTP API of media-forge.
//
// It includes handlers for:
//   - Running a transform on downloaded media (POST /api/process/{name})
//   - Listing the transform catalog and the queue state
//   - Health, liveness, readiness and version endpoints
package handlers
