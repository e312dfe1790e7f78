// Package download fetches request inputs over HTTP into temp files owned
// by the request's session. Non-2xx responses, unreachable hosts and
// downloads over the configured size limit are reported as user errors.
package download
