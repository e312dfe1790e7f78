// Package fitter makes output artifacts fit an upload size limit.
//
// Videos are re-encoded with two-pass rate control at a bitrate derived
// from the byte budget and duration; images and animations are downscaled
// by the square root of the size ratio. Both walk a descending cascade of
// tolerances (0.98 down to 0.1) and fail with a user-facing error when no
// tolerance lands under the limit. Every attempt is a separate queue job
// and a fresh temp file in the request's session.
package fitter
