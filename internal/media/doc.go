// Package media implements native still-image transforms.
//
// libvips (through govips) is preferred when InitVips has been called; the
// pure-Go imaging library is the fallback so the service still works where
// libvips is not installed. These functions are CPU bound and synchronous,
// and the pipeline runs them through the parallel bridge.
package media
