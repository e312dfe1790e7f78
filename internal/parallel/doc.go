// Package parallel runs CPU-bound native work (libvips, pure-Go image
// encoders) on its own OS thread and splices the temp files it produced
// back into the caller's session.
package parallel
