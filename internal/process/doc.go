// Package process drives one request through the pipeline.
//
// A Processor resolves and downloads the request's media, checks each input
// against the kinds its transform accepts, and then runs a single queue job
// that normalizes the inputs, executes the transform (inline, or on its own
// thread through the parallel bridge), applies the output post step,
// re-encodes the result into its canonical codec and fits it to the upload
// limit.
//
// Every file produced along the way is reserved in the session carried by
// the request context. Only the returned artifact is released to the caller.
package process
