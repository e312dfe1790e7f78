// Package transforms is the catalog of operations a request can name.
//
// Each entry declares the media kinds it accepts per input, how it runs
// (external tools on the request goroutine, or libvips on a parallel
// worker), its output post step and whether it returns a file or text.
// Arguments arrive as strings and are validated here; bad values are user
// errors.
package transforms
