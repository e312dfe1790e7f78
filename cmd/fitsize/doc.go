// Command fitsize runs media-forge's size fitting and probing on local
// files, without the HTTP server.
//
// Usage:
//
//	fitsize <command> [flags] <file>
//
// Commands:
//
//	fit       Shrink a file until it fits the upload limit and write the
//	          result to --out.
//	probe     Print duration, resolution, frame rate and codecs.
//	classify  Print the media kind (VIDEO, GIF, AUDIO or IMAGE).
//
// Limits and tool paths come from the same YAML file and environment
// variables as the server (MEDIAFORGE_CONFIG, UPLOAD_SIZE_LIMIT, ...).
// Output is human readable on a terminal and JSON otherwise; --json
// forces JSON.
package main
