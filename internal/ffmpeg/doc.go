// Package ffmpeg wraps the ffmpeg and ffprobe command line tools.
//
// Runner executes the tools and reports non-zero exits as *CommandError with
// the tool's output attached. Prober reads durations, resolutions, frame
// rates, codecs and gif loop counts. Encoder performs the media operations
// the pipeline needs (resize, trim, fps change, canonical re-encode and
// two-pass bitrate targeting); each reserves its output in the temp file
// session carried by the context, so callers never clean up after it.
package ffmpeg
