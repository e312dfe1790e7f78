// Package mediatype classifies files into the four kinds the pipeline
// understands: VIDEO, AUDIO, IMAGE and GIF (any animated image).
//
// Classification first decodes the image header with the standard library
// and golang.org/x/image decoders (webp, bmp, tiff), treating multi-frame
// gifs, APNGs and animated WebPs as GIF. Anything else is handed to an
// ffprobe-backed StreamProber. Files that fit neither path produce an
// InvalidError, which the request layer reports as an unsupported file.
package mediatype
