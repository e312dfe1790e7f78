package mediatype

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/gif"
	"io"
	"os"
	"strings"

	"media-forge/internal/logging"

	// Image format decoders
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Kind is the coarse classification the pipeline works with.
type Kind string

const (
	// Video is anything with more than one frame that is not an animated image.
	Video Kind = "VIDEO"
	// Audio has an audio stream and no frames.
	Audio Kind = "AUDIO"
	// Image is a single still frame.
	Image Kind = "IMAGE"
	// GIF is an animated image (gif, apng, animated webp).
	GIF Kind = "GIF"
)

// All lists every kind in classification priority order.
var All = []Kind{Video, GIF, Audio, Image}

// Parse converts a string such as "video" or "GIF" into a Kind.
func Parse(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range All {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// Animated reports whether the kind has more than one frame.
func (k Kind) Animated() bool {
	return k == Video || k == GIF
}

// Visual reports whether the kind has a resolution.
func (k Kind) Visual() bool {
	return k == Video || k == GIF || k == Image
}

// Contains reports whether k is in kinds. An empty set accepts anything.
func Contains(kinds []Kind, k Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

// Join renders a kind set for messages ("VIDEO, GIF").
func Join(kinds []Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

// InvalidError is returned when a file cannot be classified.
type InvalidError struct {
	Path   string
	Detail string
	Err    error
}

func (e *InvalidError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unknown media type for %s: %s: %v", e.Path, e.Detail, e.Err)
	}
	return fmt.Sprintf("unknown media type for %s: %s", e.Path, e.Detail)
}

func (e *InvalidError) Unwrap() error {
	return e.Err
}

// Stream is the subset of ffprobe stream data used for classification.
type Stream struct {
	CodecType string
	CodecName string
	// Packets is the counted packet total, or -1 when unknown. An unknown
	// count is treated as a single frame.
	Packets int
}

// StreamProber lists the streams of a file.
type StreamProber interface {
	Streams(ctx context.Context, path string) ([]Stream, error)
}

// Classifier decides the Kind of a file on disk. Header decoding is tried
// first since ffprobe is unreliable for still images; the prober is the
// fallback for containers.
type Classifier struct {
	Prober StreamProber
}

// NewClassifier creates a classifier backed by the given stream prober.
func NewClassifier(p StreamProber) *Classifier {
	return &Classifier{Prober: p}
}

// Classify returns the kind of the file at path.
func (c *Classifier) Classify(ctx context.Context, path string) (Kind, error) {
	k, ok, err := classifyHeader(path)
	if err != nil {
		return "", &InvalidError{Path: path, Detail: "unreadable", Err: err}
	}
	if ok {
		logging.Debug("identified %s as %s from image header", path, k)
		return k, nil
	}
	if c.Prober == nil {
		return "", &InvalidError{Path: path, Detail: "not a decodable image"}
	}
	streams, err := c.Prober.Streams(ctx, path)
	if err != nil {
		return "", &InvalidError{Path: path, Detail: "probe failed", Err: err}
	}
	return KindFromStreams(path, streams)
}

// KindFromStreams applies the stream priority rules: any multi-frame video
// stream makes a VIDEO (or GIF for the gif codec), audio comes next, and a
// single-frame stream is an IMAGE.
func KindFromStreams(path string, streams []Stream) (Kind, error) {
	var video, animated, audio, still bool
	for _, s := range streams {
		switch s.CodecType {
		case "audio":
			audio = true
		case "video":
			if s.Packets >= 0 && s.Packets != 1 {
				if s.CodecName == "gif" {
					animated = true
				} else {
					video = true
				}
			} else {
				still = true
			}
		}
	}
	switch {
	case video:
		return Video, nil
	case animated:
		return GIF, nil
	case audio:
		return Audio, nil
	case still:
		return Image, nil
	}
	return "", &InvalidError{Path: path, Detail: "no audio or video streams"}
}

// classifyHeader decodes just enough of the file to spot still and animated
// images. ok is false when the file is not an image format we can decode.
func classifyHeader(path string) (Kind, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s: %v", path, err)
		}
	}()

	r := bufio.NewReaderSize(f, 64*1024)
	head, err := r.Peek(64 * 1024)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", false, err
	}

	if isAnimatedWebP(head) || isAPNG(head) {
		return GIF, true, nil
	}

	_, format, err := image.DecodeConfig(r)
	if err != nil {
		return "", false, nil
	}
	if format != "gif" {
		return Image, true, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", false, err
	}
	g, err := gif.DecodeAll(f)
	if err != nil {
		return "", false, nil
	}
	if len(g.Image) > 1 {
		return GIF, true, nil
	}
	// single-frame gifs behave like stills everywhere downstream
	return Image, true, nil
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// isAPNG walks PNG chunks looking for acTL, which must precede IDAT.
func isAPNG(head []byte) bool {
	if !bytes.HasPrefix(head, pngSignature) {
		return false
	}
	pos := len(pngSignature)
	for pos+8 <= len(head) {
		length := int(binary.BigEndian.Uint32(head[pos : pos+4]))
		typ := string(head[pos+4 : pos+8])
		switch typ {
		case "acTL":
			return true
		case "IDAT", "IEND":
			return false
		}
		pos += 12 + length
	}
	return false
}

// isAnimatedWebP checks the VP8X animation flag.
func isAnimatedWebP(head []byte) bool {
	if len(head) < 21 || string(head[0:4]) != "RIFF" || string(head[8:12]) != "WEBP" {
		return false
	}
	return string(head[12:16]) == "VP8X" && head[20]&0x02 != 0
}
