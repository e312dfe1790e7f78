package process

import (
	"context"

	"media-forge/internal/mediatype"
	"media-forge/internal/tempfile"
)

// Mode selects how a transform is executed once admitted.
type Mode int

const (
	// Async transforms already block only on I/O (external tools) and run
	// on the request goroutine.
	Async Mode = iota
	// Parallel transforms call into native libraries and run on their own
	// OS thread through the parallel bridge.
	Parallel
	// Inline transforms are synchronous but cheap; they run in place and
	// are logged as such.
	Inline
)

func (m Mode) String() string {
	switch m {
	case Parallel:
		return "parallel"
	case Inline:
		return "inline"
	default:
		return "async"
	}
}

// Post selects the step applied to a transform's file output before it is
// re-encoded.
type Post int

const (
	// PostNone leaves the output as produced.
	PostNone Post = iota
	// PostKeepAnimated tags the output as GIF when the first input is one,
	// carrying its loop count over.
	PostKeepAnimated
	// PostPairAnimated tags the output as GIF when any input is a GIF and
	// none is a video.
	PostPairAnimated
)

func (p Post) String() string {
	switch p {
	case PostKeepAnimated:
		return "keep-animated"
	case PostPairAnimated:
		return "pair-animated"
	default:
		return "none"
	}
}

// Args are the non-media arguments of a request.
type Args map[string]string

// Output is what a transform produces: a file, or text.
type Output struct {
	File *tempfile.File
	Text string
}

// Func is a transform body. Inputs are already validated and normalized;
// new files must be reserved in the session carried by ctx.
type Func func(ctx context.Context, inputs []*tempfile.File, args Args) (Output, error)

// Transform describes one operation a request can ask for.
type Transform struct {
	Name        string
	Description string

	// Inputs holds one set of accepted kinds per positional media
	// argument. An empty set accepts any kind.
	Inputs [][]mediatype.Kind

	Mode Mode
	Post Post

	// ExpectFile is true when the transform returns a file that must be
	// re-encoded and size-fitted; false when it returns text.
	ExpectFile bool

	// KeepResolution skips resolution normalization of the inputs.
	KeepResolution bool

	Run Func
}

func (t *Transform) expected() string {
	if t.ExpectFile {
		return "file"
	}
	return "text"
}

// applyPost runs the post step for p on out.
func applyPost(ctx context.Context, p Post, inputs []*tempfile.File, out *tempfile.File, c tempfile.Classifier) error {
	switch p {
	case PostKeepAnimated:
		if len(inputs) == 0 {
			return nil
		}
		k, err := inputs[0].Kind(ctx, c)
		if err != nil {
			return err
		}
		if k == mediatype.GIF {
			out.KindOverride = mediatype.GIF
			if n, ok := inputs[0].Loop(); ok {
				out.SetLoopCount(n)
			}
		}

	case PostPairAnimated:
		var gif, video bool
		for _, in := range inputs {
			k, err := in.Kind(ctx, c)
			if err != nil {
				return err
			}
			gif = gif || k == mediatype.GIF
			video = video || k == mediatype.Video
		}
		if gif && !video {
			out.KindOverride = mediatype.GIF
		}
	}
	return nil
}
