package transforms

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"media-forge/internal/apperrors"
	"media-forge/internal/ffmpeg"
	"media-forge/internal/media"
	"media-forge/internal/mediatype"
	"media-forge/internal/process"
	"media-forge/internal/tempfile"
)

// Ops are the ffmpeg operations the catalog is built from.
type Ops interface {
	Resize(ctx context.Context, f *tempfile.File, width, height string, lockCodec bool) (*tempfile.File, error)
	Trim(ctx context.Context, f *tempfile.File, length, start float64) (*tempfile.File, error)
	ChangeFPS(ctx context.Context, f *tempfile.File, fps float64) (*tempfile.File, error)
	VideoToGIF(ctx context.Context, f *tempfile.File) (*tempfile.File, error)
	GIFToMP4(ctx context.Context, f *tempfile.File) (*tempfile.File, error)
	MediaToPNG(ctx context.Context, f *tempfile.File) (*tempfile.File, error)
}

// Describer summarizes a file for the info transform.
type Describer interface {
	Describe(ctx context.Context, path string) (*ffmpeg.Info, error)
}

// Limits bound user-supplied arguments.
type Limits struct {
	MaxResolution int
	MaxFPS        float64
}

// DefaultThumbnailSize is the bounding box side used when none is given.
const DefaultThumbnailSize = 256

var (
	visual   = []mediatype.Kind{mediatype.Video, mediatype.GIF, mediatype.Image}
	animated = []mediatype.Kind{mediatype.Video, mediatype.GIF}
)

// Catalog is the set of transforms requests can name.
type Catalog struct {
	byName map[string]*process.Transform
}

// New builds the catalog.
func New(ops Ops, d Describer, c tempfile.Classifier, l Limits) *Catalog {
	b := &builder{ops: ops, describe: d, classifier: c, limits: l}
	cat := &Catalog{byName: make(map[string]*process.Transform)}
	for _, t := range []*process.Transform{
		{
			Name:           "resize",
			Description:    "Resize to width x height pixels; -1 keeps the aspect ratio.",
			Inputs:         [][]mediatype.Kind{visual},
			ExpectFile:     true,
			KeepResolution: true,
			Run:            b.resize,
		},
		{
			Name:        "trim",
			Description: "Keep length seconds starting at start.",
			Inputs:      [][]mediatype.Kind{{mediatype.Video, mediatype.Audio, mediatype.GIF}},
			ExpectFile:  true,
			Run:         b.trim,
		},
		{
			Name:        "fps",
			Description: "Change the frame rate.",
			Inputs:      [][]mediatype.Kind{animated},
			Post:        process.PostKeepAnimated,
			ExpectFile:  true,
			Run:         b.fps,
		},
		{
			Name:        "togif",
			Description: "Convert a video to a gif.",
			Inputs:      [][]mediatype.Kind{{mediatype.Video}},
			ExpectFile:  true,
			Run:         b.toGIF,
		},
		{
			Name:        "tovideo",
			Description: "Convert a gif to an mp4 video.",
			Inputs:      [][]mediatype.Kind{{mediatype.GIF}},
			ExpectFile:  true,
			Run:         b.toVideo,
		},
		{
			Name:        "topng",
			Description: "Extract the first frame as a png.",
			Inputs:      [][]mediatype.Kind{visual},
			ExpectFile:  true,
			Run:         b.toPNG,
		},
		{
			Name:        "stack",
			Description: "Stack two images vertically or horizontally (direction=v|h).",
			Inputs:      [][]mediatype.Kind{{mediatype.Image}, {mediatype.Image}},
			Mode:        process.Parallel,
			ExpectFile:  true,
			Run:         b.stack,
		},
		{
			Name:           "thumbnail",
			Description:    "Shrink an image to fit within width x height.",
			Inputs:         [][]mediatype.Kind{{mediatype.Image}},
			Mode:           process.Parallel,
			ExpectFile:     true,
			KeepResolution: true,
			Run:            b.thumbnail,
		},
		{
			Name:        "info",
			Description: "Describe a file.",
			Inputs:      [][]mediatype.Kind{{}},
			Run:         b.info,
		},
	} {
		cat.byName[t.Name] = t
	}
	return cat
}

// Get returns the transform called name.
func (c *Catalog) Get(name string) (*process.Transform, bool) {
	t, ok := c.byName[strings.ToLower(name)]
	return t, ok
}

// Names returns every transform name, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns every transform, sorted by name.
func (c *Catalog) List() []*process.Transform {
	names := c.Names()
	out := make([]*process.Transform, len(names))
	for i, name := range names {
		out[i] = c.byName[name]
	}
	return out
}

type builder struct {
	ops        Ops
	describe   Describer
	classifier tempfile.Classifier
	limits     Limits
}

func file(f *tempfile.File, err error) (process.Output, error) {
	if err != nil {
		return process.Output{}, err
	}
	return process.Output{File: f}, nil
}

func (b *builder) dimension(args process.Args, key string) (int, error) {
	v, err := argInt(args, key, -1)
	if err != nil {
		return 0, err
	}
	if v == -1 {
		return v, nil
	}
	if v < 1 || (b.limits.MaxResolution > 0 && v > b.limits.MaxResolution) {
		return 0, apperrors.Userf("%s must be -1 or between 1 and %d.", key, b.limits.MaxResolution)
	}
	return v, nil
}

func (b *builder) resize(ctx context.Context, in []*tempfile.File, args process.Args) (process.Output, error) {
	w, err := b.dimension(args, "width")
	if err != nil {
		return process.Output{}, err
	}
	h, err := b.dimension(args, "height")
	if err != nil {
		return process.Output{}, err
	}
	if w == -1 && h == -1 {
		return process.Output{}, apperrors.Userf("Width and height cannot both be -1.")
	}
	return file(b.ops.Resize(ctx, in[0], fmt.Sprint(w), fmt.Sprint(h), true))
}

func (b *builder) trim(ctx context.Context, in []*tempfile.File, args process.Args) (process.Output, error) {
	length, err := requireFloat(args, "length")
	if err != nil {
		return process.Output{}, err
	}
	start, err := argFloat(args, "start", 0)
	if err != nil {
		return process.Output{}, err
	}
	if length <= 0 || start < 0 {
		return process.Output{}, apperrors.Userf("Length must be positive and start cannot be negative.")
	}
	return file(b.ops.Trim(ctx, in[0], length, start))
}

func (b *builder) fps(ctx context.Context, in []*tempfile.File, args process.Args) (process.Output, error) {
	fps, err := requireFloat(args, "fps")
	if err != nil {
		return process.Output{}, err
	}
	if fps <= 0 || (b.limits.MaxFPS > 0 && fps > b.limits.MaxFPS) {
		return process.Output{}, apperrors.Userf("FPS must be greater than 0 and at most %s.", humanize.Ftoa(b.limits.MaxFPS))
	}
	return file(b.ops.ChangeFPS(ctx, in[0], fps))
}

func (b *builder) toGIF(ctx context.Context, in []*tempfile.File, _ process.Args) (process.Output, error) {
	return file(b.ops.VideoToGIF(ctx, in[0]))
}

func (b *builder) toVideo(ctx context.Context, in []*tempfile.File, _ process.Args) (process.Output, error) {
	return file(b.ops.GIFToMP4(ctx, in[0]))
}

func (b *builder) toPNG(ctx context.Context, in []*tempfile.File, _ process.Args) (process.Output, error) {
	return file(b.ops.MediaToPNG(ctx, in[0]))
}

func (b *builder) stack(ctx context.Context, in []*tempfile.File, args process.Args) (process.Output, error) {
	dir, err := media.ParseDirection(strings.ToLower(args["direction"]))
	if err != nil {
		return process.Output{}, apperrors.WrapUser(err, "Direction must be v (vertical) or h (horizontal).")
	}
	return file(media.Stack(ctx, in, dir))
}

func (b *builder) thumbnail(ctx context.Context, in []*tempfile.File, args process.Args) (process.Output, error) {
	w, err := argInt(args, "width", DefaultThumbnailSize)
	if err != nil {
		return process.Output{}, err
	}
	h, err := argInt(args, "height", DefaultThumbnailSize)
	if err != nil {
		return process.Output{}, err
	}
	if w < 1 || h < 1 {
		return process.Output{}, apperrors.Userf("Thumbnail width and height must be positive.")
	}
	return file(media.Thumbnail(ctx, in[0], w, h))
}

func (b *builder) info(ctx context.Context, in []*tempfile.File, _ process.Args) (process.Output, error) {
	f := in[0]
	kind, err := f.Kind(ctx, b.classifier)
	if err != nil {
		return process.Output{}, err
	}
	size, err := f.Size()
	if err != nil {
		return process.Output{}, err
	}
	info, err := b.describe.Describe(ctx, f.Path)
	if err != nil {
		return process.Output{}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "kind: %s\n", kind)
	fmt.Fprintf(&sb, "size: %s\n", humanize.Bytes(uint64(size)))
	if info.Duration > 0 {
		fmt.Fprintf(&sb, "duration: %.2fs\n", info.Duration)
	}
	if info.Width > 0 {
		fmt.Fprintf(&sb, "resolution: %dx%d\n", info.Width, info.Height)
	}
	if info.FrameRate > 0 {
		fmt.Fprintf(&sb, "fps: %.2f\n", info.FrameRate)
	}
	if info.VideoCodec != "" {
		fmt.Fprintf(&sb, "video codec: %s\n", info.VideoCodec)
	}
	if info.AudioCodec != "" {
		fmt.Fprintf(&sb, "audio codec: %s\n", info.AudioCodec)
	}
	return process.Output{Text: strings.TrimSuffix(sb.String(), "\n")}, nil
}
