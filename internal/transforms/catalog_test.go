package transforms

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-forge/internal/apperrors"
	"media-forge/internal/ffmpeg"
	"media-forge/internal/media"
	"media-forge/internal/mediatype"
	"media-forge/internal/process"
	"media-forge/internal/tempfile"
)

type call struct {
	op   string
	args []any
}

type fakeOps struct {
	calls []call
}

func (o *fakeOps) out(ctx context.Context, op string, args ...any) (*tempfile.File, error) {
	o.calls = append(o.calls, call{op: op, args: args})
	return tempfile.Reserve(ctx, "mp4")
}

func (o *fakeOps) Resize(ctx context.Context, _ *tempfile.File, w, h string, lock bool) (*tempfile.File, error) {
	return o.out(ctx, "resize", w, h, lock)
}

func (o *fakeOps) Trim(ctx context.Context, _ *tempfile.File, length, start float64) (*tempfile.File, error) {
	return o.out(ctx, "trim", length, start)
}

func (o *fakeOps) ChangeFPS(ctx context.Context, _ *tempfile.File, fps float64) (*tempfile.File, error) {
	return o.out(ctx, "fps", fps)
}

func (o *fakeOps) VideoToGIF(ctx context.Context, _ *tempfile.File) (*tempfile.File, error) {
	return o.out(ctx, "togif")
}

func (o *fakeOps) GIFToMP4(ctx context.Context, _ *tempfile.File) (*tempfile.File, error) {
	return o.out(ctx, "tovideo")
}

func (o *fakeOps) MediaToPNG(ctx context.Context, _ *tempfile.File) (*tempfile.File, error) {
	return o.out(ctx, "topng")
}

type fakeDescriber struct {
	info ffmpeg.Info
}

func (d fakeDescriber) Describe(context.Context, string) (*ffmpeg.Info, error) {
	info := d.info
	return &info, nil
}

func setup(t *testing.T) (context.Context, *tempfile.Session, *fakeOps, *Catalog) {
	t.Helper()
	s := tempfile.NewSession(t.TempDir())
	t.Cleanup(func() { _ = s.Close() })
	ops := &fakeOps{}
	desc := fakeDescriber{info: ffmpeg.Info{Duration: 2.5, Width: 640, Height: 480, FrameRate: 24, VideoCodec: "h264"}}
	cat := New(ops, desc, nil, Limits{MaxResolution: 1920, MaxFPS: 30})
	return tempfile.NewContext(context.Background(), s), s, ops, cat
}

func inputFile(t *testing.T, s *tempfile.Session, kind mediatype.Kind, size int) *tempfile.File {
	t.Helper()
	f, err := s.Reserve("bin")
	require.NoError(t, err)
	f.KindOverride = kind
	require.NoError(t, os.WriteFile(f.Path, make([]byte, size), 0o644))
	return f
}

func pngFile(t *testing.T, s *tempfile.Session, w, h int) *tempfile.File {
	t.Helper()
	f, err := s.Reserve("png")
	require.NoError(t, err)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	out, err := os.Create(f.Path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(out, img))
	require.NoError(t, out.Close())
	f.KindOverride = mediatype.Image
	return f
}

func run(t *testing.T, ctx context.Context, cat *Catalog, name string, in []*tempfile.File, args process.Args) (process.Output, error) {
	t.Helper()
	tr, ok := cat.Get(name)
	require.True(t, ok, name)
	return tr.Run(ctx, in, args)
}

func TestCatalogNames(t *testing.T) {
	_, _, _, cat := setup(t)
	assert.Equal(t, []string{"fps", "info", "resize", "stack", "thumbnail", "togif", "topng", "tovideo", "trim"}, cat.Names())
	assert.Len(t, cat.List(), 9)

	tr, ok := cat.Get("STACK")
	require.True(t, ok)
	assert.Equal(t, process.Parallel, tr.Mode)
	assert.Len(t, tr.Inputs, 2)

	info, _ := cat.Get("info")
	assert.False(t, info.ExpectFile)
}

func TestResizeArguments(t *testing.T) {
	tests := []struct {
		name    string
		args    process.Args
		want    []any
		userErr bool
	}{
		{"width only", process.Args{"width": "640"}, []any{"640", "-1", true}, false},
		{"both", process.Args{"width": "640", "height": "360"}, []any{"640", "360", true}, false},
		{"neither", process.Args{}, nil, true},
		{"too wide", process.Args{"width": "5000"}, nil, true},
		{"zero", process.Args{"height": "0"}, nil, true},
		{"not a number", process.Args{"width": "big"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, s, ops, cat := setup(t)
			out, err := run(t, ctx, cat, "resize", []*tempfile.File{inputFile(t, s, mediatype.Image, 10)}, tt.args)
			if tt.userErr {
				assert.True(t, apperrors.IsUser(err), "got %v", err)
				assert.Empty(t, ops.calls)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, out.File)
			require.Len(t, ops.calls, 1)
			assert.Equal(t, tt.want, ops.calls[0].args)
		})
	}
}

func TestTrimArguments(t *testing.T) {
	ctx, s, ops, cat := setup(t)
	in := []*tempfile.File{inputFile(t, s, mediatype.Video, 10)}

	_, err := run(t, ctx, cat, "trim", in, process.Args{})
	assert.True(t, apperrors.IsUser(err))

	_, err = run(t, ctx, cat, "trim", in, process.Args{"length": "-2"})
	assert.True(t, apperrors.IsUser(err))

	_, err = run(t, ctx, cat, "trim", in, process.Args{"length": "2.5", "start": "1"})
	require.NoError(t, err)
	require.Len(t, ops.calls, 1)
	assert.Equal(t, []any{2.5, 1.0}, ops.calls[0].args)
}

func TestFPSArguments(t *testing.T) {
	ctx, s, ops, cat := setup(t)
	in := []*tempfile.File{inputFile(t, s, mediatype.GIF, 10)}

	_, err := run(t, ctx, cat, "fps", in, process.Args{"fps": "60"})
	assert.True(t, apperrors.IsUser(err))

	_, err = run(t, ctx, cat, "fps", in, process.Args{"fps": "12"})
	require.NoError(t, err)
	assert.Equal(t, []any{12.0}, ops.calls[0].args)
}

func TestConversions(t *testing.T) {
	for _, name := range []string{"togif", "tovideo", "topng"} {
		t.Run(name, func(t *testing.T) {
			ctx, s, ops, cat := setup(t)
			out, err := run(t, ctx, cat, name, []*tempfile.File{inputFile(t, s, mediatype.Video, 10)}, nil)
			require.NoError(t, err)
			assert.NotNil(t, out.File)
			require.Len(t, ops.calls, 1)
			assert.Equal(t, name, ops.calls[0].op)
		})
	}
}

func TestInfoText(t *testing.T) {
	ctx, s, _, cat := setup(t)
	out, err := run(t, ctx, cat, "info", []*tempfile.File{inputFile(t, s, mediatype.Video, 2048)}, nil)
	require.NoError(t, err)
	assert.Nil(t, out.File)
	assert.Equal(t, "kind: VIDEO\nsize: 2.0 kB\nduration: 2.50s\nresolution: 640x480\nfps: 24.00\nvideo codec: h264", out.Text)
}

func TestStackAndThumbnail(t *testing.T) {
	if media.VipsAvailable() {
		t.Skip("exercises the imaging path")
	}
	ctx, s, _, cat := setup(t)

	out, err := run(t, ctx, cat, "stack", []*tempfile.File{pngFile(t, s, 40, 20), pngFile(t, s, 40, 30)}, process.Args{"direction": "V"})
	require.NoError(t, err)
	w, h, err := media.Dimensions(out.File.Path)
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 50, h)

	_, err = run(t, ctx, cat, "stack", []*tempfile.File{pngFile(t, s, 4, 4), pngFile(t, s, 4, 4)}, process.Args{"direction": "diagonal"})
	assert.True(t, apperrors.IsUser(err))

	out, err = run(t, ctx, cat, "thumbnail", []*tempfile.File{pngFile(t, s, 400, 200)}, process.Args{"width": "100"})
	require.NoError(t, err)
	w, h, err = media.Dimensions(out.File.Path)
	require.NoError(t, err)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)
}
