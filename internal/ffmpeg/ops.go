package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"media-forge/internal/apperrors"
	"media-forge/internal/logging"
	"media-forge/internal/mediatype"
	"media-forge/internal/tempfile"
)

// Intermediate files use lossless codecs so chained operations do not
// compound artifacts.
const (
	tempVideoCodec = "ffv1"
	tempAudioCodec = "flac"
	tempContainer  = "mkv"

	sharpScaleFlags = "spline+accurate_rnd+full_chroma_int+full_chroma_inp+bitexact"
)

// Encoder performs ffmpeg operations. Every output is reserved in the
// session carried by ctx.
type Encoder struct {
	exec       Executor
	probe      *Prober
	classifier tempfile.Classifier
}

// NewEncoder creates an encoder. The classifier decides how each input is
// handled (gif outputs are re-paletted, images stay single frame).
func NewEncoder(e Executor, p *Prober, c tempfile.Classifier) *Encoder {
	return &Encoder{exec: e, probe: p, classifier: c}
}

// Prober returns the prober the encoder uses.
func (e *Encoder) Prober() *Prober {
	return e.probe
}

func (e *Encoder) ffmpeg(ctx context.Context, args ...string) error {
	_, err := e.exec.Run(ctx, FFmpeg, args...)
	return err
}

func (e *Encoder) kind(ctx context.Context, f *tempfile.File) (mediatype.Kind, error) {
	return f.Kind(ctx, e.classifier)
}

// keepAnimated tags out as a gif when src was one, carrying the loop count
// so the final gif encode loops the same way.
func (e *Encoder) keepAnimated(ctx context.Context, src, out *tempfile.File) error {
	k, err := e.kind(ctx, src)
	if err != nil {
		return err
	}
	if k != mediatype.GIF {
		return nil
	}
	out.KindOverride = mediatype.GIF
	lc, err := e.loopCount(ctx, src)
	if err != nil {
		return err
	}
	out.SetLoopCount(lc)
	return nil
}

func (e *Encoder) loopCount(ctx context.Context, f *tempfile.File) (int, error) {
	if lc, ok := f.Loop(); ok {
		return lc, nil
	}
	lc, err := e.probe.LoopCount(ctx, f.Path)
	if err != nil {
		return 0, err
	}
	f.SetLoopCount(lc)
	return lc, nil
}

// Resize scales f to width x height. Both are ffmpeg expressions, so -1 or
// "min(-1, 3840)" are valid. With lockCodec the output keeps the input's
// container and codec; gifs are re-encoded as gifs.
func (e *Encoder) Resize(ctx context.Context, f *tempfile.File, width, height string, lockCodec bool) (*tempfile.File, error) {
	k, err := e.kind(ctx, f)
	if err != nil {
		return nil, err
	}
	gif := k == mediatype.GIF

	ext, vcodec := tempContainer, tempVideoCodec
	if lockCodec && !gif {
		ext, vcodec = lockedOutput(k, f.Ext())
	}

	out, err := tempfile.Reserve(ctx, ext)
	if err != nil {
		return nil, err
	}
	if err := e.ffmpeg(ctx, "-i", f.Path, "-max_muxing_queue_size", "9999", "-sws_flags", sharpScaleFlags,
		"-vf", fmt.Sprintf("scale='%s:%s',setsar=1:1", width, height),
		"-c:v", vcodec, "-pix_fmt", pixFmtFor(vcodec), "-c:a", "copy", "-fps_mode", "vfr", out.Path); err != nil {
		return nil, err
	}
	if err := e.keepAnimated(ctx, f, out); err != nil {
		return nil, err
	}
	if gif && lockCodec {
		return e.VideoToGIF(ctx, out)
	}
	return out, nil
}

// Scale resizes f to exactly width x height pixels, keeping its codec.
func (e *Encoder) Scale(ctx context.Context, f *tempfile.File, width, height int) (*tempfile.File, error) {
	return e.Resize(ctx, f, strconv.Itoa(width), strconv.Itoa(height), true)
}

// lockedOutput picks a container and encoder that keep f's format. A
// scale filter cannot be combined with stream copy, so the codec is chosen
// to match the container instead.
func lockedOutput(k mediatype.Kind, ext string) (string, string) {
	if k == mediatype.Video {
		return "mp4", "libx264"
	}
	if ext == "" {
		ext = "png"
	}
	return ext, imageCodecFor(ext)
}

func imageCodecFor(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "mjpeg"
	case "webp":
		return "libwebp"
	case "bmp":
		return "bmp"
	case "tif", "tiff":
		return "tiff"
	default:
		return "png"
	}
}

func pixFmtFor(codec string) string {
	switch codec {
	case "mjpeg":
		return "yuvj444p"
	case "libwebp":
		return "yuva420p"
	case "libx264":
		return "yuv420p"
	default:
		return "rgba"
	}
}

// Trim cuts f to length seconds starting at start. A start beyond the end
// of the file is the user's mistake.
func (e *Encoder) Trim(ctx context.Context, f *tempfile.File, length, start float64) (*tempfile.File, error) {
	dur, err := e.probe.Duration(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	if start > dur {
		return nil, apperrors.Userf("Trim start (%ss) is outside the range of the file (%ss)", formatSeconds(start), formatSeconds(dur))
	}
	out, err := tempfile.Reserve(ctx, tempContainer)
	if err != nil {
		return nil, err
	}
	if err := e.ffmpeg(ctx, "-hide_banner", "-i", f.Path, "-t", formatSeconds(length), "-ss", formatSeconds(start),
		"-c:v", tempVideoCodec, "-c:a", tempAudioCodec, "-fps_mode", "vfr", out.Path); err != nil {
		return nil, err
	}
	return out, e.keepAnimated(ctx, f, out)
}

// ChangeFPS resamples f to fps frames per second.
func (e *Encoder) ChangeFPS(ctx context.Context, f *tempfile.File, fps float64) (*tempfile.File, error) {
	out, err := tempfile.Reserve(ctx, tempContainer)
	if err != nil {
		return nil, err
	}
	if err := e.ffmpeg(ctx, "-hide_banner", "-i", f.Path, "-r", formatSeconds(fps),
		"-c:a", "copy", "-c:v", tempVideoCodec, out.Path); err != nil {
		return nil, err
	}
	return out, e.keepAnimated(ctx, f, out)
}

// Reencode converts f into the canonical codec for its kind: png images,
// h264/aac mp4 video, aac m4a audio and paletted gifs. Codec-locked files
// are returned as they are.
func (e *Encoder) Reencode(ctx context.Context, f *tempfile.File) (*tempfile.File, error) {
	if f.CodecLocked {
		return f, nil
	}
	k, err := e.kind(ctx, f)
	if err != nil {
		return nil, err
	}
	switch k {
	case mediatype.Image:
		return e.MediaToPNG(ctx, f)
	case mediatype.Video:
		return e.VideoReencode(ctx, f)
	case mediatype.Audio:
		return e.AudioReencode(ctx, f)
	case mediatype.GIF:
		return e.VideoToGIF(ctx, f)
	}
	return nil, fmt.Errorf("%s of kind %s cannot be re-encoded", f.Path, k)
}

// VideoReencode produces a widely playable mp4, copying streams that are
// already h264 or aac.
func (e *Encoder) VideoReencode(ctx context.Context, f *tempfile.File) (*tempfile.File, error) {
	vcodec, acodec, err := e.probe.Codecs(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	vargs := []string{"copy"}
	if vcodec != "h264" {
		vargs = []string{"libx264", "-pix_fmt", "yuv420p", "-vf", "scale=ceil(iw/2)*2:ceil(ih/2)*2,premultiply=inplace=1"}
	}
	aargs := []string{"copy"}
	if acodec != "aac" {
		aargs = []string{"aac", "-q:a", "2"}
	}

	out, err := tempfile.Reserve(ctx, "mp4")
	if err != nil {
		return nil, err
	}
	args := append([]string{"-hide_banner", "-i", f.Path, "-c:v"}, vargs...)
	args = append(args, "-c:a")
	args = append(args, aargs...)
	args = append(args, "-max_muxing_queue_size", "9999", "-movflags", "+faststart", out.Path)
	if err := e.ffmpeg(ctx, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// AudioReencode produces an aac m4a, copying aac input.
func (e *Encoder) AudioReencode(ctx context.Context, f *tempfile.File) (*tempfile.File, error) {
	_, acodec, err := e.probe.Codecs(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	aargs := []string{"copy"}
	if acodec != "aac" {
		aargs = []string{"aac", "-q:a", "2"}
	}
	out, err := tempfile.Reserve(ctx, "m4a")
	if err != nil {
		return nil, err
	}
	args := append([]string{"-hide_banner", "-i", f.Path, "-c:a"}, aargs...)
	if err := e.ffmpeg(ctx, append(args, out.Path)...); err != nil {
		return nil, err
	}
	return out, nil
}

// VideoToGIF encodes f as a gif with a per-frame palette, keeping f's loop
// count. Files already gif-coded are returned unchanged.
func (e *Encoder) VideoToGIF(ctx context.Context, f *tempfile.File) (*tempfile.File, error) {
	codec, err := e.probe.VideoCodec(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	if codec == "gif" {
		return f, nil
	}
	fps, err := e.probe.FrameRate(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	lc, err := e.loopCount(ctx, f)
	if err != nil {
		return nil, err
	}

	filter := "split[s0][s1];" +
		"[s0]geq=r='bitor(bitand(r(X,Y), 248), 4)':g='bitor(bitand(g(X,Y), 248), 4)':b='bitor(bitand(b(X,Y), 248), 4)'," +
		"palettegen=reserve_transparent=1:stats_mode=single[p];" +
		"[s1][p]paletteuse=dither=bayer:bayer_scale=3:new=1"
	if fps > 50 {
		filter = "fps=fps=50," + filter
	}

	out, err := tempfile.Reserve(ctx, "gif")
	if err != nil {
		return nil, err
	}
	if err := e.ffmpeg(ctx, "-i", f.Path, "-gifflags", "-transdiff", "-loop", strconv.Itoa(lc),
		"-vf", filter, "-fps_mode", "vfr", out.Path); err != nil {
		return nil, err
	}
	out.KindOverride = mediatype.GIF
	out.SetLoopCount(lc)
	return out, nil
}

// GIFToMP4 converts an animation to an h264 mp4 with even dimensions.
func (e *Encoder) GIFToMP4(ctx context.Context, f *tempfile.File) (*tempfile.File, error) {
	out, err := tempfile.Reserve(ctx, "mp4")
	if err != nil {
		return nil, err
	}
	if err := e.ffmpeg(ctx, "-hide_banner", "-i", f.Path, "-movflags", "faststart", "-pix_fmt", "yuv420p",
		"-sws_flags", "spline+accurate_rnd+full_chroma_int+full_chroma_inp",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2", "-fps_mode", "vfr", out.Path); err != nil {
		return nil, err
	}
	out.KindOverride = mediatype.Video
	return out, nil
}

// MediaToPNG extracts the first frame of f as a png.
func (e *Encoder) MediaToPNG(ctx context.Context, f *tempfile.File) (*tempfile.File, error) {
	codec, err := e.probe.VideoCodec(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	vcodec := "png"
	if codec == "png" {
		vcodec = "copy"
	}
	out, err := tempfile.Reserve(ctx, "png")
	if err != nil {
		return nil, err
	}
	if err := e.ffmpeg(ctx, "-hide_banner", "-i", f.Path, "-frames:v", "1", "-c:v", vcodec,
		"-pix_fmt", "rgba", out.Path); err != nil {
		return nil, err
	}
	out.KindOverride = mediatype.Image
	return out, nil
}

// TwoPass re-encodes f as h264/aac mp4 at the given video bitrate (bits per
// second) using two-pass rate control. The pass log files ffmpeg writes are
// tracked in the session so they are cleaned up with everything else.
func (e *Encoder) TwoPass(ctx context.Context, f *tempfile.File, videoBitrate float64, audioBitrate int) (*tempfile.File, error) {
	s, ok := tempfile.FromContext(ctx)
	if !ok {
		return nil, tempfile.ErrNoSession
	}
	passlog := filepath.Join(s.Dir(), uuid.NewString())
	defer trackPassLogs(s, passlog)

	vb := strconv.FormatInt(int64(videoBitrate), 10)
	logging.Debug("two-pass encode of %s at %s/s", f.Path, humanize.Bytes(uint64(videoBitrate/8)))

	if err := e.ffmpeg(ctx, "-y", "-i", f.Path, "-c:v", "h264", "-b:v", vb, "-pass", "1",
		"-f", "mp4", "-passlogfile", passlog, os.DevNull); err != nil {
		return nil, err
	}

	out, err := s.Reserve("mp4")
	if err != nil {
		return nil, err
	}
	if err := e.ffmpeg(ctx, "-i", f.Path, "-c:v", "h264", "-b:v", vb, "-pass", "2",
		"-passlogfile", passlog, "-c:a", "aac", "-b:a", strconv.Itoa(audioBitrate),
		"-f", "mp4", "-movflags", "+faststart", out.Path); err != nil {
		return nil, err
	}
	out.KindOverride = mediatype.Video
	return out, nil
}

// trackPassLogs registers every file ffmpeg wrote next to the pass log
// prefix (prefix-0.log, prefix-0.log.mbtree, ...).
func trackPassLogs(s *tempfile.Session, prefix string) {
	matches, err := filepath.Glob(prefix + "*")
	if err != nil {
		logging.Warn("failed to list pass logs for %s: %v", prefix, err)
		return
	}
	for _, m := range matches {
		if _, err := s.Track(m); err != nil {
			logging.Warn("failed to track pass log %s: %v", m, err)
		}
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
