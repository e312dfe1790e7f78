package fitter

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"media-forge/internal/apperrors"
	"media-forge/internal/logging"
	"media-forge/internal/mediatype"
	"media-forge/internal/metrics"
	"media-forge/internal/queue"
	"media-forge/internal/tempfile"
)

// DefaultTolerances is the cascade of safety margins applied to each
// computed target, most optimistic first.
var DefaultTolerances = []float64{0.98, 0.95, 0.90, 0.75, 0.5, 0.25, 0.1}

// DefaultAudioBitrate is the aac bitrate (bits/s) reserved out of a video's
// budget.
const DefaultAudioBitrate = 128000

// Config holds the size thresholds.
type Config struct {
	// UploadLimit is the largest size returned unchanged.
	UploadLimit int64
	// AbortLimit rejects anything larger outright.
	AbortLimit int64
	// SoftLimit, when set below UploadLimit, tightens the size corrective
	// encodes aim for and must reach. It never changes the pass-through
	// rule: anything at or below UploadLimit is returned unchanged.
	SoftLimit int64
	// AudioBitrate in bits per second; 0 means DefaultAudioBitrate.
	AudioBitrate int
	// Tolerances overrides DefaultTolerances.
	Tolerances []float64
}

// Validate checks the thresholds are ordered.
func (c Config) Validate() error {
	if c.UploadLimit <= 0 {
		return errors.New("upload limit must be positive")
	}
	if c.AbortLimit < c.UploadLimit {
		return fmt.Errorf("abort limit %d is below upload limit %d", c.AbortLimit, c.UploadLimit)
	}
	if c.SoftLimit < 0 || c.SoftLimit > c.UploadLimit {
		return fmt.Errorf("soft limit %d must be between 0 and the upload limit %d", c.SoftLimit, c.UploadLimit)
	}
	for _, t := range c.Tolerances {
		if t <= 0 || t > 1 {
			return fmt.Errorf("tolerance %v out of range (0, 1]", t)
		}
	}
	return nil
}

// Target returns the size corrective encodes must reach: SoftLimit when
// set, otherwise UploadLimit.
func (c Config) Target() int64 {
	if c.SoftLimit > 0 {
		return c.SoftLimit
	}
	return c.UploadLimit
}

func (c Config) tolerances() []float64 {
	if len(c.Tolerances) > 0 {
		return c.Tolerances
	}
	return DefaultTolerances
}

func (c Config) audioBitrate() int {
	if c.AudioBitrate > 0 {
		return c.AudioBitrate
	}
	return DefaultAudioBitrate
}

// Prober reads the properties the cascade is computed from.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
	Resolution(ctx context.Context, path string) (int, int, error)
}

// Encoder produces corrective renditions. Outputs are reserved in the
// session carried by ctx.
type Encoder interface {
	TwoPass(ctx context.Context, f *tempfile.File, videoBitrate float64, audioBitrate int) (*tempfile.File, error)
	Scale(ctx context.Context, f *tempfile.File, width, height int) (*tempfile.File, error)
}

// Fitter shrinks oversized artifacts until they fit the upload limit.
type Fitter struct {
	cfg        Config
	probe      Prober
	enc        Encoder
	classifier tempfile.Classifier
	queue      *queue.Queue
}

// New creates a fitter. Each corrective encode runs as a job of q.
func New(cfg Config, p Prober, e Encoder, c tempfile.Classifier, q *queue.Queue) *Fitter {
	return &Fitter{cfg: cfg, probe: p, enc: e, classifier: c, queue: q}
}

// Config returns the thresholds in use.
func (ft *Fitter) Config() Config {
	return ft.cfg
}

// Fit returns f unchanged when it is within the upload limit, otherwise a
// smaller rendition that is. Files over the abort limit, kinds without a
// strategy and exhausted cascades fail with a user-facing error. Rejected
// attempts stay in the session and are removed when it closes.
func (ft *Fitter) Fit(ctx context.Context, f *tempfile.File) (*tempfile.File, error) {
	if f == nil {
		return nil, &apperrors.EmptyResultError{Transform: "size fitting", Expected: "a file"}
	}
	size, err := f.Size()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", f.Path, err)
	}

	if size <= ft.cfg.UploadLimit {
		metrics.FitterResults.WithLabelValues(kindLabel(f), "unchanged").Inc()
		return f, nil
	}
	if size > ft.cfg.AbortLimit {
		metrics.FitterResults.WithLabelValues(kindLabel(f), "aborted").Inc()
		return nil, apperrors.Userf("Resulting file is %s. Aborting upload since resulting file is over %s",
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(ft.cfg.AbortLimit)))
	}

	kind, err := f.Kind(ctx, ft.classifier)
	if err != nil {
		return nil, err
	}

	var out *tempfile.File
	switch kind {
	case mediatype.Video:
		out, err = ft.fitVideo(ctx, f, size)
	case mediatype.Image, mediatype.GIF:
		out, err = ft.fitPixels(ctx, f, kind, size)
	default:
		metrics.FitterResults.WithLabelValues(string(kind), "unsupported").Inc()
		return nil, apperrors.Userf("File is too big to upload.")
	}
	if err != nil {
		if apperrors.IsUser(err) {
			metrics.FitterResults.WithLabelValues(string(kind), "exhausted").Inc()
		}
		return nil, err
	}
	metrics.FitterResults.WithLabelValues(string(kind), "fitted").Inc()
	return out, nil
}

// VideoBitrate returns the video bitrate tried at tolerance t for a clip of
// the given duration: the whole budget in bits per second, minus audio,
// scaled by t.
func VideoBitrate(limit int64, duration float64, audioBitrate int, t float64) float64 {
	total := float64(limit*8) / duration
	return (total - float64(audioBitrate)) * t
}

// ScaledDimensions returns the resolution tried at tolerance t, assuming
// byte size grows with pixel count. Both axes are scaled by the square root
// of the reduction ratio and rounded down, never below one pixel.
func ScaledDimensions(width, height int, limit, size int64, t float64) (int, int) {
	ratio := float64(limit) / float64(size) * t
	w := int(math.Floor(math.Sqrt(ratio * float64(width) * float64(width))))
	h := int(math.Floor(math.Sqrt(ratio * float64(height) * float64(height))))
	return max(w, 1), max(h, 1)
}

func (ft *Fitter) fitVideo(ctx context.Context, f *tempfile.File, size int64) (*tempfile.File, error) {
	duration, err := ft.probe.Duration(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, apperrors.Userf("Cannot fit video with no duration.")
	}

	limit := ft.cfg.Target()
	audio := ft.cfg.audioBitrate()
	for _, t := range ft.cfg.tolerances() {
		bitrate := VideoBitrate(limit, duration, audio, t)
		if bitrate <= 0 {
			return nil, apperrors.Userf("Cannot fit video into %s: it is too long for any bitrate to help.",
				humanize.Bytes(uint64(limit)))
		}
		logging.Info("trying to force %s (%s) under %s with tolerance %v: %s/s",
			f.Path, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(limit)), t, humanize.Bytes(uint64(bitrate/8)))

		out, err := queue.Enqueue(ctx, ft.queue, func(ctx context.Context) (*tempfile.File, error) {
			return ft.enc.TwoPass(ctx, f, bitrate, audio)
		})
		if err != nil {
			return nil, err
		}
		ok, err := ft.accept(out, mediatype.Video, limit, t)
		if err != nil {
			return nil, err
		}
		if ok {
			return out, nil
		}
	}
	return nil, ft.exhausted(f, limit)
}

func (ft *Fitter) fitPixels(ctx context.Context, f *tempfile.File, kind mediatype.Kind, size int64) (*tempfile.File, error) {
	w, h, err := ft.probe.Resolution(ctx, f.Path)
	if err != nil {
		return nil, err
	}

	limit := ft.cfg.Target()
	for _, t := range ft.cfg.tolerances() {
		nw, nh := ScaledDimensions(w, h, limit, size, t)
		logging.Info("trying to resize %s from %dx%d to %dx%d (tolerance %v)", f.Path, w, h, nw, nh, t)

		out, err := queue.Enqueue(ctx, ft.queue, func(ctx context.Context) (*tempfile.File, error) {
			return ft.enc.Scale(ctx, f, nw, nh)
		})
		if err != nil {
			return nil, err
		}
		ok, err := ft.accept(out, kind, limit, t)
		if err != nil {
			return nil, err
		}
		if ok {
			return out, nil
		}
	}
	return nil, ft.exhausted(f, limit)
}

func (ft *Fitter) accept(out *tempfile.File, kind mediatype.Kind, limit int64, t float64) (bool, error) {
	size, err := out.Size()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", out.Path, err)
	}
	if size <= limit {
		metrics.FitterAttempts.WithLabelValues(string(kind), "fit").Inc()
		logging.Info("successfully created %s %s", humanize.Bytes(uint64(size)), kind)
		return true, nil
	}
	metrics.FitterAttempts.WithLabelValues(string(kind), "too_big").Inc()
	logging.Info("tolerance %v failed, output is %s", t, humanize.Bytes(uint64(size)))
	return false, nil
}

// kindLabel avoids a probe for files that need no work.
func kindLabel(f *tempfile.File) string {
	if f.KindOverride != "" {
		return string(f.KindOverride)
	}
	return "unclassified"
}

func (ft *Fitter) exhausted(f *tempfile.File, limit int64) error {
	return apperrors.Userf("Unable to fit the %s file within %s", f.Ext(), humanize.Bytes(uint64(limit)))
}
