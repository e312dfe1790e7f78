package normalize

import (
	"context"
	"fmt"
	"strconv"

	"media-forge/internal/logging"
	"media-forge/internal/tempfile"
)

// Limits bounds the inputs a transform receives.
type Limits struct {
	MinResolution int
	MaxResolution int
	MaxFrames     int
	MaxFPS        float64
}

// Prober reads the properties normalization decides on.
type Prober interface {
	Resolution(ctx context.Context, path string) (int, int, error)
	FrameRate(ctx context.Context, path string) (float64, error)
	Duration(ctx context.Context, path string) (float64, error)
}

// Editor performs the corrective operations. Outputs are reserved in the
// session carried by ctx.
type Editor interface {
	Resize(ctx context.Context, f *tempfile.File, width, height string, lockCodec bool) (*tempfile.File, error)
	ChangeFPS(ctx context.Context, f *tempfile.File, fps float64) (*tempfile.File, error)
	Trim(ctx context.Context, f *tempfile.File, length, start float64) (*tempfile.File, error)
}

// Notifier receives user-visible notices about adjustments.
type Notifier func(msg string)

// Normalizer clamps input resolution and length before a transform runs.
type Normalizer struct {
	limits     Limits
	probe      Prober
	edit       Editor
	classifier tempfile.Classifier
}

// New creates a normalizer.
func New(l Limits, p Prober, e Editor, c tempfile.Classifier) *Normalizer {
	return &Normalizer{limits: l, probe: p, edit: e, classifier: c}
}

// Limits returns the configured bounds.
func (n *Normalizer) Limits() Limits {
	return n.limits
}

// Resolution scales visual media so both sides lie within the configured
// range. Sides below the minimum are upscaled with the other axis capped at
// twice the maximum, so a 1x1000 strip cannot explode; sides above the
// maximum are downscaled keeping aspect ratio.
func (n *Normalizer) Resolution(ctx context.Context, f *tempfile.File, notify Notifier) (*tempfile.File, error) {
	kind, err := f.Kind(ctx, n.classifier)
	if err != nil {
		return nil, err
	}
	if !kind.Visual() {
		return f, nil
	}

	w, h, err := n.probe.Resolution(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	ow, oh := w, h
	minRes, maxRes := n.limits.MinResolution, n.limits.MaxResolution
	capped := "-1"
	if maxRes > 0 {
		capped = fmt.Sprintf("min(-1, %d)", maxRes*2)
	}

	steps := []struct {
		need          func(w, h int) bool
		width, height string
	}{
		{func(w, _ int) bool { return minRes > 0 && w < minRes }, strconv.Itoa(minRes), capped},
		{func(_, h int) bool { return minRes > 0 && h < minRes }, capped, strconv.Itoa(minRes)},
		{func(w, _ int) bool { return maxRes > 0 && w > maxRes }, strconv.Itoa(maxRes), "-1"},
		{func(_, h int) bool { return maxRes > 0 && h > maxRes }, "-1", strconv.Itoa(maxRes)},
	}

	resized := false
	for _, step := range steps {
		if !step.need(w, h) {
			continue
		}
		if f, err = n.edit.Resize(ctx, f, step.width, step.height, false); err != nil {
			return nil, err
		}
		if w, h, err = n.probe.Resolution(ctx, f.Path); err != nil {
			return nil, err
		}
		resized = true
	}

	if resized {
		logging.Info("Resized from %dx%d to %dx%d", ow, oh, w, h)
		notify.send(fmt.Sprintf("Resized input media from %dx%d to %dx%d.", ow, oh, w, h))
	}
	return f, nil
}

// Duration caps the frame rate of videos and animations at MaxFPS, then
// trims them to MaxFrames frames. Exempt callers skip both.
func (n *Normalizer) Duration(ctx context.Context, f *tempfile.File, exempt bool, notify Notifier) (*tempfile.File, error) {
	if exempt {
		logging.Debug("exempt request skips duration checks")
		return f, nil
	}
	kind, err := f.Kind(ctx, n.classifier)
	if err != nil {
		return nil, err
	}
	if !kind.Animated() {
		return f, nil
	}

	fps, err := n.probe.FrameRate(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	if n.limits.MaxFPS > 0 && fps > n.limits.MaxFPS {
		logging.Debug("Capping FPS of %s from %.2f to %.2f", f.Path, fps, n.limits.MaxFPS)
		if f, err = n.edit.ChangeFPS(ctx, f, n.limits.MaxFPS); err != nil {
			return nil, err
		}
		if fps, err = n.probe.FrameRate(ctx, f.Path); err != nil {
			return nil, err
		}
	}

	if n.limits.MaxFrames <= 0 {
		return f, nil
	}
	dur, err := n.probe.Duration(ctx, f.Path)
	if err != nil {
		logging.Debug("duration of %s unknown, assuming it is short: %v", f.Path, err)
		dur = 0
	}
	frames := int(fps * dur)
	if frames <= n.limits.MaxFrames {
		return f, nil
	}

	newDur := float64(n.limits.MaxFrames) / fps
	msg := fmt.Sprintf("Input file is too long (~%d frames)! Trimming to %.1fs (~%d frames).", frames, newDur, n.limits.MaxFrames)
	logging.Debug("%s", msg)
	notify.send(msg)
	return n.edit.Trim(ctx, f, newDur, 0)
}

// Apply runs Resolution (when resize is set) and then Duration.
func (n *Normalizer) Apply(ctx context.Context, f *tempfile.File, resize, exempt bool, notify Notifier) (*tempfile.File, error) {
	var err error
	if resize {
		if f, err = n.Resolution(ctx, f, notify); err != nil {
			return nil, err
		}
	}
	return n.Duration(ctx, f, exempt, notify)
}

func (fn Notifier) send(msg string) {
	if fn != nil {
		fn(msg)
	}
}
