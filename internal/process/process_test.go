package process

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-forge/internal/apperrors"
	"media-forge/internal/ffmpeg"
	"media-forge/internal/mediatype"
	"media-forge/internal/normalize"
	"media-forge/internal/queue"
	"media-forge/internal/tempfile"
)

// fakeFetcher "downloads" a URL by writing a small file whose kind is
// looked up from the URL.
type fakeFetcher struct {
	kinds map[string]mediatype.Kind
	mu    sync.Mutex
	paths []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*tempfile.File, error) {
	out, err := tempfile.Reserve(ctx, "bin")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(out.Path, []byte(url), 0o644); err != nil {
		return nil, err
	}
	out.KindOverride = f.kinds[url]
	f.mu.Lock()
	f.paths = append(f.paths, out.Path)
	f.mu.Unlock()
	return out, nil
}

type fakeNormalizer struct {
	mu     sync.Mutex
	calls  int
	resize bool
	exempt bool
	notice string
}

func (n *fakeNormalizer) Apply(_ context.Context, f *tempfile.File, resize, exempt bool, notify normalize.Notifier) (*tempfile.File, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.resize, n.exempt = resize, exempt
	if n.notice != "" {
		notify(n.notice)
	}
	return f, nil
}

// fakeReencoder copies its input into a fresh mp4 artifact.
type fakeReencoder struct {
	seen []mediatype.Kind
}

func (r *fakeReencoder) Reencode(ctx context.Context, f *tempfile.File) (*tempfile.File, error) {
	r.seen = append(r.seen, f.KindOverride)
	out, err := tempfile.Reserve(ctx, "mp4")
	if err != nil {
		return nil, err
	}
	out.InheritFrom(f)
	if out.KindOverride == "" {
		out.KindOverride = mediatype.Video
	}
	return out, os.WriteFile(out.Path, []byte("encoded"), 0o644)
}

type passFitter struct {
	calls int
}

func (p *passFitter) Fit(_ context.Context, f *tempfile.File) (*tempfile.File, error) {
	p.calls++
	return f, nil
}

type harness struct {
	ctx     context.Context
	session *tempfile.Session
	fetch   *fakeFetcher
	norm    *fakeNormalizer
	enc     *fakeReencoder
	fit     *passFitter
	queue   *queue.Queue
	proc    *Processor
}

func newHarness(t *testing.T, capacity int) *harness {
	t.Helper()
	s := tempfile.NewSession(t.TempDir())
	t.Cleanup(func() { _ = s.Close() })

	h := &harness{
		ctx:     tempfile.NewContext(context.Background(), s),
		session: s,
		fetch: &fakeFetcher{kinds: map[string]mediatype.Kind{
			"video": mediatype.Video,
			"gif":   mediatype.GIF,
			"image": mediatype.Image,
			"audio": mediatype.Audio,
		}},
		norm:  &fakeNormalizer{},
		enc:   &fakeReencoder{},
		fit:   &passFitter{},
		queue: queue.New(capacity),
	}
	h.proc = New(Deps{
		Queue:      h.queue,
		Fetcher:    h.fetch,
		Normalizer: h.norm,
		Reencoder:  h.enc,
		Fitter:     h.fit,
	})
	return h
}

// copyTransform writes a new artifact derived from its first input.
func copyTransform(ctx context.Context, inputs []*tempfile.File, _ Args) (Output, error) {
	out, err := tempfile.Reserve(ctx, "mkv")
	if err != nil {
		return Output{}, err
	}
	if err := os.WriteFile(out.Path, []byte("transformed"), 0o644); err != nil {
		return Output{}, err
	}
	if len(inputs) == 0 {
		out.KindOverride = mediatype.Image
	}
	return Output{File: out}, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestProcessReturnsReleasedArtifact(t *testing.T) {
	h := newHarness(t, 1)
	tr := &Transform{Name: "copy", Inputs: [][]mediatype.Kind{{mediatype.Video}}, ExpectFile: true, Run: copyTransform}
	rec := &Recorder{}

	res, err := h.proc.Process(h.ctx, Request{Transform: tr, Inputs: URLs{"video"}, Reporter: rec})
	require.NoError(t, err)
	require.NotNil(t, res.File)
	assert.Equal(t, mediatype.Video, res.Kind)
	assert.False(t, h.session.Owns(res.File.Path), "result must be handed to the caller")
	assert.Equal(t, 1, h.norm.calls)
	assert.True(t, h.norm.resize)
	assert.Equal(t, 1, h.fit.calls)
	assert.Equal(t, []string{StatusDownloading, StatusForging, StatusUploading}, rec.Statuses())

	inputs := append([]string(nil), h.fetch.paths...)
	require.NoError(t, h.session.Close())
	for _, p := range inputs {
		assert.False(t, exists(p), "input %s should be deleted", p)
	}
	assert.True(t, exists(res.File.Path))
	require.NoError(t, os.Remove(res.File.Path))
}

func TestProcessRejectsWrongKind(t *testing.T) {
	h := newHarness(t, 1)
	tr := &Transform{Name: "togif", Inputs: [][]mediatype.Kind{{mediatype.Video, mediatype.GIF}}, ExpectFile: true, Run: copyTransform}

	_, err := h.proc.Process(h.ctx, Request{Transform: tr, Inputs: URLs{"image"}})
	require.Error(t, err)
	msg, ok := apperrors.UserMessage(err)
	require.True(t, ok)
	assert.Equal(t, "Media #1 is IMAGE, it must be: VIDEO, GIF", msg)
	assert.Zero(t, h.norm.calls, "nothing runs after a failed validation")
}

func TestProcessEmptyConstraintAcceptsAnything(t *testing.T) {
	h := newHarness(t, 1)
	tr := &Transform{Name: "any", Inputs: [][]mediatype.Kind{{}}, ExpectFile: true, Run: copyTransform}

	res, err := h.proc.Process(h.ctx, Request{Transform: tr, Inputs: URLs{"audio"}})
	require.NoError(t, err)
	require.NoError(t, os.Remove(res.File.Path))
}

func TestProcessMissingInputs(t *testing.T) {
	h := newHarness(t, 1)
	tr := &Transform{
		Name:       "stack",
		Inputs:     [][]mediatype.Kind{{mediatype.Image}, {mediatype.Image}},
		ExpectFile: true,
		Run:        copyTransform,
	}

	_, err := h.proc.Process(h.ctx, Request{Transform: tr, Inputs: URLs{"image"}})
	msg, ok := apperrors.UserMessage(err)
	require.True(t, ok)
	assert.Equal(t, "No file found.", msg)
	assert.Empty(t, h.fetch.paths)
}

func TestProcessEmptyResult(t *testing.T) {
	h := newHarness(t, 1)
	nothing := func(context.Context, []*tempfile.File, Args) (Output, error) { return Output{}, nil }

	for _, expectFile := range []bool{true, false} {
		tr := &Transform{Name: "nothing", ExpectFile: expectFile, Run: nothing}
		_, err := h.proc.Process(h.ctx, Request{Transform: tr})
		require.Error(t, err)

		var empty *apperrors.EmptyResultError
		require.True(t, errors.As(err, &empty))
		assert.Equal(t, "nothing", empty.Transform)
		assert.Equal(t, tr.expected(), empty.Expected)
		assert.False(t, apperrors.IsUser(err))
	}
	assert.Zero(t, h.fit.calls)
}

func TestProcessTextResult(t *testing.T) {
	h := newHarness(t, 1)
	tr := &Transform{
		Name:   "info",
		Inputs: [][]mediatype.Kind{{}},
		Mode:   Inline,
		Run: func(_ context.Context, in []*tempfile.File, _ Args) (Output, error) {
			return Output{Text: "kind: " + string(in[0].KindOverride)}, nil
		},
	}

	res, err := h.proc.Process(h.ctx, Request{Transform: tr, Inputs: URLs{"gif"}})
	require.NoError(t, err)
	assert.Nil(t, res.File)
	assert.Equal(t, "kind: GIF", res.Text)
	assert.Empty(t, h.enc.seen, "text results are not re-encoded")
}

// A tool failure mid-job releases the queue slot, keeps every artifact
// reserved so far in the session for cleanup, and reaches the caller as is.
func TestProcessToolFailureCleansUp(t *testing.T) {
	h := newHarness(t, 1)
	toolErr := &ffmpeg.CommandError{Tool: ffmpeg.FFmpeg, ExitCode: 1, Output: "Invalid data found"}

	var partial []string
	tr := &Transform{
		Name:       "broken",
		Inputs:     [][]mediatype.Kind{{mediatype.Video}},
		ExpectFile: true,
		Run: func(ctx context.Context, _ []*tempfile.File, _ Args) (Output, error) {
			for i := 0; i < 2; i++ {
				f, err := tempfile.Reserve(ctx, "mp4")
				if err != nil {
					return Output{}, err
				}
				if err := os.WriteFile(f.Path, []byte("partial"), 0o644); err != nil {
					return Output{}, err
				}
				partial = append(partial, f.Path)
			}
			return Output{}, toolErr
		},
	}

	_, err := h.proc.Process(h.ctx, Request{Transform: tr, Inputs: URLs{"video"}})
	var ce *ffmpeg.CommandError
	require.True(t, errors.As(err, &ce))
	assert.Same(t, toolErr, ce)
	assert.Equal(t, 0, h.queue.Running())

	for _, p := range partial {
		assert.True(t, h.session.Owns(p))
	}
	require.NoError(t, h.session.Close())
	for _, p := range append(partial, h.fetch.paths...) {
		assert.False(t, exists(p), "%s should be deleted", p)
	}
}

func TestProcessParallelMergesWorkerFiles(t *testing.T) {
	h := newHarness(t, 2)

	var scratch string
	tr := &Transform{
		Name:       "native",
		Mode:       Parallel,
		ExpectFile: true,
		Run: func(ctx context.Context, in []*tempfile.File, a Args) (Output, error) {
			f, err := tempfile.Reserve(ctx, "png")
			if err != nil {
				return Output{}, err
			}
			scratch = f.Path
			return copyTransform(ctx, in, a)
		},
	}

	res, err := h.proc.Process(h.ctx, Request{Transform: tr})
	require.NoError(t, err)
	assert.True(t, h.session.Owns(scratch), "worker files belong to the request")
	require.NoError(t, os.Remove(res.File.Path))
}

func TestProcessReportsQueueWait(t *testing.T) {
	h := newHarness(t, 1)

	hold := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = h.queue.Do(context.Background(), func(context.Context) error {
			close(holding)
			<-hold
			return nil
		})
	}()
	<-holding

	rec := &Recorder{}
	tr := &Transform{Name: "copy", ExpectFile: true, Run: copyTransform}
	done := make(chan error, 1)
	go func() {
		res, err := h.proc.Process(h.ctx, Request{Transform: tr, Reporter: rec})
		if err == nil {
			_ = os.Remove(res.File.Path)
		}
		done <- err
	}()

	require.Eventually(t, func() bool { return h.queue.Waiting() == 1 }, time.Second, 5*time.Millisecond)
	close(hold)
	require.NoError(t, <-done)
	assert.Equal(t, []string{StatusQueued, StatusForging, StatusUploading}, rec.Statuses())
}

func TestProcessNormalizationFlags(t *testing.T) {
	h := newHarness(t, 1)
	h.norm.notice = "Resized input media from 4000x3000 to 1920x1440."
	tr := &Transform{
		Name:           "thumbnail",
		Inputs:         [][]mediatype.Kind{{mediatype.Image}},
		KeepResolution: true,
		ExpectFile:     true,
		Run:            copyTransform,
	}
	rec := &Recorder{}

	res, err := h.proc.Process(h.ctx, Request{Transform: tr, Inputs: URLs{"image"}, Reporter: rec, Exempt: true})
	require.NoError(t, err)
	assert.False(t, h.norm.resize)
	assert.True(t, h.norm.exempt)
	assert.Equal(t, []string{h.norm.notice}, rec.Notices())
	require.NoError(t, os.Remove(res.File.Path))
}

func TestProcessKeepAnimatedPostStep(t *testing.T) {
	h := newHarness(t, 1)
	h.fetch.kinds["looping"] = mediatype.GIF
	tr := &Transform{
		Name:       "speed",
		Inputs:     [][]mediatype.Kind{{mediatype.Video, mediatype.GIF}},
		Post:       PostKeepAnimated,
		ExpectFile: true,
		Run: func(ctx context.Context, in []*tempfile.File, a Args) (Output, error) {
			in[0].SetLoopCount(3)
			return copyTransform(ctx, in, a)
		},
	}

	res, err := h.proc.Process(h.ctx, Request{Transform: tr, Inputs: URLs{"looping"}})
	require.NoError(t, err)
	assert.Equal(t, []mediatype.Kind{mediatype.GIF}, h.enc.seen)
	assert.Equal(t, mediatype.GIF, res.Kind)
	n, ok := res.File.Loop()
	require.True(t, ok)
	assert.Equal(t, 3, n)
	require.NoError(t, os.Remove(res.File.Path))
}

func TestApplyPostPairAnimated(t *testing.T) {
	s := tempfile.NewSession(t.TempDir())
	defer s.Close()
	ctx := context.Background()

	mk := func(k mediatype.Kind) *tempfile.File {
		f, err := s.Reserve("bin")
		require.NoError(t, err)
		f.KindOverride = k
		return f
	}

	tests := []struct {
		name   string
		inputs []mediatype.Kind
		want   mediatype.Kind
	}{
		{"gif and image", []mediatype.Kind{mediatype.GIF, mediatype.Image}, mediatype.GIF},
		{"image and gif", []mediatype.Kind{mediatype.Image, mediatype.GIF}, mediatype.GIF},
		{"gif and video", []mediatype.Kind{mediatype.GIF, mediatype.Video}, ""},
		{"two images", []mediatype.Kind{mediatype.Image, mediatype.Image}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inputs []*tempfile.File
			for _, k := range tt.inputs {
				inputs = append(inputs, mk(k))
			}
			out := mk("")
			require.NoError(t, applyPost(ctx, PostPairAnimated, inputs, out, nil))
			assert.Equal(t, tt.want, out.KindOverride)
		})
	}
}

func TestProcessRequiresSession(t *testing.T) {
	h := newHarness(t, 1)
	tr := &Transform{Name: "copy", ExpectFile: true, Run: copyTransform}

	_, err := h.proc.Process(context.Background(), Request{Transform: tr})
	assert.ErrorIs(t, err, tempfile.ErrNoSession)
}

func TestProcessCancelledMidJobCleansUp(t *testing.T) {
	for _, mode := range []Mode{Async, Parallel} {
		t.Run(mode.String(), func(t *testing.T) {
			h := newHarness(t, 1)
			dir := t.TempDir()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			reserved := make(chan string, 1)
			release := make(chan struct{})
			tr := &Transform{
				Name:       "slow",
				Mode:       mode,
				ExpectFile: true,
				Run: func(ctx context.Context, _ []*tempfile.File, _ Args) (Output, error) {
					f, err := tempfile.Reserve(ctx, "mp4")
					if err != nil {
						return Output{}, err
					}
					if err := os.WriteFile(f.Path, []byte("partial"), 0o644); err != nil {
						return Output{}, err
					}
					reserved <- f.Path
					if mode == Parallel {
						// native work ignores cancellation
						<-release
						return Output{}, nil
					}
					<-ctx.Done()
					return Output{}, ctx.Err()
				},
			}

			go func() {
				<-reserved
				cancel()
			}()
			_, err := tempfile.Scope(ctx, dir, func(ctx context.Context, _ *tempfile.Session) (*Result, error) {
				return h.proc.Process(ctx, Request{Transform: tr})
			})
			close(release)

			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, 0, h.queue.Running())
			require.Eventually(t, func() bool {
				entries, err := os.ReadDir(dir)
				return err == nil && len(entries) == 0
			}, time.Second, 5*time.Millisecond, "every artifact of the request is removed")
		})
	}
}
