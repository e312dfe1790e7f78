package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-forge/internal/apperrors"
	"media-forge/internal/logging"
	"media-forge/internal/mediatype"
	"media-forge/internal/metrics"
	"media-forge/internal/normalize"
	"media-forge/internal/parallel"
	"media-forge/internal/queue"
	"media-forge/internal/tempfile"
)

// Fetcher downloads a location into a file reserved in the session carried
// by ctx.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*tempfile.File, error)
}

// Normalizer clamps an input before the transform sees it.
type Normalizer interface {
	Apply(ctx context.Context, f *tempfile.File, resize, exempt bool, notify normalize.Notifier) (*tempfile.File, error)
}

// Reencoder converts an output into its canonical codec.
type Reencoder interface {
	Reencode(ctx context.Context, f *tempfile.File) (*tempfile.File, error)
}

// Fitter makes an output fit the upload limit.
type Fitter interface {
	Fit(ctx context.Context, f *tempfile.File) (*tempfile.File, error)
}

// APNGDetector flags inputs with limited tool support.
type APNGDetector interface {
	IsAPNG(ctx context.Context, path string) (bool, error)
}

// Deps are the collaborators a Processor drives.
type Deps struct {
	Queue      *queue.Queue
	Fetcher    Fetcher
	Classifier tempfile.Classifier
	Normalizer Normalizer
	Reencoder  Reencoder
	Fitter     Fitter
	APNG       APNGDetector
}

// Request is one transform invocation.
type Request struct {
	ID        string
	Transform *Transform
	Args      Args
	Inputs    Resolver
	Reporter  Reporter

	// Exempt requests skip the duration cap.
	Exempt bool
}

// Result is the outcome of a request. File has been released from the
// session: the caller owns it and must remove it once handed off.
type Result struct {
	File *tempfile.File
	Kind mediatype.Kind
	Text string
}

// Processor runs requests end to end.
type Processor struct {
	deps Deps
}

// New creates a Processor.
func New(d Deps) *Processor {
	return &Processor{deps: d}
}

// Queue returns the admission queue requests run on.
func (p *Processor) Queue() *queue.Queue {
	return p.deps.Queue
}

// Process downloads and validates the inputs of req, runs its transform as
// one queue job (normalization, the transform itself, re-encoding and size
// fitting) and returns the result. ctx must carry the request's session;
// every intermediate file stays in it and is deleted when it closes.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	if req.Transform == nil {
		return nil, errors.New("process: no transform")
	}
	if req.Reporter == nil {
		req.Reporter = nopReporter{}
	}

	start := time.Now()
	res, err := p.process(ctx, req)
	name := req.Transform.Name
	metrics.ProcessRequestsTotal.WithLabelValues(name, outcome(err)).Inc()
	metrics.ProcessDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return res, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case apperrors.IsUser(err):
		return "user_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (p *Processor) process(ctx context.Context, req Request) (*Result, error) {
	session, ok := tempfile.FromContext(ctx)
	if !ok {
		return nil, tempfile.ErrNoSession
	}
	t := req.Transform
	log := logging.ForRequest(req.ID)

	files, err := p.gather(ctx, req, log)
	if err != nil {
		return nil, err
	}

	q := p.deps.Queue
	if q.Enabled() && q.Saturated() {
		req.Reporter.Status(StatusQueued)
	}

	out, err := queue.Enqueue(ctx, q, func(ctx context.Context) (Output, error) {
		log.Info("Processing %s", t.Name)
		req.Reporter.Status(StatusForging)
		return p.run(ctx, req, files, log)
	})
	if err != nil {
		return nil, err
	}

	if !t.ExpectFile {
		if out.Text == "" {
			return nil, &apperrors.EmptyResultError{Transform: t.Name, Expected: t.expected()}
		}
		return &Result{Text: out.Text}, nil
	}
	if out.File == nil {
		return nil, &apperrors.EmptyResultError{Transform: t.Name, Expected: t.expected()}
	}

	kind, err := out.File.Kind(ctx, p.deps.Classifier)
	if err != nil {
		return nil, err
	}
	req.Reporter.Status(StatusUploading)
	session.Release(out.File)
	log.Info("%s produced %s (%s)", t.Name, out.File.Path, kind)
	return &Result{File: out.File, Kind: kind}, nil
}

// gather resolves, downloads and validates the media inputs of req.
func (p *Processor) gather(ctx context.Context, req Request, log *logging.Logger) ([]*tempfile.File, error) {
	t := req.Transform
	if len(t.Inputs) == 0 {
		return nil, nil
	}
	req.Reporter.Status(StatusDownloading)

	if req.Inputs == nil {
		return nil, apperrors.Userf("No file found.")
	}
	urls, err := req.Inputs.Resolve(ctx, len(t.Inputs))
	if err != nil {
		return nil, err
	}
	if len(urls) < len(t.Inputs) {
		log.Info("No media found (%d of %d)", len(urls), len(t.Inputs))
		return nil, apperrors.Userf("No file found.")
	}

	files := make([]*tempfile.File, 0, len(urls))
	for _, u := range urls {
		f, err := p.deps.Fetcher.Fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	for i, f := range files {
		kind, err := f.Kind(ctx, p.deps.Classifier)
		if err != nil {
			return nil, err
		}
		if !mediatype.Contains(t.Inputs[i], kind) {
			log.Info("Media %d type %s is not in %v", i, kind, t.Inputs[i])
			return nil, apperrors.Userf("Media #%d is %s, it must be: %s", i+1, kind, mediatype.Join(t.Inputs[i]))
		}
		if p.deps.APNG == nil {
			continue
		}
		if apng, err := p.deps.APNG.IsAPNG(ctx, f.Path); err != nil {
			log.Debug("apng check failed for %s: %v", f.Path, err)
		} else if apng {
			req.Reporter.Notice(fmt.Sprintf("Media #%d is an apng, which has limited support. Expect errors.", i+1))
		}
	}
	return files, nil
}

// run is the queued part of a request.
func (p *Processor) run(ctx context.Context, req Request, files []*tempfile.File, log *logging.Logger) (Output, error) {
	t := req.Transform

	if p.deps.Normalizer != nil {
		for i := range files {
			f, err := p.deps.Normalizer.Apply(ctx, files[i], !t.KeepResolution, req.Exempt, req.Reporter.Notice)
			if err != nil {
				return Output{}, err
			}
			files[i] = f
		}
	}

	out, err := p.invoke(ctx, t, files, req.Args, log)
	if err != nil || !t.ExpectFile || out.File == nil {
		return out, err
	}

	if err := applyPost(ctx, t.Post, files, out.File, p.deps.Classifier); err != nil {
		return Output{}, err
	}
	if p.deps.Reencoder != nil {
		if out.File, err = p.deps.Reencoder.Reencode(ctx, out.File); err != nil {
			return Output{}, err
		}
	}
	if p.deps.Fitter != nil {
		if out.File, err = p.deps.Fitter.Fit(ctx, out.File); err != nil {
			return Output{}, err
		}
	}
	return out, nil
}

func (p *Processor) invoke(ctx context.Context, t *Transform, files []*tempfile.File, args Args, log *logging.Logger) (Output, error) {
	switch t.Mode {
	case Parallel:
		return parallel.Run(ctx, func(ctx context.Context) (Output, error) {
			return t.Run(ctx, files, args)
		})
	case Inline:
		log.Warn("%s is not asynchronous, running inline", t.Name)
	}
	return t.Run(ctx, files, args)
}
