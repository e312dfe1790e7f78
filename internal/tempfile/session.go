package tempfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"media-forge/internal/logging"
	"media-forge/internal/metrics"

	"github.com/google/uuid"
)

var (
	// ErrNoSession is returned when a reservation is attempted without an
	// open session in the context.
	ErrNoSession = errors.New("tempfile: no session in context")

	// ErrClosed is returned when reserving into a session that already closed.
	ErrClosed = errors.New("tempfile: session closed")

	// ErrOwned is returned when a path is already owned by another session.
	ErrOwned = errors.New("tempfile: path owned by another session")
)

// owners maps every tracked path to its session across the process.
var owners sync.Map

// Session owns the temp files of one request and deletes them on Close.
type Session struct {
	dir string

	mu     sync.Mutex
	files  []*File
	index  map[string]*File
	closed bool
}

// NewSession creates an empty session that reserves files under dir.
// An empty dir means os.TempDir().
func NewSession(dir string) *Session {
	if dir == "" {
		dir = os.TempDir()
	}
	metrics.SessionsOpen.Inc()
	return &Session{
		dir:   dir,
		index: make(map[string]*File),
	}
}

// Dir returns the directory new files are reserved in.
func (s *Session) Dir() string {
	return s.dir
}

// Reserve allocates a fresh unique path with the given extension and
// registers it. Nothing is created on disk.
func (s *Session) Reserve(ext string) (*File, error) {
	name := uuid.NewString()
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	f, err := s.add(&File{Path: filepath.Join(s.dir, name)})
	if err != nil {
		return nil, err
	}
	metrics.ArtifactsReserved.Inc()
	logging.Debug("reserved temp file %s", f.Path)
	return f, nil
}

// Track registers an existing path (for example, log files an external tool
// wrote next to a reserved prefix). Tracking a path twice returns the
// existing record.
func (s *Session) Track(path string) (*File, error) {
	return s.add(&File{Path: path})
}

func (s *Session) add(f *File) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if existing, ok := s.index[f.Path]; ok {
		return existing, nil
	}
	if prev, loaded := owners.LoadOrStore(f.Path, s); loaded && prev != s {
		return nil, fmt.Errorf("%w: %s", ErrOwned, f.Path)
	}
	s.files = append(s.files, f)
	s.index[f.Path] = f
	return f, nil
}

// Merge moves every file owned by child into s, leaving child empty. If s is
// already closed the child's files are deleted instead so nothing leaks.
func (s *Session) Merge(child *Session) error {
	if child == nil || child == s {
		return nil
	}
	child.mu.Lock()
	moved := child.files
	child.files = nil
	child.index = make(map[string]*File)
	child.mu.Unlock()

	if len(moved) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		for _, f := range moved {
			owners.Delete(f.Path)
		}
		return errors.Join(ErrClosed, deleteAll(moved))
	}
	for _, f := range moved {
		if _, dup := s.index[f.Path]; dup {
			continue
		}
		owners.Store(f.Path, s)
		s.files = append(s.files, f)
		s.index[f.Path] = f
	}
	s.mu.Unlock()
	logging.Debug("merged %d temp files into session", len(moved))
	return nil
}

// Release stops tracking f so Close leaves it on disk. It is used to hand
// the final artifact to the caller, who becomes responsible for it.
func (s *Session) Release(f *File) bool {
	if f == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[f.Path]; !ok {
		return false
	}
	delete(s.index, f.Path)
	for i, tracked := range s.files {
		if tracked.Path == f.Path {
			s.files = append(s.files[:i], s.files[i+1:]...)
			break
		}
	}
	owners.Delete(f.Path)
	metrics.ArtifactsReleased.Inc()
	return true
}

// Owns reports whether path is tracked by this session.
func (s *Session) Owns(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[path]
	return ok
}

// Files returns a snapshot of the tracked files in reservation order.
func (s *Session) Files() []*File {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*File, len(s.files))
	copy(out, s.files)
	return out
}

// Len returns the number of tracked files.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Close deletes every tracked file. Missing files are ignored; other
// removal failures are joined into the returned error. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	files := s.files
	s.files = nil
	s.index = nil
	s.mu.Unlock()

	for _, f := range files {
		owners.Delete(f.Path)
	}
	metrics.SessionsOpen.Dec()
	return deleteAll(files)
}

func deleteAll(files []*File) error {
	var errs []error
	for _, f := range files {
		if err := f.remove(); err != nil {
			metrics.ArtifactDeleteErrors.Inc()
			errs = append(errs, fmt.Errorf("remove %s: %w", f.Path, err))
			continue
		}
		metrics.ArtifactsDeleted.Inc()
	}
	if len(files) > 0 {
		logging.Debug("cleaned up %d temp files", len(files))
	}
	return errors.Join(errs...)
}

type sessionKey struct{}

// NewContext returns a context carrying s as the request's session.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session carried by ctx.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// Reserve allocates a new file in the session carried by ctx.
func Reserve(ctx context.Context, ext string) (*File, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoSession
	}
	return s.Reserve(ext)
}

// Track registers an existing path in the session carried by ctx.
func Track(ctx context.Context, path string) (*File, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoSession
	}
	return s.Track(path)
}

// Scope opens a new session, runs fn with it attached to ctx, and closes
// the session on every exit path. Nested scopes are independent: files
// reserved in the inner scope are deleted when it exits unless fn releases
// them or merges them elsewhere.
func Scope[T any](ctx context.Context, dir string, fn func(ctx context.Context, s *Session) (T, error)) (T, error) {
	s := NewSession(dir)
	defer func() {
		if err := s.Close(); err != nil {
			logging.Warn("temp file cleanup incomplete: %v", err)
		}
	}()
	return fn(NewContext(ctx, s), s)
}
