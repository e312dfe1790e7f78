package tempfile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"media-forge/internal/logging"
	"media-forge/internal/mediatype"
)

// File is an on-disk artifact owned by exactly one Session.
type File struct {
	Path string

	// KindOverride forces the classification, for containers that lie about
	// their content (e.g. an ffv1 mkv that should be treated as a gif).
	KindOverride mediatype.Kind

	// CodecLocked forbids re-encoding the file into the canonical codec.
	CodecLocked bool

	// LoopCount carries gif loop semantics; nil means unknown.
	LoopCount *int

	removed atomic.Bool
}

// Classifier decides the kind of a path.
type Classifier interface {
	Classify(ctx context.Context, path string) (mediatype.Kind, error)
}

func (f *File) String() string {
	return f.Path
}

// Ext returns the lowercase extension without the leading dot.
func (f *File) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Path), "."))
}

// Size returns the current size of the file in bytes.
func (f *File) Size() (int64, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Kind returns KindOverride when set, otherwise asks the classifier.
func (f *File) Kind(ctx context.Context, c Classifier) (mediatype.Kind, error) {
	if f.KindOverride != "" {
		return f.KindOverride, nil
	}
	return c.Classify(ctx, f.Path)
}

// SetLoopCount records the gif loop count.
func (f *File) SetLoopCount(n int) {
	f.LoopCount = &n
}

// Loop returns the loop count and whether one is known.
func (f *File) Loop() (int, bool) {
	if f.LoopCount == nil {
		return 0, false
	}
	return *f.LoopCount, true
}

// InheritFrom copies the kind override and loop count of src, used when an
// operation produces a new rendition of the same logical media.
func (f *File) InheritFrom(src *File) {
	if src == nil {
		return
	}
	if src.KindOverride != "" {
		f.KindOverride = src.KindOverride
	}
	if src.LoopCount != nil {
		f.SetLoopCount(*src.LoopCount)
	}
}

// Removed reports whether the file has been deleted by its session.
func (f *File) Removed() bool {
	return f.removed.Load()
}

// remove deletes the file at most once. A file that is already gone is not
// an error.
func (f *File) remove() error {
	if !f.removed.CompareAndSwap(false, true) {
		return nil
	}
	err := os.Remove(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		logging.Debug("temp file %s already removed", f.Path)
		return nil
	}
	return err
}
