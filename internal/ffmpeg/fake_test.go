package ffmpeg

import (
	"context"
	"encoding/binary"
	"os"
	"strings"
	"sync"
	"testing"

	"media-forge/internal/mediatype"
	"media-forge/internal/tempfile"
)

// fakeExec records invocations and, for ffmpeg, writes the output file the
// way the real tool would.
type fakeExec struct {
	mu      sync.Mutex
	calls   [][]string
	respond func(tool string, args []string) (string, error)
}

func (f *fakeExec) Run(_ context.Context, tool string, args ...string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{tool}, args...))
	f.mu.Unlock()

	if tool == FFmpeg && len(args) > 0 {
		out := args[len(args)-1]
		if out != "-" && out != os.DevNull {
			if err := os.WriteFile(out, []byte("encoded"), 0o600); err != nil {
				return "", err
			}
		}
		for i, a := range args {
			if a == "-passlogfile" && i+1 < len(args) {
				_ = os.WriteFile(args[i+1]+"-0.log", []byte("log"), 0o600)
				_ = os.WriteFile(args[i+1]+"-0.log.mbtree", []byte("tree"), 0o600)
			}
		}
	}
	if f.respond != nil {
		return f.respond(tool, args)
	}
	return "", nil
}

func (f *fakeExec) ffmpegCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if c[0] == FFmpeg && !contains(c, "null") {
			out = append(out, c[1:])
		}
	}
	return out
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func hasEntries(args []string, entries string) bool {
	for i, a := range args {
		if a == "-show_entries" && i+1 < len(args) && strings.HasPrefix(args[i+1], entries) {
			return true
		}
	}
	return false
}

type staticClassifier struct {
	kind mediatype.Kind
}

func (c staticClassifier) Classify(context.Context, string) (mediatype.Kind, error) {
	return c.kind, nil
}

func sessionContext(t *testing.T) (context.Context, *tempfile.Session) {
	t.Helper()
	s := tempfile.NewSession(t.TempDir())
	t.Cleanup(func() { _ = s.Close() })
	return tempfile.NewContext(context.Background(), s), s
}

// buildAPNG assembles a minimal animated png with the given frame delays.
func buildAPNG(delays [][2]uint16) []byte {
	var b []byte
	b = append(b, pngMagic...)
	chunk := func(kind string, data []byte) {
		var hdr [8]byte
		binary.BigEndian.PutUint32(hdr[:4], uint32(len(data)))
		copy(hdr[4:], kind)
		b = append(b, hdr[:]...)
		b = append(b, data...)
		b = append(b, 0, 0, 0, 0)
	}
	chunk("IHDR", make([]byte, 13))
	actl := make([]byte, 8)
	binary.BigEndian.PutUint32(actl[:4], uint32(len(delays)))
	chunk("acTL", actl)
	for i, d := range delays {
		fctl := make([]byte, 26)
		binary.BigEndian.PutUint32(fctl[:4], uint32(i))
		binary.BigEndian.PutUint16(fctl[20:22], d[0])
		binary.BigEndian.PutUint16(fctl[22:24], d[1])
		chunk("fcTL", fctl)
		chunk("IDAT", []byte{0})
	}
	chunk("IEND", nil)
	return b
}
