package mediatype

import (
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

type fakeProber struct {
	streams []Stream
	err     error
	calls   int
}

func (f *fakeProber) Streams(_ context.Context, _ string) ([]Stream, error) {
	f.calls++
	return f.streams, f.err
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func writeGIF(t *testing.T, path string, frames int) {
	t.Helper()
	g := &gif.GIF{}
	for i := 0; i < frames; i++ {
		p := image.NewPaletted(image.Rect(0, 0, 8, 8), palette.Plan9)
		p.SetColorIndex(i%8, i%8, uint8(i+1))
		g.Image = append(g.Image, p)
		g.Delay = append(g.Delay, 5)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := gif.EncodeAll(f, g); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
}

func pngChunk(typ string, data []byte) []byte {
	out := make([]byte, 8, 12+len(data))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(data)))
	copy(out[4:8], typ)
	out = append(out, data...)
	return append(out, 0, 0, 0, 0) // crc is not checked by the scanner
}

func TestClassifyStillAndAnimated(t *testing.T) {
	dir := t.TempDir()

	stillPNG := filepath.Join(dir, "still.png")
	writePNG(t, stillPNG)

	oneFrame := filepath.Join(dir, "one.gif")
	writeGIF(t, oneFrame, 1)

	animated := filepath.Join(dir, "anim.gif")
	writeGIF(t, animated, 3)

	apng := filepath.Join(dir, "anim.png")
	data := append([]byte{}, pngSignature...)
	data = append(data, pngChunk("IHDR", make([]byte, 13))...)
	data = append(data, pngChunk("acTL", make([]byte, 8))...)
	data = append(data, pngChunk("IDAT", nil)...)
	if err := os.WriteFile(apng, data, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want Kind
	}{
		{"png still", stillPNG, Image},
		{"single frame gif is an image", oneFrame, Image},
		{"multi frame gif", animated, GIF},
		{"apng", apng, GIF},
	}

	prober := &fakeProber{}
	c := NewClassifier(prober)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tt.path)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify(%s) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
	if prober.calls != 0 {
		t.Errorf("decodable images should not reach the prober, got %d calls", prober.calls)
	}
}

func TestClassifyFallsBackToProber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("\x00\x00\x00\x18ftypisom"), 0o644); err != nil {
		t.Fatal(err)
	}

	prober := &fakeProber{streams: []Stream{
		{CodecType: "video", CodecName: "h264", Packets: 240},
		{CodecType: "audio", CodecName: "aac", Packets: 400},
	}}
	got, err := NewClassifier(prober).Classify(context.Background(), path)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != Video {
		t.Errorf("got %s, want VIDEO", got)
	}
	if prober.calls != 1 {
		t.Errorf("expected one probe call, got %d", prober.calls)
	}
}

func TestClassifyInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	var invalid *InvalidError

	_, err := NewClassifier(nil).Classify(context.Background(), path)
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidError without prober, got %v", err)
	}

	probeErr := errors.New("ffprobe exploded")
	_, err = NewClassifier(&fakeProber{err: probeErr}).Classify(context.Background(), path)
	if !errors.As(err, &invalid) || !errors.Is(err, probeErr) {
		t.Errorf("expected InvalidError wrapping probe error, got %v", err)
	}

	_, err = NewClassifier(&fakeProber{}).Classify(context.Background(), path)
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidError for streamless file, got %v", err)
	}

	_, err = NewClassifier(nil).Classify(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidError for missing file, got %v", err)
	}
}

func TestKindFromStreams(t *testing.T) {
	tests := []struct {
		name    string
		streams []Stream
		want    Kind
	}{
		{"video wins over audio", []Stream{{"audio", "aac", 10}, {"video", "h264", 90}}, Video},
		{"gif codec with frames", []Stream{{"video", "gif", 12}}, GIF},
		{"audio only", []Stream{{"audio", "mp3", 500}}, Audio},
		{"cover art with audio is audio", []Stream{{"audio", "flac", 500}, {"video", "mjpeg", 1}}, Audio},
		{"single frame", []Stream{{"video", "png", 1}}, Image},
		{"unknown packet count is a still", []Stream{{"video", "h264", -1}}, Image},
		{"zero packets is not a still", []Stream{{"video", "h264", 0}}, Video},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KindFromStreams("x", tt.streams)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseAndSets(t *testing.T) {
	k, err := Parse(" gif ")
	if err != nil || k != GIF {
		t.Errorf("Parse(gif) = %v, %v", k, err)
	}
	if _, err := Parse("document"); err == nil {
		t.Error("expected error for unknown kind")
	}

	if !Contains(nil, Audio) {
		t.Error("empty constraint set should accept anything")
	}
	if Contains([]Kind{Video, GIF}, Image) {
		t.Error("IMAGE should not satisfy VIDEO/GIF")
	}
	if got := Join([]Kind{Video, GIF}); got != "VIDEO, GIF" {
		t.Errorf("Join = %q", got)
	}
	if !GIF.Animated() || Image.Animated() {
		t.Error("Animated() mismatch")
	}
	if Audio.Visual() || !Image.Visual() {
		t.Error("Visual() mismatch")
	}
}
