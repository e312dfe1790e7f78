package media

import (
	"fmt"
	"image"
	"os"

	// decoders for image.DecodeConfig and imaging.Open
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"media-forge/internal/logging"
)

const (
	// MaxImageDimension bounds either side of an image the pure-Go path
	// will hold in memory.
	MaxImageDimension = 8192

	// MaxImagePixels bounds the total pixels decoded by the pure-Go path
	// (~40MP, about 160MB as RGBA).
	MaxImagePixels = 40_000_000
)

// Dimensions returns the width and height of an image without decoding it.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// constrain shrinks width x height to fit both limits, keeping aspect ratio.
func constrain(width, height, maxDimension, maxPixels int) (int, int) {
	w, h := width, height
	if w > maxDimension || h > maxDimension {
		if w >= h {
			h = h * maxDimension / w
			w = maxDimension
		} else {
			w = w * maxDimension / h
			h = maxDimension
		}
	}
	if w*h > maxPixels {
		scale := float64(maxPixels) / float64(w*h)
		w = int(float64(w) * scale)
		h = int(float64(h) * scale)
	}
	return max(w, 1), max(h, 1)
}

// loadConstrained decodes an image with EXIF orientation applied, shrinking
// it first when it exceeds the memory limits above.
func loadConstrained(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	b := img.Bounds()
	w, h := constrain(b.Dx(), b.Dy(), MaxImageDimension, MaxImagePixels)
	if w == b.Dx() && h == b.Dy() {
		return img, nil
	}
	logging.Info("Constraining large image %s from %dx%d to %dx%d", path, b.Dx(), b.Dy(), w, h)
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}
