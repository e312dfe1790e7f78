package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"media-forge/internal/logging"
	"media-forge/internal/tempfile"
)

// Direction selects how Stack arranges its inputs.
type Direction int

const (
	Vertical Direction = iota
	Horizontal
)

// ParseDirection accepts "vertical"/"v" and "horizontal"/"h".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "v", "vertical", "vstack":
		return Vertical, nil
	case "h", "horizontal", "hstack":
		return Horizontal, nil
	}
	return Vertical, fmt.Errorf("unknown direction %q", s)
}

// Stack joins still images into one png, scaling each to the first image's
// width (vertical) or height (horizontal). The output is reserved in the
// session carried by ctx. It is CPU bound and meant to run on a parallel
// worker.
func Stack(ctx context.Context, files []*tempfile.File, dir Direction) (*tempfile.File, error) {
	if len(files) < 2 {
		return nil, errors.New("stack needs at least two images")
	}
	out, err := tempfile.Reserve(ctx, "png")
	if err != nil {
		return nil, err
	}

	if VipsAvailable() {
		err = stackVips(files, dir, out.Path)
	} else {
		err = stackImaging(files, dir, out.Path)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func stackVips(files []*tempfile.File, dir Direction, dst string) error {
	base, err := loadVips(files[0].Path)
	if err != nil {
		return err
	}
	defer base.Close()

	for _, f := range files[1:] {
		next, err := loadVips(f.Path)
		if err != nil {
			return err
		}
		scale := float64(base.Width()) / float64(next.Width())
		joinDir := vips.DirectionVertical
		if dir == Horizontal {
			scale = float64(base.Height()) / float64(next.Height())
			joinDir = vips.DirectionHorizontal
		}
		if scale != 1 {
			if err := next.Resize(scale, vips.KernelLanczos3); err != nil {
				next.Close()
				return fmt.Errorf("vips resize %s: %w", f.Path, err)
			}
		}
		err = base.Join(next, joinDir)
		next.Close()
		if err != nil {
			return fmt.Errorf("vips join: %w", err)
		}
	}

	buf, _, err := base.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return fmt.Errorf("vips export failed: %w", err)
	}
	logging.Debug("vips stacked %d images into %dx%d", len(files), base.Width(), base.Height())
	return os.WriteFile(dst, buf, 0o600)
}

func loadVips(path string) (*vips.ImageRef, error) {
	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load %s: %w", path, err)
	}
	if !ref.HasAlpha() {
		if err := ref.AddAlpha(); err != nil {
			ref.Close()
			return nil, fmt.Errorf("vips add alpha %s: %w", path, err)
		}
	}
	return ref, nil
}

func stackImaging(files []*tempfile.File, dir Direction, dst string) error {
	imgs := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := loadConstrained(f.Path)
		if err != nil {
			return fmt.Errorf("load %s: %w", f.Path, err)
		}
		imgs = append(imgs, img)
	}

	first := imgs[0].Bounds()
	var width, height int
	for i, img := range imgs {
		if dir == Vertical {
			imgs[i] = imaging.Resize(img, first.Dx(), 0, imaging.Lanczos)
			height += imgs[i].Bounds().Dy()
		} else {
			imgs[i] = imaging.Resize(img, 0, first.Dy(), imaging.Lanczos)
			width += imgs[i].Bounds().Dx()
		}
	}
	if dir == Vertical {
		width = first.Dx()
	} else {
		height = first.Dy()
	}

	canvas := imaging.New(width, height, color.Transparent)
	offset := 0
	for _, img := range imgs {
		pos := image.Pt(0, offset)
		if dir == Horizontal {
			pos = image.Pt(offset, 0)
		}
		canvas = imaging.Paste(canvas, img, pos)
		if dir == Vertical {
			offset += img.Bounds().Dy()
		} else {
			offset += img.Bounds().Dx()
		}
	}

	logging.Debug("stacked %d images into %dx%d", len(files), width, height)
	return imaging.Save(canvas, dst)
}

// Thumbnail shrinks a still image to fit within maxWidth x maxHeight,
// keeping aspect ratio, and writes a png into the session carried by ctx.
// Images already inside the box are re-encoded at their own size.
func Thumbnail(ctx context.Context, f *tempfile.File, maxWidth, maxHeight int) (*tempfile.File, error) {
	if maxWidth <= 0 || maxHeight <= 0 {
		return nil, fmt.Errorf("invalid thumbnail box %dx%d", maxWidth, maxHeight)
	}
	out, err := tempfile.Reserve(ctx, "png")
	if err != nil {
		return nil, err
	}

	if VipsAvailable() {
		ref, err := vips.LoadImageFromFile(f.Path, vips.NewImportParams())
		if err != nil {
			return nil, fmt.Errorf("vips failed to load image: %w", err)
		}
		defer ref.Close()
		if ref.Width() > maxWidth || ref.Height() > maxHeight {
			if err := ref.Thumbnail(maxWidth, maxHeight, vips.InterestingNone); err != nil {
				return nil, fmt.Errorf("vips resize failed: %w", err)
			}
		}
		buf, _, err := ref.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("vips export failed: %w", err)
		}
		return out, os.WriteFile(out.Path, buf, 0o600)
	}

	img, err := loadConstrained(f.Path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() > maxWidth || b.Dy() > maxHeight {
		img = imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
	}
	return out, imaging.Save(img, out.Path)
}
