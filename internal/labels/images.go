package labels

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/zeusync/xihe/internal/core/canvas"
	"github.com/zeusync/xihe/internal/core/colorspace"
)

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// LoadLDR reads an 8-bit illumination map into [0,1] RGB.
func LoadLDR(path string) (*canvas.Canvas, error) {
	img, err := decodePNG(path)
	if err != nil {
		return nil, err
	}
	return canvas.FromImage(img), nil
}

// LoadHDR reads three 16-bit single channel maps (r, g, b), decodes each
// code into radiance and applies the per-channel gains.
func LoadHDR(paths [3]string) (*canvas.Canvas, error) {
	var out *canvas.Canvas
	for ch, path := range paths {
		img, err := decodePNG(path)
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		if out == nil {
			if out, err = canvas.New(b.Dx(), b.Dy(), 3); err != nil {
				return nil, err
			}
		} else if b.Dx() != out.Width || b.Dy() != out.Height {
			return nil, fmt.Errorf("%w: %s is %dx%d, want %dx%d",
				canvas.ErrInvalidSize, path, b.Dx(), b.Dy(), out.Width, out.Height)
		}

		gain := colorspace.HDRGains[ch]
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				code := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y
				out.Pixel(x, y)[ch] = colorspace.MapHDR(code) * gain
			}
		}
	}
	return out, nil
}
