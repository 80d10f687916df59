// Package canvas provides the dense (H, W, C) float buffer used for
// equirectangular environment maps, both as SH label sources and as
// reconstruction targets.
package canvas

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/zeusync/xihe/internal/core/geometry"
	"github.com/zeusync/xihe/internal/core/pointcloud"
)

var (
	ErrInvalidSize = errors.New("invalid canvas size")
)

// Canvas is a row-major (Height, Width, Channels) float32 buffer.
type Canvas struct {
	Width    int
	Height   int
	Channels int
	Data     []float32
}

// New allocates a zeroed canvas.
func New(width, height, channels int) (*Canvas, error) {
	if width <= 0 || height <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidSize, width, height, channels)
	}
	return &Canvas{
		Width:    width,
		Height:   height,
		Channels: channels,
		Data:     make([]float32, width*height*channels),
	}, nil
}

// NewEquirectangular builds a 2H x H canvas whose three channels hold the
// unit direction seen by each pixel, in the y-up canvas frame.
func NewEquirectangular(height int) (*Canvas, error) {
	c, err := New(2*height, height, 3)
	if err != nil {
		return nil, err
	}

	correction := geometry.CanvasCorrection()
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			d := geometry.EquirectangularUVToCartesian(geometry.Vec2{X: float32(x), Y: float32(y)}, c.Width, c.Height)
			d = correction.MulVec(d)
			px := c.Pixel(x, y)
			px[0], px[1], px[2] = d.X, d.Y, d.Z
		}
	}
	return c, nil
}

// Pixel returns the channel slice of (x, y), sharing storage.
func (c *Canvas) Pixel(x, y int) []float32 {
	i := (y*c.Width + x) * c.Channels
	return c.Data[i : i+c.Channels]
}

// PixelAt returns the channel slice of the flat pixel index i.
func (c *Canvas) PixelAt(i int) []float32 {
	return c.Data[i*c.Channels : (i+1)*c.Channels]
}

// Len returns the number of pixels.
func (c *Canvas) Len() int { return c.Width * c.Height }

// Clear zeroes the buffer.
func (c *Canvas) Clear() {
	for i := range c.Data {
		c.Data[i] = 0
	}
}

// Vectors reinterprets a 3 channel canvas as one vector per pixel.
func (c *Canvas) Vectors() ([]geometry.Vec3, error) {
	if c.Channels != 3 {
		return nil, fmt.Errorf("%w: %d channels, want 3", ErrInvalidSize, c.Channels)
	}
	out := make([]geometry.Vec3, c.Len())
	for i := range out {
		p := c.PixelAt(i)
		out[i] = geometry.Vec3{X: p[0], Y: p[1], Z: p[2]}
	}
	return out, nil
}

// Downsample keeps every step-th pixel along both axes.
func (c *Canvas) Downsample(step int) *Canvas {
	if step <= 1 {
		return c.Clone()
	}
	w := (c.Width + step - 1) / step
	h := (c.Height + step - 1) / step
	out := &Canvas{Width: w, Height: h, Channels: c.Channels, Data: make([]float32, w*h*c.Channels)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copy(out.Pixel(x, y), c.Pixel(x*step, y*step))
		}
	}
	return out
}

// FlipHorizontal mirrors the canvas left to right.
func (c *Canvas) FlipHorizontal() *Canvas {
	out := &Canvas{Width: c.Width, Height: c.Height, Channels: c.Channels, Data: make([]float32, len(c.Data))}
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			copy(out.Pixel(c.Width-1-x, y), c.Pixel(x, y))
		}
	}
	return out
}

// Clone returns a deep copy.
func (c *Canvas) Clone() *Canvas {
	out := *c
	out.Data = append([]float32(nil), c.Data...)
	return &out
}

// DrawPointCloud splats every point color additively onto the pixel its
// direction falls on. The canvas must be 2H x H with at least 3 channels.
func (c *Canvas) DrawPointCloud(pc pointcloud.PointCloud) error {
	if c.Width != 2*c.Height || c.Channels < 3 {
		return fmt.Errorf("%w: %dx%dx%d is not an equirectangular color canvas",
			ErrInvalidSize, c.Width, c.Height, c.Channels)
	}
	for i, p := range pc.Positions {
		u, v := geometry.CartesianToEquirectangularUV(p, c.Height)
		px := c.Pixel(u, v)
		col := pc.Color(i)
		px[0] += col.X
		px[1] += col.Y
		px[2] += col.Z
	}
	return nil
}

// FromImage converts any image into a 3 channel canvas with values in [0,1].
func FromImage(img image.Image) *Canvas {
	b := img.Bounds()
	c := &Canvas{Width: b.Dx(), Height: b.Dy(), Channels: 3}
	c.Data = make([]float32, c.Width*c.Height*3)
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			px := c.Pixel(x, y)
			px[0] = float32(r) / 0xffff
			px[1] = float32(g) / 0xffff
			px[2] = float32(bl) / 0xffff
		}
	}
	return c
}

// ToImage clamps the first three channels to [0,1] and quantizes them to
// 8 bits. Single channel canvases are rendered as gray.
func (c *Canvas) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, c.Width, c.Height))
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			px := c.Pixel(x, y)
			var r, g, b uint8
			if c.Channels >= 3 {
				r, g, b = quantize(px[0]), quantize(px[1]), quantize(px[2])
			} else {
				r = quantize(px[0])
				g, b = r, r
			}
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 0xff})
		}
	}
	return img
}

func quantize(v float32) uint8 {
	if v <= 0 || v != v {
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return uint8(v * 255)
}
