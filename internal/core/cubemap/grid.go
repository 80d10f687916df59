// Package cubemap integrates equirectangular environment maps over a cube
// of sample cells, producing spherical harmonics training labels.
package cubemap

import (
	"fmt"
	"math"

	"github.com/zeusync/xihe/internal/core/geometry"
	"github.com/zeusync/xihe/internal/core/sh"
	"github.com/zeusync/xihe/pkg/concurrent"
)

// DefaultResolution is the per-face cell count along each axis.
const DefaultResolution = 128

// Grid is the precomputed sampling table for one (width, height) source
// size. Cells are stored face by face, row by row. A Grid is immutable
// once built and shared by every caller of the same Sampler.
type Grid struct {
	Width, Height, Resolution int

	// flat source pixel each cell reads
	pixelIndex []int
	// corrected, un-normalized cell directions
	directions []geometry.Vec3
	// solid angle weights 4/|v|³
	weights []float32
	// SH basis at each normalized direction
	basis [][9]float32

	normalizer float64
}

// BuildGrid samples each cube face on a resolution x resolution lattice.
// The un-rotated cell direction selects the source pixel while the
// canvas-corrected direction drives the weight and the basis.
func BuildGrid(width, height, resolution int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: source %dx%d", ErrInvalidGrid, width, height)
	}
	if resolution < 2 {
		return nil, fmt.Errorf("%w: resolution %d", ErrInvalidGrid, resolution)
	}

	faces := concurrent.ParallelMap(geometry.CubeFaces[:], len(geometry.CubeFaces), func(face geometry.CubeFace) faceCells {
		return sampleFace(face, width, height, resolution)
	})

	cells := len(geometry.CubeFaces) * resolution * resolution
	g := &Grid{
		Width:      width,
		Height:     height,
		Resolution: resolution,
		pixelIndex: make([]int, 0, cells),
		directions: make([]geometry.Vec3, 0, cells),
		weights:    make([]float32, 0, cells),
		basis:      make([][9]float32, 0, cells),
	}

	var total float64
	for _, f := range faces {
		if f.err != nil {
			return nil, f.err
		}
		g.pixelIndex = append(g.pixelIndex, f.pixelIndex...)
		g.directions = append(g.directions, f.directions...)
		g.weights = append(g.weights, f.weights...)
		g.basis = append(g.basis, f.basis...)
		total += f.total
	}

	g.normalizer = 4 * math.Pi / total
	return g, nil
}

type faceCells struct {
	pixelIndex []int
	directions []geometry.Vec3
	weights    []float32
	basis      [][9]float32
	total      float64
	err        error
}

func sampleFace(face geometry.CubeFace, width, height, resolution int) faceCells {
	n := resolution * resolution
	f := faceCells{
		pixelIndex: make([]int, 0, n),
		directions: make([]geometry.Vec3, 0, n),
		weights:    make([]float32, 0, n),
		basis:      make([][9]float32, 0, n),
	}

	correction := geometry.CanvasCorrection()
	step := 1 / float32(resolution-1)

	for vi := 0; vi < resolution; vi++ {
		for ui := 0; ui < resolution; ui++ {
			xyz, err := geometry.CubeUVToXYZ(face, geometry.Vec2{X: float32(ui) * step, Y: float32(vi) * step})
			if err != nil {
				f.err = err
				return f
			}

			f.pixelIndex = append(f.pixelIndex, pixelIndex(xyz, width, height))

			v := correction.MulVec(xyz)
			l := v.Len()
			w := 4 / (l * l * l)
			f.total += float64(w)

			f.directions = append(f.directions, v)
			f.weights = append(f.weights, w)
			f.basis = append(f.basis, sh.Basis(v.Mul(1/l)))
		}
	}
	return f
}

// pixelIndex maps a cube direction onto the equirectangular source pixel
// through its spherical coordinates.
func pixelIndex(xyz geometry.Vec3, width, height int) int {
	s := geometry.CartesianToSpherical(xyz)
	row := int(float64(s.Theta) / math.Pi * float64(height-1))
	col := int((float64(s.Phi) + math.Pi) / (2 * math.Pi) * float64(width-1))
	row = clamp(row, 0, height-1)
	col = clamp(col, 0, width-1)
	return row*width + col
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Len returns the number of cells.
func (g *Grid) Len() int { return len(g.pixelIndex) }

// PixelIndex returns the flat source pixel cell i reads.
func (g *Grid) PixelIndex(i int) int { return g.pixelIndex[i] }

// Direction returns the corrected, un-normalized direction of cell i.
func (g *Grid) Direction(i int) geometry.Vec3 { return g.directions[i] }

// Weight returns the solid angle weight of cell i.
func (g *Grid) Weight(i int) float32 { return g.weights[i] }

// Basis returns a copy of the SH basis of cell i.
func (g *Grid) Basis(i int) [9]float32 { return g.basis[i] }

// Normalizer returns 4π over the summed weights.
func (g *Grid) Normalizer() float64 { return g.normalizer }
