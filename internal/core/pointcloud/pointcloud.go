// Package pointcloud defines the colored point cloud value type produced by
// the binary codecs and consumed by projection and inference.
package pointcloud

import (
	"errors"
	"fmt"

	"github.com/zeusync/xihe/internal/core/geometry"
)

var (
	ErrShapeMismatch = errors.New("point cloud shape mismatch")
)

// ColorDim is the number of leading feature channels that hold RGB.
const ColorDim = 3

// PointCloud stores N positions and an N x Dim feature matrix, row-major.
// The first three feature channels are the color. Methods never mutate the
// receiver; transforms return new values.
type PointCloud struct {
	Positions []geometry.Vec3
	Features  []float32
	Dim       int
}

// New validates the shapes and wraps the slices without copying.
func New(positions []geometry.Vec3, features []float32, dim int) (PointCloud, error) {
	if dim < ColorDim {
		return PointCloud{}, fmt.Errorf("%w: feature dim %d < %d", ErrShapeMismatch, dim, ColorDim)
	}
	if len(features) != len(positions)*dim {
		return PointCloud{}, fmt.Errorf("%w: %d positions, %d features of dim %d",
			ErrShapeMismatch, len(positions), len(features), dim)
	}
	return PointCloud{Positions: positions, Features: features, Dim: dim}, nil
}

// Zeros allocates an all-zero RGB point cloud of n points.
func Zeros(n int) PointCloud {
	return PointCloud{
		Positions: make([]geometry.Vec3, n),
		Features:  make([]float32, n*ColorDim),
		Dim:       ColorDim,
	}
}

// FromArray splits a row-major (N, 3+dim) array into positions and features.
func FromArray(data []float32, dim int) (PointCloud, error) {
	stride := 3 + dim
	if dim < ColorDim || len(data)%stride != 0 {
		return PointCloud{}, fmt.Errorf("%w: %d values do not form rows of %d", ErrShapeMismatch, len(data), stride)
	}
	n := len(data) / stride
	pc := PointCloud{
		Positions: make([]geometry.Vec3, n),
		Features:  make([]float32, n*dim),
		Dim:       dim,
	}
	for i := 0; i < n; i++ {
		row := data[i*stride : (i+1)*stride]
		pc.Positions[i] = geometry.Vec3{X: row[0], Y: row[1], Z: row[2]}
		copy(pc.Features[i*dim:(i+1)*dim], row[3:])
	}
	return pc, nil
}

// Len returns the number of points.
func (pc PointCloud) Len() int { return len(pc.Positions) }

// Color returns the RGB channels of point i.
func (pc PointCloud) Color(i int) geometry.Vec3 {
	f := pc.Features[i*pc.Dim:]
	return geometry.Vec3{X: f[0], Y: f[1], Z: f[2]}
}

// SetColor overwrites the RGB channels of point i in place.
func (pc PointCloud) SetColor(i int, c geometry.Vec3) {
	f := pc.Features[i*pc.Dim:]
	f[0], f[1], f[2] = c.X, c.Y, c.Z
}

// Colors returns a copy of the RGB channels as vectors.
func (pc PointCloud) Colors() []geometry.Vec3 {
	out := make([]geometry.Vec3, pc.Len())
	for i := range out {
		out[i] = pc.Color(i)
	}
	return out
}

// Split returns the positions and the features slices.
func (pc PointCloud) Split() ([]geometry.Vec3, []float32) {
	return pc.Positions, pc.Features
}

// Array flattens the cloud into a row-major (N, 3+Dim) array.
func (pc PointCloud) Array() []float32 {
	stride := 3 + pc.Dim
	out := make([]float32, pc.Len()*stride)
	for i, p := range pc.Positions {
		row := out[i*stride : (i+1)*stride]
		row[0], row[1], row[2] = p.X, p.Y, p.Z
		copy(row[3:], pc.Features[i*pc.Dim:(i+1)*pc.Dim])
	}
	return out
}

// Slice returns the points in [from, to) sharing storage with pc.
func (pc PointCloud) Slice(from, to int) PointCloud {
	return PointCloud{
		Positions: pc.Positions[from:to],
		Features:  pc.Features[from*pc.Dim : to*pc.Dim],
		Dim:       pc.Dim,
	}
}

// Translate returns a copy with every position moved by -v, which recenters
// the cloud on v.
func (pc PointCloud) Translate(v geometry.Vec3) PointCloud {
	out := make([]geometry.Vec3, pc.Len())
	for i, p := range pc.Positions {
		out[i] = p.Sub(v)
	}
	return PointCloud{Positions: out, Features: pc.Features, Dim: pc.Dim}
}

// Rotate returns a copy with positions rotated by the XYZ Euler angles.
func (pc PointCloud) Rotate(angles geometry.Vec3) PointCloud {
	return PointCloud{
		Positions: geometry.EulerRotationXYZ(pc.Positions, angles),
		Features:  pc.Features,
		Dim:       pc.Dim,
	}
}

// IsZeroRow reports whether point i has a zero position and zero features.
func (pc PointCloud) IsZeroRow(i int) bool {
	if !pc.Positions[i].IsZero() {
		return false
	}
	for _, f := range pc.Features[i*pc.Dim : (i+1)*pc.Dim] {
		if f != 0 {
			return false
		}
	}
	return true
}

// CountNonZero returns how many rows carry any data.
func (pc PointCloud) CountNonZero() int {
	n := 0
	for i := range pc.Positions {
		if !pc.IsZeroRow(i) {
			n++
		}
	}
	return n
}
