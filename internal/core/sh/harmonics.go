// Package sh implements real spherical harmonics of degree 0 to 2:
// projection of weighted color samples into coefficients, radiance
// evaluation, and irradiance reconstruction onto directions or canvases.
package sh

import (
	"fmt"
	"math"

	"github.com/zeusync/xihe/internal/core/canvas"
	"github.com/zeusync/xihe/internal/core/geometry"
	"github.com/zeusync/xihe/internal/core/pointcloud"
)

// MaxDegree is the highest supported band.
const MaxDegree = 2

// ChannelOrder records which axis of a flat coefficient buffer is the
// channel axis.
type ChannelOrder uint8

const (
	// ChannelFirst lays out (channels, components): c0k0 c0k1 ... c1k0 ...
	ChannelFirst ChannelOrder = iota
	// ChannelLast lays out (components, channels): k0c0 k0c1 ... k1c0 ...
	ChannelLast
)

func (o ChannelOrder) String() string {
	if o == ChannelLast {
		return "last"
	}
	return "first"
}

// SphericalHarmonics holds (degree+1)^2 coefficients per channel.
type SphericalHarmonics struct {
	degree   int
	channels int
	order    ChannelOrder
	coeffs   []float32 // k*channels + c
}

// Components returns the number of basis functions of a degree.
func Components(degree int) int { return (degree + 1) * (degree + 1) }

// New returns zero coefficients.
func New(degree, channels int, order ChannelOrder) (*SphericalHarmonics, error) {
	if degree < 0 || degree > MaxDegree {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDegree, degree)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: %d channels", ErrShapeMismatch, channels)
	}
	return &SphericalHarmonics{
		degree:   degree,
		channels: channels,
		order:    order,
		coeffs:   make([]float32, Components(degree)*channels),
	}, nil
}

func (s *SphericalHarmonics) Degree() int         { return s.degree }
func (s *SphericalHarmonics) Channels() int       { return s.channels }
func (s *SphericalHarmonics) Order() ChannelOrder { return s.order }
func (s *SphericalHarmonics) Components() int     { return Components(s.degree) }

// SetOrder changes the layout used by ToArray and Coefficients.
func (s *SphericalHarmonics) SetOrder(o ChannelOrder) { s.order = o }

// Coefficient returns component k of channel c.
func (s *SphericalHarmonics) Coefficient(k, c int) float32 {
	return s.coeffs[k*s.channels+c]
}

// SetCoefficient sets component k of channel c.
func (s *SphericalHarmonics) SetCoefficient(k, c int, v float32) {
	s.coeffs[k*s.channels+c] = v
}

// Coefficients returns a copy shaped by the channel order: [channel][component]
// for ChannelFirst, [component][channel] for ChannelLast.
func (s *SphericalHarmonics) Coefficients() [][]float32 {
	k, c := s.Components(), s.channels
	if s.order == ChannelLast {
		out := make([][]float32, k)
		for i := range out {
			out[i] = append([]float32(nil), s.coeffs[i*c:(i+1)*c]...)
		}
		return out
	}
	out := make([][]float32, c)
	for ch := range out {
		out[ch] = make([]float32, k)
		for i := 0; i < k; i++ {
			out[ch][i] = s.Coefficient(i, ch)
		}
	}
	return out
}

// ToArray flattens the coefficients in the tagged channel order.
func (s *SphericalHarmonics) ToArray() []float32 {
	out := make([]float32, 0, len(s.coeffs))
	for _, row := range s.Coefficients() {
		out = append(out, row...)
	}
	return out
}

// FromArray parses a flat buffer laid out in order. The component count
// must be a square no larger than 9.
func FromArray(data []float32, channels int, order ChannelOrder) (*SphericalHarmonics, error) {
	if channels <= 0 || len(data) == 0 || len(data)%channels != 0 {
		return nil, fmt.Errorf("%w: %d values for %d channels", ErrShapeMismatch, len(data), channels)
	}
	k := len(data) / channels
	degree := int(math.Sqrt(float64(k))) - 1
	if Components(degree) != k {
		return nil, fmt.Errorf("%w: %d components is not a square", ErrShapeMismatch, k)
	}

	s, err := New(degree, channels, order)
	if err != nil {
		return nil, err
	}
	for i := 0; i < k; i++ {
		for c := 0; c < channels; c++ {
			if order == ChannelLast {
				s.SetCoefficient(i, c, data[i*channels+c])
			} else {
				s.SetCoefficient(i, c, data[c*k+i])
			}
		}
	}
	return s, nil
}

// Clone returns a deep copy.
func (s *SphericalHarmonics) Clone() *SphericalHarmonics {
	out := *s
	out.coeffs = append([]float32(nil), s.coeffs...)
	return &out
}

// Scale multiplies every coefficient by f.
func (s *SphericalHarmonics) Scale(f float32) {
	for i := range s.coeffs {
		s.coeffs[i] *= f
	}
}

// Basis evaluates the nine real SH basis functions at a unit direction.
func Basis(d geometry.Vec3) [9]float32 {
	x, y, z := d.X, d.Y, d.Z
	return [9]float32{
		0.282095,
		0.488603 * y,
		0.488603 * z,
		0.488603 * x,
		1.092548 * x * y,
		1.092548 * y * z,
		0.315392 * (3*z*z - 1),
		1.092548 * x * z,
		0.546274 * (x*x - y*y),
	}
}

// Samples is a weighted set of colored directions. Colors is n x channels,
// row-major. A nil Weights means uniform weighting and a nil Basis is
// computed from Directions.
type Samples struct {
	Directions []geometry.Vec3
	Colors     []float32
	Weights    []float32
	Basis      [][9]float32
}

func (s Samples) count() int {
	if s.Basis != nil {
		return len(s.Basis)
	}
	return len(s.Directions)
}

// Project replaces the coefficients with Σ basis·color·w over the samples,
// normalized by 4π/Σw of the same weights.
func (s *SphericalHarmonics) Project(samples Samples) error {
	n := samples.count()
	if n == 0 {
		return fmt.Errorf("%w: no samples", ErrShapeMismatch)
	}
	if len(samples.Colors) != n*s.channels {
		return fmt.Errorf("%w: %d colors for %d samples of %d channels",
			ErrShapeMismatch, len(samples.Colors), n, s.channels)
	}
	if samples.Weights != nil && len(samples.Weights) != n {
		return fmt.Errorf("%w: %d weights for %d samples", ErrShapeMismatch, len(samples.Weights), n)
	}
	if samples.Basis != nil && samples.Directions != nil && len(samples.Directions) != n {
		return fmt.Errorf("%w: %d directions for %d basis rows", ErrShapeMismatch, len(samples.Directions), n)
	}

	k := s.Components()
	acc := make([]float64, k*s.channels)
	var total float64
	for i := 0; i < n; i++ {
		var basis [9]float32
		if samples.Basis != nil {
			basis = samples.Basis[i]
		} else {
			basis = Basis(samples.Directions[i])
		}
		w := 1.0
		if samples.Weights != nil {
			w = float64(samples.Weights[i])
		}
		total += w

		color := samples.Colors[i*s.channels : (i+1)*s.channels]
		for j := 0; j < k; j++ {
			b := float64(basis[j]) * w
			for c, v := range color {
				acc[j*s.channels+c] += b * float64(v)
			}
		}
	}
	if total == 0 {
		return ErrZeroWeight
	}

	norm := 4 * math.Pi / total
	for i, v := range acc {
		s.coeffs[i] = float32(v * norm)
	}
	return nil
}

// ProjectPointCloud projects the point colors along their normalized
// position directions with uniform weights.
func (s *SphericalHarmonics) ProjectPointCloud(pc pointcloud.PointCloud) error {
	if pc.Dim < s.channels {
		return fmt.Errorf("%w: point cloud has %d features for %d channels", ErrShapeMismatch, pc.Dim, s.channels)
	}
	dirs := make([]geometry.Vec3, pc.Len())
	colors := make([]float32, 0, pc.Len()*s.channels)
	for i, p := range pc.Positions {
		dirs[i] = p.Normalize()
		colors = append(colors, pc.Features[i*pc.Dim:i*pc.Dim+s.channels]...)
	}
	return s.Project(Samples{Directions: dirs, Colors: colors})
}

// Evaluate returns the radiance Σ L·Y at every direction, n x channels.
func (s *SphericalHarmonics) Evaluate(dirs []geometry.Vec3) []float32 {
	k := s.Components()
	out := make([]float32, len(dirs)*s.channels)
	for i, d := range dirs {
		basis := Basis(d)
		row := out[i*s.channels : (i+1)*s.channels]
		for j := 0; j < k; j++ {
			for c := range row {
				row[c] += s.coeffs[j*s.channels+c] * basis[j]
			}
		}
	}
	return out
}

// irradiance weights per component; the zz term carries its own offset.
const (
	c1 = 0.429043
	c2 = 0.511664
	c3 = 0.743125
	c4 = 0.886227
	c5 = 0.247708
)

// Reconstruct evaluates the irradiance closed form at every direction,
// n x channels. Zero coefficients give a zero field.
func (s *SphericalHarmonics) Reconstruct(dirs []geometry.Vec3) []float32 {
	out := make([]float32, len(dirs)*s.channels)
	for i, d := range dirs {
		x, y, z := d.X, d.Y, d.Z
		terms := [9]float32{
			c4,
			2 * c2 * y,
			2 * c2 * z,
			2 * c2 * x,
			2 * c1 * x * y,
			2 * c1 * y * z,
			c3*z*z - c5,
			2 * c1 * x * z,
			c1 * (x*x - y*y),
		}
		row := out[i*s.channels : (i+1)*s.channels]
		for j := 0; j < s.Components(); j++ {
			for c := range row {
				row[c] += s.coeffs[j*s.channels+c] * terms[j]
			}
		}
	}
	return out
}

// ReconstructCanvas renders the irradiance onto a 2H x H equirectangular
// canvas with one channel per SH channel.
func (s *SphericalHarmonics) ReconstructCanvas(height int) (*canvas.Canvas, error) {
	dirs, err := canvas.NewEquirectangular(height)
	if err != nil {
		return nil, err
	}
	vecs, err := dirs.Vectors()
	if err != nil {
		return nil, err
	}
	return &canvas.Canvas{
		Width:    dirs.Width,
		Height:   dirs.Height,
		Channels: s.channels,
		Data:     s.Reconstruct(vecs),
	}, nil
}
