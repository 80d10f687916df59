package sh

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/xihe/internal/core/anchor"
	"github.com/zeusync/xihe/internal/core/geometry"
	"github.com/zeusync/xihe/internal/core/pointcloud"
)

// reference signal, [component][channel]
var signal = [9][3]float32{
	{0.8, 0.6, 0.5},
	{0.2, -0.1, 0.05},
	{-0.3, 0.25, 0.1},
	{0.15, 0.1, -0.2},
	{0.05, -0.05, 0.1},
	{-0.1, 0.02, 0.03},
	{0.12, -0.08, 0.04},
	{0.07, 0.09, -0.06},
	{-0.04, 0.03, 0.11},
}

func signalHarmonics(t *testing.T) *SphericalHarmonics {
	t.Helper()
	s, err := New(2, 3, ChannelFirst)
	require.NoError(t, err)
	for k := range signal {
		for c := range signal[k] {
			s.SetCoefficient(k, c, signal[k][c])
		}
	}
	return s
}

func sphere(t *testing.T, n int) []geometry.Vec3 {
	t.Helper()
	tab, err := anchor.Generate(n)
	require.NoError(t, err)
	return tab.Directions()
}

func TestNew(t *testing.T) {
	for degree := 0; degree <= MaxDegree; degree++ {
		s, err := New(degree, 3, ChannelFirst)
		require.NoError(t, err)
		assert.Len(t, s.ToArray(), (degree+1)*(degree+1)*3)
	}

	_, err := New(3, 3, ChannelFirst)
	require.ErrorIs(t, err, ErrUnsupportedDegree)
	_, err = New(-1, 3, ChannelFirst)
	require.ErrorIs(t, err, ErrUnsupportedDegree)
	_, err = New(2, 0, ChannelFirst)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestArrayLayout(t *testing.T) {
	s := signalHarmonics(t)

	first := s.ToArray()
	require.Len(t, first, 27)
	assert.Equal(t, float32(0.8), first[0])
	assert.Equal(t, float32(0.2), first[1])
	assert.Equal(t, float32(0.6), first[9])
	assert.Equal(t, float32(0.11), first[26])

	s.SetOrder(ChannelLast)
	last := s.ToArray()
	assert.Equal(t, []float32{0.8, 0.6, 0.5, 0.2}, last[:4])

	rows := s.Coefficients()
	require.Len(t, rows, 9)
	assert.Equal(t, []float32{-0.3, 0.25, 0.1}, rows[2])

	t.Run("round trip", func(t *testing.T) {
		a, err := FromArray(first, 3, ChannelFirst)
		require.NoError(t, err)
		b, err := FromArray(last, 3, ChannelLast)
		require.NoError(t, err)
		assert.Equal(t, a.ToArray(), first)
		b.SetOrder(ChannelFirst)
		assert.Equal(t, first, b.ToArray())
		assert.Equal(t, 2, a.Degree())
	})

	t.Run("lower degree", func(t *testing.T) {
		a, err := FromArray(make([]float32, 12), 3, ChannelFirst)
		require.NoError(t, err)
		assert.Equal(t, 1, a.Degree())
	})

	t.Run("shape mismatch", func(t *testing.T) {
		_, err := FromArray(make([]float32, 26), 3, ChannelFirst)
		require.ErrorIs(t, err, ErrShapeMismatch)
		_, err = FromArray(make([]float32, 24), 3, ChannelLast)
		require.ErrorIs(t, err, ErrShapeMismatch)
		_, err = FromArray(make([]float32, 48), 3, ChannelFirst)
		require.ErrorIs(t, err, ErrUnsupportedDegree)
		_, err = FromArray(nil, 3, ChannelFirst)
		require.ErrorIs(t, err, ErrShapeMismatch)
	})
}

func TestBasis(t *testing.T) {
	b := Basis(geometry.Vec3{Z: 1})
	assert.Equal(t, [9]float32{0.282095, 0, 0.488603, 0, 0, 0, 0.630784, 0, 0}, b)

	b = Basis(geometry.Vec3{X: 1})
	assert.Equal(t, float32(0.488603), b[3])
	assert.Equal(t, float32(-0.315392), b[6])
	assert.Equal(t, float32(0.546274), b[8])
}

func TestProject_UniformWhite(t *testing.T) {
	dirs := sphere(t, 4096)
	colors := make([]float32, len(dirs)*3)
	for i := range colors {
		colors[i] = 1
	}

	s, err := New(2, 3, ChannelFirst)
	require.NoError(t, err)
	require.NoError(t, s.Project(Samples{Directions: dirs, Colors: colors}))

	for c := 0; c < 3; c++ {
		assert.InDelta(t, 0.282095*4*math.Pi, s.Coefficient(0, c), 1e-4)
		for k := 1; k < 9; k++ {
			assert.InDelta(t, 0, s.Coefficient(k, c), 0.01)
		}
	}
}

func TestProject_NormalizerFollowsWeights(t *testing.T) {
	dirs := sphere(t, 1024)
	colors := make([]float32, len(dirs))
	for i := range colors {
		colors[i] = 0.5
	}
	uniform, err := New(2, 1, ChannelFirst)
	require.NoError(t, err)
	require.NoError(t, uniform.Project(Samples{Directions: dirs, Colors: colors}))

	// any constant weight cancels against its own normalizer
	weights := make([]float32, len(dirs))
	for i := range weights {
		weights[i] = 7.5
	}
	weighted, err := New(2, 1, ChannelFirst)
	require.NoError(t, err)
	require.NoError(t, weighted.Project(Samples{Directions: dirs, Colors: colors, Weights: weights}))

	assert.InDeltaSlice(t, uniform.ToArray(), weighted.ToArray(), 1e-5)
}

func TestProject_Errors(t *testing.T) {
	s, err := New(2, 3, ChannelFirst)
	require.NoError(t, err)

	dirs := []geometry.Vec3{{X: 1}, {Y: 1}}
	require.ErrorIs(t, s.Project(Samples{Directions: dirs, Colors: make([]float32, 5)}), ErrShapeMismatch)
	require.ErrorIs(t, s.Project(Samples{Directions: dirs, Colors: make([]float32, 6), Weights: []float32{1}}), ErrShapeMismatch)
	require.ErrorIs(t, s.Project(Samples{}), ErrShapeMismatch)
	require.ErrorIs(t, s.Project(Samples{Directions: dirs, Colors: make([]float32, 6), Weights: []float32{0, 0}}), ErrZeroWeight)
}

func TestProject_PrecomputedBasis(t *testing.T) {
	dirs := sphere(t, 256)
	basis := make([][9]float32, len(dirs))
	colors := make([]float32, len(dirs)*3)
	for i, d := range dirs {
		basis[i] = Basis(d)
		colors[i*3] = d.Y
	}

	a, err := New(2, 3, ChannelFirst)
	require.NoError(t, err)
	require.NoError(t, a.Project(Samples{Directions: dirs, Colors: colors}))
	b, err := New(2, 3, ChannelFirst)
	require.NoError(t, err)
	require.NoError(t, b.Project(Samples{Basis: basis, Colors: colors}))

	assert.Equal(t, a.ToArray(), b.ToArray())
}

func TestEvaluateProjectRoundTrip(t *testing.T) {
	s := signalHarmonics(t)
	dirs := sphere(t, 4096)

	out, err := New(2, 3, ChannelFirst)
	require.NoError(t, err)
	require.NoError(t, out.Project(Samples{Directions: dirs, Colors: s.Evaluate(dirs)}))

	assert.InDeltaSlice(t, s.ToArray(), out.ToArray(), 0.01)
}

func TestEvaluateProjectRoundTrip_PerDegree(t *testing.T) {
	dirs := sphere(t, 4096)

	for _, tc := range []struct {
		name   string
		degree int
	}{
		{"constant", 0},
		{"linear", 1},
		{"quadratic", 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			in, err := New(2, 3, ChannelFirst)
			require.NoError(t, err)
			for k := tc.degree * tc.degree; k < Components(tc.degree); k++ {
				for c := range signal[k] {
					in.SetCoefficient(k, c, signal[k][c])
				}
			}

			out, err := New(2, 3, ChannelFirst)
			require.NoError(t, err)
			require.NoError(t, out.Project(Samples{Directions: dirs, Colors: in.Evaluate(dirs)}))

			assert.InDeltaSlice(t, in.ToArray(), out.ToArray(), 1e-3)
		})
	}
}

func TestReconstruct(t *testing.T) {
	t.Run("zero coefficients give a zero field", func(t *testing.T) {
		s, err := New(2, 3, ChannelFirst)
		require.NoError(t, err)
		for _, v := range s.Reconstruct(sphere(t, 64)) {
			assert.Zero(t, v)
		}
	})

	t.Run("irradiance convolution", func(t *testing.T) {
		s := signalHarmonics(t)
		dirs := sphere(t, 4096)

		out, err := New(2, 3, ChannelFirst)
		require.NoError(t, err)
		require.NoError(t, out.Project(Samples{Directions: dirs, Colors: s.Reconstruct(dirs)}))

		bands := [9]float64{math.Pi, 2 * math.Pi / 3, 2 * math.Pi / 3, 2 * math.Pi / 3,
			math.Pi / 4, math.Pi / 4, math.Pi / 4, math.Pi / 4, math.Pi / 4}
		for k := 0; k < 9; k++ {
			for c := 0; c < 3; c++ {
				want := bands[k] * float64(signal[k][c])
				assert.InDelta(t, want, out.Coefficient(k, c), 0.01, "k=%d c=%d", k, c)
			}
		}
	})

	t.Run("constant term", func(t *testing.T) {
		s, err := New(0, 1, ChannelFirst)
		require.NoError(t, err)
		s.SetCoefficient(0, 0, 2)
		out := s.Reconstruct([]geometry.Vec3{{X: 1}, {Y: -1}})
		assert.InDeltaSlice(t, []float32{1.772454, 1.772454}, out, 1e-6)
	})

	t.Run("canvas", func(t *testing.T) {
		s := signalHarmonics(t)
		c, err := s.ReconstructCanvas(8)
		require.NoError(t, err)
		assert.Equal(t, 16, c.Width)
		assert.Equal(t, 3, c.Channels)
		assert.Len(t, c.Data, 16*8*3)
	})
}

func TestProjectPointCloud(t *testing.T) {
	dirs := sphere(t, 4096)
	pc := pointcloud.Zeros(len(dirs))
	for i, d := range dirs {
		// distance must not matter
		pc.Positions[i] = d.Mul(float32(1 + i%5))
		pc.SetColor(i, geometry.Vec3{X: 1, Y: 1, Z: 1})
	}

	s, err := New(2, 3, ChannelFirst)
	require.NoError(t, err)
	require.NoError(t, s.ProjectPointCloud(pc))
	assert.InDelta(t, 0.282095*4*math.Pi, s.Coefficient(0, 1), 1e-4)
	assert.InDelta(t, 0, s.Coefficient(2, 1), 0.01)
}
