// Package inference is the boundary to the lighting estimation model. The
// model itself runs elsewhere; this package defines what the service needs
// from it and ships a projection baseline so the service runs without one.
package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/zeusync/xihe/internal/core/pointcloud"
	"github.com/zeusync/xihe/internal/core/sh"
)

var (
	ErrInvalidOutput     = errors.New("estimator returned an invalid coefficient vector")
	ErrInvalidNormalizer = errors.New("invalid normalizer")
	ErrEmptyPointCloud   = errors.New("empty point cloud")
)

// OutputSize is the number of coefficients an estimator returns: nine
// components for each of three channels, channel-first.
const OutputSize = 27

// Estimator predicts degree 2 RGB SH coefficients from a dense point cloud.
type Estimator interface {
	Estimate(ctx context.Context, pc pointcloud.PointCloud) ([]float32, error)
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(ctx context.Context, pc pointcloud.PointCloud) ([]float32, error)

func (f EstimatorFunc) Estimate(ctx context.Context, pc pointcloud.PointCloud) ([]float32, error) {
	return f(ctx, pc)
}

// ProjectionEstimator projects the observed colors directly onto the SH
// basis. It is a geometric baseline, not a learned model.
type ProjectionEstimator struct{}

func (ProjectionEstimator) Estimate(ctx context.Context, pc pointcloud.PointCloud) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pc.Len() == 0 {
		return nil, ErrEmptyPointCloud
	}
	coeffs, err := sh.New(sh.MaxDegree, 3, sh.ChannelFirst)
	if err != nil {
		return nil, err
	}
	if err := coeffs.ProjectPointCloud(pc); err != nil {
		return nil, err
	}
	return coeffs.ToArray(), nil
}

// Normalizer maps raw model output p onto (p - Min) / Scale. The zero value
// is the identity.
type Normalizer struct {
	Min   []float32
	Scale []float32
}

// NewNormalizer validates a min/scale pair. Both empty means identity.
func NewNormalizer(minimum, scale []float32) (Normalizer, error) {
	if len(minimum) == 0 && len(scale) == 0 {
		return Normalizer{}, nil
	}
	if len(minimum) != OutputSize || len(scale) != OutputSize {
		return Normalizer{}, fmt.Errorf("%w: %d min and %d scale values, want %d",
			ErrInvalidNormalizer, len(minimum), len(scale), OutputSize)
	}
	for i, s := range scale {
		if s == 0 {
			return Normalizer{}, fmt.Errorf("%w: scale[%d] is zero", ErrInvalidNormalizer, i)
		}
	}
	return Normalizer{Min: minimum, Scale: scale}, nil
}

// Identity reports whether Apply leaves values unchanged.
func (n Normalizer) Identity() bool { return len(n.Scale) == 0 }

// Apply returns a normalized copy of p. Non-finite values on either side
// of the normalization are rejected.
func (n Normalizer) Apply(p []float32) ([]float32, error) {
	if len(p) != OutputSize {
		return nil, fmt.Errorf("%w: %d values, want %d", ErrInvalidOutput, len(p), OutputSize)
	}
	out := append([]float32(nil), p...)
	for i := range out {
		if !n.Identity() {
			out[i] = (out[i] - n.Min[i]) / n.Scale[i]
		}
		if !finite(p[i]) || !finite(out[i]) {
			return nil, fmt.Errorf("%w: coefficient %d is %v", ErrInvalidOutput, i, out[i])
		}
	}
	return out, nil
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

// Pipeline runs an estimator and normalizes its output.
type Pipeline struct {
	Estimator  Estimator
	Normalizer Normalizer
}

// Run estimates and denormalizes coefficients for pc.
func (p Pipeline) Run(ctx context.Context, pc pointcloud.PointCloud) ([]float32, error) {
	raw, err := p.Estimator.Estimate(ctx, pc)
	if err != nil {
		return nil, err
	}
	return p.Normalizer.Apply(raw)
}
