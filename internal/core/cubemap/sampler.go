package cubemap

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zeusync/xihe/internal/core/canvas"
	"github.com/zeusync/xihe/internal/core/colorspace"
	"github.com/zeusync/xihe/internal/core/sh"
)

// DefaultCacheSize bounds the number of grids a Sampler keeps.
const DefaultCacheSize = 3

type gridKey struct {
	width, height int
}

// Sampler caches grids by source size and projects canvases through them.
// It is safe for concurrent use.
type Sampler struct {
	resolution int
	grids      *lru.Cache[gridKey, *Grid]
}

// ProjectOptions controls Sampler.Project.
type ProjectOptions struct {
	// Linearize converts sRGB encoded sources to linear before projecting.
	Linearize bool
}

// NewSampler returns a sampler at resolution keeping at most cacheSize grids.
// Non-positive arguments select the defaults.
func NewSampler(resolution, cacheSize int) (*Sampler, error) {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if resolution < 2 {
		return nil, fmt.Errorf("%w: resolution %d", ErrInvalidGrid, resolution)
	}
	cache, err := lru.New[gridKey, *Grid](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Sampler{resolution: resolution, grids: cache}, nil
}

// Resolution returns the per-face cell count.
func (s *Sampler) Resolution() int { return s.resolution }

// Cached returns the number of grids currently held.
func (s *Sampler) Cached() int { return s.grids.Len() }

// Grid returns the grid for a source size, building it on a miss.
// Concurrent misses may build the same grid twice; the result is identical.
func (s *Sampler) Grid(width, height int) (*Grid, error) {
	key := gridKey{width, height}
	if g, ok := s.grids.Get(key); ok {
		return g, nil
	}
	g, err := BuildGrid(width, height, s.resolution)
	if err != nil {
		return nil, err
	}
	s.grids.Add(key, g)
	return g, nil
}

// Project integrates env over the cube cells into degree 2 coefficients
// with one channel per canvas channel.
func (s *Sampler) Project(env *canvas.Canvas, opts ProjectOptions) (*sh.SphericalHarmonics, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil canvas", ErrInvalidGrid)
	}
	g, err := s.Grid(env.Width, env.Height)
	if err != nil {
		return nil, err
	}

	colors := make([]float32, 0, g.Len()*env.Channels)
	for _, idx := range g.pixelIndex {
		colors = append(colors, env.PixelAt(idx)...)
	}
	if opts.Linearize {
		colorspace.SRGBToLinearSlice(colors)
	}

	out, err := sh.New(sh.MaxDegree, env.Channels, sh.ChannelFirst)
	if err != nil {
		return nil, err
	}
	if err := out.Project(sh.Samples{Colors: colors, Weights: g.weights, Basis: g.basis}); err != nil {
		return nil, err
	}
	return out, nil
}
