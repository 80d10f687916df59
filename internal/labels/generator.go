// Package labels turns illumination maps into spherical harmonics training
// labels, one directory per item.
package labels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zeusync/xihe/internal/core/cubemap"
	"github.com/zeusync/xihe/internal/core/observability/log"
	"github.com/zeusync/xihe/internal/core/sh"
	"github.com/zeusync/xihe/pkg/concurrent"
)

// Item is one illumination map. HDR is optional; when set it holds the
// red, green and blue 16-bit maps.
type Item struct {
	Name string
	LDR  string
	HDR  *[3]string
}

// Options controls a Generator.
type Options struct {
	Workers    int
	Downsample int
	// Flip mirrors the LDR map horizontally before projection.
	Flip      bool
	OutputDir string
}

// Generator projects items through a shared cubemap sampler.
type Generator struct {
	sampler *cubemap.Sampler
	opts    Options
	log     log.Log
}

// NewGenerator returns a generator writing under opts.OutputDir.
func NewGenerator(sampler *cubemap.Sampler, opts Options, logger log.Log) *Generator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Downsample <= 0 {
		opts.Downsample = 1
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Generator{
		sampler: sampler,
		opts:    opts,
		log:     logger.With(log.String("component", "labels")),
	}
}

// Run processes every item with bounded parallelism and stops at the first
// failure.
func (g *Generator) Run(ctx context.Context, items []Item) error {
	start := time.Now()
	g.log.Info("Generating labels",
		log.Int("items", len(items)),
		log.Int("workers", g.opts.Workers))

	err := concurrent.ForEach(ctx, items, g.opts.Workers, func(_ context.Context, item Item) error {
		ldr, hdr, err := g.Process(item)
		if err != nil {
			return fmt.Errorf("item %s: %w", item.Name, err)
		}
		return sh.SaveLabels(filepath.Join(g.opts.OutputDir, item.Name), ldr, hdr)
	})
	if err != nil {
		g.log.Error("Label generation failed", log.Error(err))
		return err
	}

	g.log.Info("Labels generated",
		log.Int("items", len(items)),
		log.Duration("elapsed", time.Since(start)))
	return nil
}

// Process computes the LDR and, when present, HDR coefficients of one item.
func (g *Generator) Process(item Item) (ldr, hdr *sh.SphericalHarmonics, err error) {
	env, err := LoadLDR(item.LDR)
	if err != nil {
		return nil, nil, err
	}
	env = env.Downsample(g.opts.Downsample)
	if g.opts.Flip {
		env = env.FlipHorizontal()
	}
	if ldr, err = g.sampler.Project(env, cubemap.ProjectOptions{Linearize: true}); err != nil {
		return nil, nil, err
	}

	if item.HDR != nil {
		hdrEnv, err := LoadHDR(*item.HDR)
		if err != nil {
			return nil, nil, err
		}
		hdrEnv = hdrEnv.Downsample(g.opts.Downsample)
		if hdr, err = g.sampler.Project(hdrEnv, cubemap.ProjectOptions{}); err != nil {
			return nil, nil, err
		}
	}

	g.log.Debug("Item processed", log.String("item", item.Name), log.Bool("hdr", hdr != nil))
	return ldr, hdr, nil
}

// Discover lists the illumination maps of dir. Every "<name>.png" is an
// item; "<name>_r.png", "<name>_g.png" and "<name>_b.png" next to it form
// its HDR maps.
func Discover(dir string) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	exists := make(map[string]bool, len(entries))
	for _, e := range entries {
		exists[e.Name()] = !e.IsDir()
	}

	var items []Item
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".png") {
			continue
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if isChannelMap(base) {
			continue
		}

		item := Item{Name: base, LDR: filepath.Join(dir, name)}
		hdr := [3]string{base + "_r.png", base + "_g.png", base + "_b.png"}
		if exists[hdr[0]] && exists[hdr[1]] && exists[hdr[2]] {
			for i := range hdr {
				hdr[i] = filepath.Join(dir, hdr[i])
			}
			item.HDR = &hdr
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func isChannelMap(base string) bool {
	for _, suffix := range []string{"_r", "_g", "_b"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
