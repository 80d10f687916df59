// Package injector wires the service and the offline tools from a Config.
package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/xihe/internal/config"
	"github.com/zeusync/xihe/internal/core/anchor"
	"github.com/zeusync/xihe/internal/core/cubemap"
	"github.com/zeusync/xihe/internal/core/observability/log"
	"github.com/zeusync/xihe/internal/core/session"
	"github.com/zeusync/xihe/internal/inference"
	"github.com/zeusync/xihe/internal/labels"
	"github.com/zeusync/xihe/internal/server"
)

// LoggerSet provides the process logger as log.Log.
var LoggerSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
)

// ServerSet provides everything the lighting service needs.
var ServerSet = wire.NewSet(
	LoggerSet,
	ProvideAnchorCache,
	ProvideRegistry,
	ProvidePipeline,
	ProvideServerConfig,
	server.NewServer,
)

// LabelsSet provides the offline label generator.
var LabelsSet = wire.NewSet(
	LoggerSet,
	ProvideSampler,
	ProvideLabelOptions,
	labels.NewGenerator,
)

func ProvideLogger(cfg config.Config) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(level, log.Options{Encoding: cfg.Log.Encoding}), nil
}

// ProvideAnchorCache builds the anchor cache and generates the prewarm sizes.
func ProvideAnchorCache(cfg config.Config, logger log.Log) (*anchor.Cache, error) {
	cache := anchor.NewCache()
	if err := cache.Warm(cfg.Anchors.Prewarm); err != nil {
		return nil, err
	}
	logger.Debug("Anchor tables generated", log.Any("sizes", cache.Sizes()))
	return cache, nil
}

func ProvideRegistry(cache *anchor.Cache, logger log.Log) *session.Registry {
	return session.NewRegistry(cache, session.WithLogger(logger))
}

// ProvidePipeline pairs the projection estimator with the configured
// output normalizer.
func ProvidePipeline(cfg config.Config) (inference.Pipeline, error) {
	normalizer, err := inference.NewNormalizer(cfg.Inference.Min, cfg.Inference.Scale)
	if err != nil {
		return inference.Pipeline{}, err
	}
	return inference.Pipeline{
		Estimator:  inference.ProjectionEstimator{},
		Normalizer: normalizer,
	}, nil
}

func ProvideServerConfig(cfg config.Config) server.Config {
	return server.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxPayloadBytes: cfg.Server.MaxPayloadBytes,
		DumpDir:         cfg.Dump.Dir,
	}
}

func ProvideSampler(cfg config.Config) (*cubemap.Sampler, error) {
	return cubemap.NewSampler(cfg.Cubemap.Resolution, cfg.Cubemap.CacheSize)
}

func ProvideLabelOptions(cfg config.Config) labels.Options {
	return labels.Options{
		Workers:    cfg.Labels.Workers,
		Downsample: cfg.Labels.Downsample,
		Flip:       cfg.Labels.Flip,
		OutputDir:  cfg.Labels.OutputDir,
	}
}
