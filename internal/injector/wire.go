//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/xihe/internal/config"
	"github.com/zeusync/xihe/internal/labels"
	"github.com/zeusync/xihe/internal/server"
)

func InitializeServer(cfg config.Config) (*server.Server, error) {
	wire.Build(ServerSet)
	return nil, nil
}

func InitializeGenerator(cfg config.Config) (*labels.Generator, error) {
	wire.Build(LabelsSet)
	return nil, nil
}
