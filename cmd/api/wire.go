//go:build wireinject

package main

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/armoureye/intake/cmd/api/api"
	"github.com/armoureye/intake/cmd/api/config"
	"github.com/armoureye/intake/lib/pipeline"
	"github.com/armoureye/intake/lib/providers"
	"github.com/armoureye/intake/lib/runtime"
)

// application struct to hold initialized components
type application struct {
	Ctx        context.Context
	Logger     *slog.Logger
	Config     *config.Config
	Runtime    *runtime.Client
	Pipeline   *pipeline.Pipeline
	ApiService *api.ApiService
}

// initializeApp is the injector function
func initializeApp() (*application, func(), error) {
	panic(wire.Build(
		providers.ProvideContext,
		providers.ProvideLogger,
		providers.ProvideConfig,
		providers.ProvideRuntimeClient,
		providers.ProvidePipeline,
		api.New,
		wire.Struct(new(application), "*"),
	))
}
