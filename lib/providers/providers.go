package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/armoureye/intake/cmd/api/config"
	"github.com/armoureye/intake/lib/logger"
	"github.com/armoureye/intake/lib/pipeline"
	"github.com/armoureye/intake/lib/runtime"
)

// ProvideContext provides a base context
func ProvideContext() context.Context {
	return context.Background()
}

// ProvideLogger provides a structured logger
func ProvideLogger() *slog.Logger {
	return logger.New()
}

// ProvideConfig provides the application configuration
func ProvideConfig() *config.Config {
	return config.Load()
}

// ProvideRuntimeClient provides the runtime control service client
func ProvideRuntimeClient(cfg *config.Config) *runtime.Client {
	return runtime.NewClient(cfg.RuntimeURL, cfg.RuntimeToken,
		time.Duration(cfg.AuthTimeoutSeconds)*time.Second)
}

// ProvidePipeline provides the intake pipeline
func ProvidePipeline(cfg *config.Config, client *runtime.Client) *pipeline.Pipeline {
	return pipeline.New(client, pipeline.Config{
		MaxConcurrentUploads: cfg.MaxConcurrentUploads,
		MessageTTL:           time.Duration(cfg.MessageTTLSeconds) * time.Second,
	})
}
