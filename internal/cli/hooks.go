package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mosaicviz/mosaic/pkg/observability"
)

// registerHooks wires the observability hooks to debug logging, so -v
// shows per-stage timing and cache behavior without the library
// packages knowing about the logger.
func registerHooks(logger *log.Logger) {
	observability.SetPipelineHooks(&logPipelineHooks{logger: logger})
	observability.SetCacheHooks(&logCacheHooks{logger: logger})
}

type logPipelineHooks struct {
	observability.NoopPipelineHooks
	logger *log.Logger
}

func (h *logPipelineHooks) OnStageStart(_ context.Context, stage string, count int) {
	h.logger.Debug("stage start", "stage", stage, "count", count)
}

func (h *logPipelineHooks) OnStageComplete(_ context.Context, stage string, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("stage failed", "stage", stage, "duration", d.Round(time.Millisecond), "err", err)
		return
	}
	h.logger.Debug("stage complete", "stage", stage, "duration", d.Round(time.Millisecond))
}

func (h *logPipelineHooks) OnResolutionDone(_ context.Context, stage string, resolution, cells int) {
	h.logger.Debug("resolution done", "stage", stage, "resolution", resolution, "cells", cells)
}

type logCacheHooks struct {
	observability.NoopCacheHooks
	logger *log.Logger
}

func (h *logCacheHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h *logCacheHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}
