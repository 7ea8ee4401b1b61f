package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agenthands/ftmresolve/internal/config"
	"github.com/agenthands/ftmresolve/internal/driver"
	"github.com/agenthands/ftmresolve/internal/llm"
	"github.com/agenthands/ftmresolve/internal/metrics"
)

// Build connects the pipeline to its external services: the LLM provider
// and, when withGraph is set, Memgraph. An unreachable Memgraph leaves the
// pipeline without a graph sink. The returned function releases the
// connections.
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger, withGraph bool) (*Pipeline, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	llmClient, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	cleanup := func() {}
	var graphDriver driver.GraphDriver
	if withGraph {
		d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password)
		if err != nil {
			logger.Warn("Memgraph unavailable, graph loading disabled", "error", err)
		} else {
			graphDriver = d
			cleanup = func() {
				if err := d.Close(context.Background()); err != nil {
					logger.Warn("Failed to close Memgraph driver", "error", err)
				}
			}
		}
	}

	p, err := NewPipeline(cfg, llmClient, graphDriver, m, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}
