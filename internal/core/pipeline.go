package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/agenthands/ftmresolve/internal/config"
	"github.com/agenthands/ftmresolve/internal/core/dedupe"
	"github.com/agenthands/ftmresolve/internal/core/evidence"
	"github.com/agenthands/ftmresolve/internal/core/extraction"
	"github.com/agenthands/ftmresolve/internal/core/graph"
	"github.com/agenthands/ftmresolve/internal/core/identity"
	"github.com/agenthands/ftmresolve/internal/core/linking"
	"github.com/agenthands/ftmresolve/internal/core/model"
	"github.com/agenthands/ftmresolve/internal/core/stream"
	"github.com/agenthands/ftmresolve/internal/driver"
	"github.com/agenthands/ftmresolve/internal/ftm"
	"github.com/agenthands/ftmresolve/internal/llm"
	"github.com/agenthands/ftmresolve/internal/metrics"
	"github.com/gofrs/flock"
)

var (
	ErrInputNotFound = dedupe.ErrInputNotFound
	ErrRunInProgress = errors.New("another run holds the output lock")
	ErrNoGraph       = errors.New("no graph database configured")
)

// Pipeline wires the stages of entity resolution: evidence to mentions,
// mentions to canonical entities, and optionally entities into the graph.
type Pipeline struct {
	Registry     *ftm.Registry
	Iterator     *evidence.Iterator
	Extractor    *extraction.Extractor
	Linker       *linking.Linker
	Deduplicator *dedupe.Deduplicator
	Graph        *graph.Loader
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// NewPipeline builds a pipeline from configuration. graphDriver may be nil,
// in which case LoadGraph fails with ErrNoGraph.
func NewPipeline(cfg *config.Config, llmClient llm.LLMClient, graphDriver driver.GraphDriver, m *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := ftm.DefaultRegistry()
	keys, err := identity.NewKeyPolicy(cfg.Dedup.Schemata)
	if err != nil {
		return nil, fmt.Errorf("invalid dedup schemata: %w", err)
	}

	schemata := cfg.Inference.Schemata
	if len(schemata) == 0 {
		schemata = linking.DefaultSchemata
	}
	extractor := extraction.NewExtractor(llmClient, cfg.Inference.Prompt, schemata)
	extractor.Logger = logger

	linker := linking.NewLinker(reg, keys, schemata, cfg.LLM.Provider)
	linker.Logger = logger

	dedup := dedupe.NewDeduplicator(reg, keys)
	dedup.SpoolDir = cfg.Dedup.SpoolDir
	dedup.ProgressEvery = cfg.Dedup.ProgressEvery
	dedup.Logger = logger
	dedup.Metrics = m

	p := &Pipeline{
		Registry: reg,
		Iterator: &evidence.Iterator{
			MaxChars:  cfg.Inference.MaxChars,
			Describer: evidence.NewEnrichmentCache(),
			Logger:    logger,
		},
		Extractor:    extractor,
		Linker:       linker,
		Deduplicator: dedup,
		Metrics:      m,
		Logger:       logger,
	}
	if graphDriver != nil {
		p.Graph = graph.NewLoader(graphDriver, reg)
		p.Graph.Logger = logger
		p.Graph.Metrics = m
	}
	return p, nil
}

// Infer runs the extraction oracle over every evidence unit of the factual
// stream and writes the linked mentions to outPath. The output is flushed
// after each unit. Oracle failures count against the unit only.
func (p *Pipeline) Infer(ctx context.Context, factualPath, outPath string) (stats *model.InferStats, err error) {
	started := time.Now()
	defer func() { p.Metrics.ObserveRun("infer", started, err) }()

	in, err := openInput(factualPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	logger := p.logger()
	logger.Info("Starting inference", "factual", factualPath, "out", outPath)

	stats = &model.InferStats{}
	w := stream.NewWriter(out)
	err = p.Iterator.Walk(ctx, in, func(ev model.Evidence) error {
		stats.Evidence++
		items, err := p.Extractor.Extract(ctx, ev)
		if err != nil {
			stats.OracleFailures++
			logger.Warn("Extraction failed, skipping evidence", "proof", ev.ProofID, "error", err)
			items = nil
		}

		recs := p.Linker.Link(ev, items)
		for _, rec := range recs {
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		stats.Mentions += len(recs)
		logger.Debug("Linked evidence", "proof", ev.ProofID, "items", len(items), "mentions", len(recs))
		return w.Flush()
	})
	if err != nil {
		return stats, fmt.Errorf("inference aborted: %w", err)
	}
	if err := out.Close(); err != nil {
		return stats, fmt.Errorf("failed to close output: %w", err)
	}

	logger.Info("Inference finished",
		"evidence", stats.Evidence,
		"mentions", stats.Mentions,
		"oracle_failures", stats.OracleFailures)
	p.Metrics.ObserveInfer(stats)
	return stats, nil
}

// Dedup merges the mention stream at inPath into outPath. Runs on the same
// output are serialized through <outPath>.lock; a held lock fails fast with
// ErrRunInProgress.
func (p *Pipeline) Dedup(ctx context.Context, inPath, outPath string) (stats *model.DedupStats, err error) {
	started := time.Now()
	defer func() { p.Metrics.ObserveRun("dedup", started, err) }()

	if _, err := os.Stat(inPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, inPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	lock := flock.New(outPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", outPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, outPath)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			p.logger().Warn("Failed to release output lock", "path", lock.Path(), "error", uerr)
		}
	}()

	return p.Deduplicator.Run(ctx, inPath, outPath)
}

// LoadGraph writes a record stream into the configured graph database.
func (p *Pipeline) LoadGraph(ctx context.Context, path string) (stats *model.LoadStats, err error) {
	started := time.Now()
	defer func() { p.Metrics.ObserveRun("graph", started, err) }()

	if p.Graph == nil {
		return nil, ErrNoGraph
	}
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	p.logger().Info("Loading graph", "path", path)
	return p.Graph.Load(ctx, in)
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func openInput(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}
