package dedupe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/agenthands/ftmresolve/internal/core/identity"
	"github.com/agenthands/ftmresolve/internal/core/model"
	"github.com/agenthands/ftmresolve/internal/core/stream"
	"github.com/agenthands/ftmresolve/internal/ftm"
	"github.com/agenthands/ftmresolve/internal/metrics"
	"github.com/google/uuid"
)

var ErrInputNotFound = errors.New("input not found")

// Exit statuses of a run.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitInputNotFound = 2
)

// ExitCode maps the error of a run to its exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInputNotFound):
		return ExitInputNotFound
	default:
		return ExitFailure
	}
}

// Deduplicator merges mentions of the same entity across a record stream
// and points references at the merged records.
type Deduplicator struct {
	Registry      *ftm.Registry
	Keys          identity.KeyPolicy
	SpoolDir      string // empty: the output directory
	ProgressEvery int
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

func NewDeduplicator(reg *ftm.Registry, keys identity.KeyPolicy) *Deduplicator {
	return &Deduplicator{
		Registry:      reg,
		Keys:          keys,
		ProgressEvery: 10000,
		Logger:        slog.Default(),
	}
}

// run is the state of one dedup run.
type run struct {
	id         uuid.UUID
	aggregates map[string]*Aggregate
	idMap      map[string]string
	stats      model.DedupStats
	logger     *slog.Logger
}

// Run reads inPath and writes the deduplicated stream to outPath: canonical
// records sorted by id, then the records that were not merged in their
// original order with references rewritten. A missing input fails with
// ErrInputNotFound before anything is written. Malformed lines are skipped.
func (d *Deduplicator) Run(ctx context.Context, inPath, outPath string) (*model.DedupStats, error) {
	if _, err := os.Stat(inPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, inPath)
		}
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}

	r := &run{
		id:         uuid.New(),
		aggregates: make(map[string]*Aggregate),
		idMap:      make(map[string]string),
	}
	r.logger = d.logger().With("run_id", r.id.String())
	r.logger.Info("Starting dedup", "in", inPath, "out", outPath)

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	spoolDir := d.SpoolDir
	if spoolDir == "" {
		spoolDir = filepath.Dir(outPath)
	}
	spool, err := NewSpool(spoolDir, r.id, r.logger)
	if err != nil {
		return nil, err
	}
	defer spool.Close()

	if err := d.fold(ctx, r, inPath, spool); err != nil {
		return nil, err
	}
	if err := d.emit(ctx, r, outPath, spool); err != nil {
		return nil, err
	}

	r.logger.Info("Dedup finished",
		"lines", r.stats.Lines,
		"canonical", r.stats.Canonical,
		"passthrough", r.stats.Passthrough,
		"skipped", r.stats.Skipped,
		"rewritten", r.stats.Rewritten)
	d.Metrics.ObserveDedup(&r.stats)
	return &r.stats, nil
}

func (d *Deduplicator) validate() error {
	if d.Registry == nil {
		return errors.New("deduplicator has no schema registry")
	}
	for _, schema := range d.Keys.Schemata() {
		if _, ok := d.Registry.Get(schema); !ok {
			return fmt.Errorf("mergeable schema %s: %w", schema, ftm.ErrUnknownSchema)
		}
	}
	return nil
}

// fold is the first pass: mergeable records with a key are folded into
// aggregates, everything else is spooled verbatim.
func (d *Deduplicator) fold(ctx context.Context, r *run, inPath string, spool *Spool) error {
	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	lines := stream.NewReader(in)
	for lines.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.stats.Lines++
		d.progress(r, "pass1", r.stats.Lines)

		rec, err := ftm.DecodeRecord(lines.Line())
		if err != nil {
			r.stats.Skipped++
			r.logger.Debug("Skipping malformed line", "line", lines.LineNo(), "error", err)
			continue
		}

		key := d.Keys.Key(rec.Schema, rec.Properties)
		if key == "" {
			if err := spool.Append(lines.Line()); err != nil {
				return err
			}
			r.stats.Spooled++
			continue
		}

		cid := identity.CanonicalID(rec.Schema, key)
		r.idMap[rec.ID] = cid
		agg, ok := r.aggregates[cid]
		if !ok {
			agg = NewAggregate(rec.Schema, cid)
			r.aggregates[cid] = agg
		}
		agg.Fold(rec.Properties)
		r.stats.Folded++
	}
	if err := lines.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

// emit is the second pass: canonical records first, then the spooled
// records with their references rewritten.
func (d *Deduplicator) emit(ctx context.Context, r *run, outPath string, spool *Spool) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()
	w := stream.NewWriter(out)

	ids := make([]string, 0, len(r.aggregates))
	for id := range r.aggregates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := w.Write(r.aggregates[id].Record(d.Registry)); err != nil {
			return fmt.Errorf("failed to write canonical record: %w", err)
		}
		r.stats.Canonical++
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	// Aggregates are serialized once.
	r.aggregates = nil

	spooled, err := spool.Reader()
	if err != nil {
		return err
	}
	lines := stream.NewReader(spooled)
	for n := 1; lines.Next(); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.progress(r, "pass2", n)

		rec, err := ftm.DecodeRecord(lines.Line())
		if err != nil {
			r.stats.Skipped++
			continue
		}
		r.stats.Rewritten += d.rewrite(rec, r.idMap)
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		r.stats.Passthrough++
	}
	if err := lines.Err(); err != nil {
		return fmt.Errorf("failed to read spool: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	return nil
}

// rewrite replaces merged mention ids on reference properties with their
// canonical id and returns the number of values replaced. Values without
// a mapping and non-reference properties are left alone.
func (d *Deduplicator) rewrite(rec ftm.Record, idMap map[string]string) int {
	n := 0
	for name, vals := range rec.Properties {
		p, ok := d.Registry.Property(rec.Schema, name)
		if !ok || !p.IsReference() {
			continue
		}
		for i, v := range vals {
			if !v.IsString() {
				continue
			}
			if cid, ok := idMap[v.Text()]; ok {
				vals[i] = ftm.String(cid)
				n++
			}
		}
	}
	return n
}

func (d *Deduplicator) progress(r *run, pass string, n int) {
	if d.ProgressEvery > 0 && n%d.ProgressEvery == 0 {
		r.logger.Debug("Dedup progress", "pass", pass, "lines", n, "canonical", len(r.aggregates))
	}
}

func (d *Deduplicator) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
