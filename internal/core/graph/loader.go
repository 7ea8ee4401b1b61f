package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/agenthands/ftmresolve/internal/core/model"
	"github.com/agenthands/ftmresolve/internal/core/stream"
	"github.com/agenthands/ftmresolve/internal/driver"
	"github.com/agenthands/ftmresolve/internal/ftm"
	"github.com/agenthands/ftmresolve/internal/metrics"
)

// captionProperties are tried in order for the display label of a node.
var captionProperties = []string{"name", "full", "title", "email", "iban", "registrationNumber", "fileName"}

// Loader writes a record stream into the graph database: one Entity node
// per record and one REFERENCES relationship per reference value.
type Loader struct {
	Driver   driver.GraphDriver
	Registry *ftm.Registry
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func NewLoader(d driver.GraphDriver, reg *ftm.Registry) *Loader {
	return &Loader{Driver: d, Registry: reg, Logger: slog.Default()}
}

// Load reads records from r. Malformed lines are skipped; a failing query
// aborts the load.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*model.LoadStats, error) {
	if err := l.Driver.BuildIndices(ctx); err != nil {
		return nil, fmt.Errorf("failed to build indices: %w", err)
	}

	stats := &model.LoadStats{}
	lines := stream.NewReader(r)
	for lines.Next() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec, err := ftm.DecodeRecord(lines.Line())
		if err != nil {
			stats.Skipped++
			l.logger().Debug("Skipping malformed line", "line", lines.LineNo(), "error", err)
			continue
		}
		stats.Records++

		node, edges, err := Project(rec, l.Registry)
		if err != nil {
			return stats, err
		}
		if err := l.saveNode(ctx, node); err != nil {
			return stats, fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
		stats.Nodes++
		if err := l.saveEdges(ctx, node.ID, edges); err != nil {
			return stats, fmt.Errorf("failed to save references of %s: %w", node.ID, err)
		}
		stats.Edges += len(edges)
	}
	if err := lines.Err(); err != nil {
		return stats, fmt.Errorf("failed to read records: %w", err)
	}

	l.logger().Info("Graph load finished", "nodes", stats.Nodes, "edges", stats.Edges, "skipped", stats.Skipped)
	l.Metrics.ObserveGraph(stats)
	return stats, nil
}

func (l *Loader) saveNode(ctx context.Context, node model.GraphNode) error {
	params := map[string]interface{}{
		"id":         node.ID,
		"schema":     node.Schema,
		"caption":    node.Caption,
		"properties": node.Properties,
	}
	_, err := l.Driver.ExecuteQuery(ctx, driver.SaveRecordNodeQuery, params)
	return err
}

func (l *Loader) saveEdges(ctx context.Context, sourceID string, edges []model.GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}
	rows := make([]interface{}, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]interface{}{
			"target_id": e.TargetID,
			"property":  e.Property,
		})
	}
	params := map[string]interface{}{
		"source_id": sourceID,
		"edges":     rows,
	}
	_, err := l.Driver.ExecuteQuery(ctx, driver.SaveReferenceEdgesQuery, params)
	return err
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// Project maps a record to its graph node and outgoing edges. Edges are
// ordered by property, then target.
func Project(rec ftm.Record, reg *ftm.Registry) (model.GraphNode, []model.GraphEdge, error) {
	props, err := json.Marshal(rec.Properties)
	if err != nil {
		return model.GraphNode{}, nil, fmt.Errorf("failed to encode properties of %s: %w", rec.ID, err)
	}
	node := model.GraphNode{
		ID:         rec.ID,
		Schema:     rec.Schema,
		Caption:    caption(rec),
		Properties: string(props),
	}

	var edges []model.GraphEdge
	seen := make(map[model.GraphEdge]bool)
	for name, vals := range rec.Properties {
		p, ok := reg.Property(rec.Schema, name)
		if !ok || !p.IsReference() {
			continue
		}
		for _, v := range vals {
			if !v.IsString() || v.Text() == "" {
				continue
			}
			e := model.GraphEdge{SourceID: rec.ID, TargetID: v.Text(), Property: name}
			if seen[e] {
				continue
			}
			seen[e] = true
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Property != edges[j].Property {
			return edges[i].Property < edges[j].Property
		}
		return edges[i].TargetID < edges[j].TargetID
	})
	return node, edges, nil
}

func caption(rec ftm.Record) string {
	for _, name := range captionProperties {
		if text := rec.Properties.FirstText(name); text != "" {
			return text
		}
	}
	return rec.ID
}
