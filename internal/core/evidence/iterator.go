package evidence

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/agenthands/ftmresolve/internal/core/model"
	"github.com/agenthands/ftmresolve/internal/core/stream"
	"github.com/agenthands/ftmresolve/internal/ftm"
)

// Describer supplies a description for an Image record that carries none.
type Describer interface {
	Describe(ctx context.Context, rec ftm.Record) (string, error)
}

// Iterator walks a factual record stream and yields the evidence units the
// extraction oracle is run on: image descriptions and document bodies.
type Iterator struct {
	MaxChars  int
	Describer Describer
	Logger    *slog.Logger
}

// Walk calls fn for every evidence unit in r. Malformed lines, records
// other than Image and Document, and records without text are skipped. An
// error from fn stops the walk and is returned.
func (it *Iterator) Walk(ctx context.Context, r io.Reader, fn func(model.Evidence) error) error {
	lines := stream.NewReader(r)
	for lines.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := ftm.DecodeRecord(lines.Line())
		if err != nil {
			it.logger().Debug("Skipping malformed factual line", "line", lines.LineNo(), "error", err)
			continue
		}
		ev, ok := it.evidenceFor(ctx, rec)
		if !ok {
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := lines.Err(); err != nil {
		return fmt.Errorf("failed to read factual stream: %w", err)
	}
	return nil
}

func (it *Iterator) evidenceFor(ctx context.Context, rec ftm.Record) (model.Evidence, bool) {
	var (
		kind model.EvidenceKind
		text string
	)
	switch rec.Schema {
	case "Image":
		kind = model.KindImage
		text = rec.Properties.FirstText("description")
		if text == "" && it.Describer != nil {
			desc, err := it.Describer.Describe(ctx, rec)
			if err != nil {
				it.logger().Warn("Image description failed", "proof", rec.ID, "error", err)
			}
			text = desc
		}
	case "Document":
		kind = model.KindDocument
		text = rec.Properties.FirstText("bodyText")
	default:
		return model.Evidence{}, false
	}
	if text == "" {
		return model.Evidence{}, false
	}
	return model.Evidence{
		ProofID: rec.ID,
		Kind:    kind,
		Text:    truncateRunes(text, it.MaxChars),
	}, true
}

func (it *Iterator) logger() *slog.Logger {
	if it.Logger != nil {
		return it.Logger
	}
	return slog.Default()
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
