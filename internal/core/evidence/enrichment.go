package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agenthands/ftmresolve/internal/ftm"
)

// EnrichmentFileName is the per-directory cache of image descriptions
// written by the enrichment stage.
const EnrichmentFileName = "image_enrichment.json"

type enrichmentEntry struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

// EnrichmentCache describes images from the enrichment file next to them.
// The image is located through a file: sourceUrl. Files are read once per
// directory.
type EnrichmentCache struct {
	mu   sync.Mutex
	dirs map[string][]enrichmentEntry
}

func NewEnrichmentCache() *EnrichmentCache {
	return &EnrichmentCache{dirs: make(map[string][]enrichmentEntry)}
}

func (c *EnrichmentCache) Describe(_ context.Context, rec ftm.Record) (string, error) {
	path, ok := pathFromSourceURL(rec.Properties.FirstText("sourceUrl"))
	if !ok {
		return "", nil
	}
	entries, err := c.load(filepath.Dir(path))
	if err != nil {
		return "", err
	}

	fileName := rec.Properties.FirstText("fileName")
	for _, e := range entries {
		if e.Description == "" {
			continue
		}
		if rec.ID != "" && e.ID == rec.ID {
			return e.Description, nil
		}
		if fileName != "" && e.Filename == fileName {
			return e.Description, nil
		}
	}
	return "", nil
}

func (c *EnrichmentCache) load(dir string) ([]enrichmentEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entries, ok := c.dirs[dir]; ok {
		return entries, nil
	}
	var entries []enrichmentEntry
	data, err := os.ReadFile(filepath.Join(dir, EnrichmentFileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read enrichment file: %w", err)
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			entries = nil
		}
	}
	c.dirs[dir] = entries
	return entries, nil
}

func pathFromSourceURL(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "file:") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "", false
	}
	return u.Path, true
}
