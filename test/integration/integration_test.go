//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/ftmresolve/internal/config"
	"github.com/agenthands/ftmresolve/internal/core"
	"github.com/agenthands/ftmresolve/internal/core/identity"
	"github.com/agenthands/ftmresolve/internal/driver"
	"github.com/agenthands/ftmresolve/internal/llm"
	"github.com/joho/godotenv"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	_ = godotenv.Load("../../.env") // Try root .env

	cfg, err := config.LoadOrDefault(os.Getenv("CONFIG_PATH"))
	require.NoError(t, err)
	cfg.ApplyEnv()
	return cfg
}

func TestDedupAndLoadGraph(t *testing.T) {
	cfg := loadConfig(t)
	if os.Getenv("MEMGRAPH_URI") == "" {
		t.Skip("Skipping integration test: MEMGRAPH_URI not set")
	}

	ctx := context.Background()
	d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password)
	require.NoError(t, err)
	defer d.Close(ctx)

	p, err := core.NewPipeline(cfg, nil, d, nil, nil)
	require.NoError(t, err)

	// Unique names keep runs from merging into each other's entities.
	run := uuid.New().String()
	name := "Alice " + run
	proof1, proof2 := "img-"+run+"-1", "img-"+run+"-2"
	ment1 := identity.MentionID(proof1, "Person", identity.Normalize(name))
	ment2 := identity.MentionID(proof2, "Person", identity.Normalize(name))
	event := "event-" + run

	dir := t.TempDir()
	in := filepath.Join(dir, "followthemoney.inferred.ndjson")
	out := filepath.Join(dir, "followthemoney.inferred.dedup.ndjson")
	require.NoError(t, os.WriteFile(in, []byte(strings.Join([]string{
		fmt.Sprintf(`{"id":%q,"schema":"Person","properties":{"name":[%q],"proof":[%q]}}`, ment1, name, proof1),
		fmt.Sprintf(`{"id":%q,"schema":"Person","properties":{"name":[%q],"proof":[%q]}}`, ment2, strings.ToUpper(name), proof2),
		fmt.Sprintf(`{"id":%q,"schema":"Event","properties":{"involved":[%q]}}`, event, ment2),
	}, "\n")), 0o644))

	dedupStats, err := p.Dedup(ctx, in, out)
	require.NoError(t, err)
	assert.Equal(t, 1, dedupStats.Canonical)

	before := countEntities(ctx, t, d)

	loadStats, err := p.LoadGraph(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, 2, loadStats.Nodes)
	assert.Equal(t, before+2, countEntities(ctx, t, d))

	canonical := identity.CanonicalID("Person", identity.Normalize(name))
	ids := []string{canonical, event, proof1, proof2}
	defer func() {
		cleanupCypher := `MATCH (n:Entity) WHERE n.id IN $ids DETACH DELETE n`
		_, _ = d.ExecuteQuery(ctx, cleanupCypher, map[string]interface{}{"ids": ids})
	}()

	res, err := d.ExecuteQuery(ctx, driver.GetReferencesQuery, map[string]interface{}{"id": event})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	target, _ := res.Records[0].Get("target_id")
	property, _ := res.Records[0].Get("property")
	assert.Equal(t, canonical, target)
	assert.Equal(t, "involved", property)

	res, err = d.ExecuteQuery(ctx, driver.GetReferencesQuery, map[string]interface{}{"id": canonical})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
}

// countEntities counts loaded, non-placeholder entity nodes.
func countEntities(ctx context.Context, t *testing.T, d driver.GraphDriver) int64 {
	t.Helper()
	res, err := d.ExecuteQuery(ctx, driver.CountEntitiesQuery, nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	count, ok := res.Records[0].Get("count")
	require.True(t, ok)
	return count.(int64)
}

func TestInferWithLiveModel(t *testing.T) {
	cfg := loadConfig(t)
	if os.Getenv("LLM_MODEL") == "" {
		t.Skip("Skipping integration test: LLM_MODEL not set")
	}

	ctx := context.Background()
	llmClient, err := llm.NewClient(ctx, cfg.LLM)
	require.NoError(t, err)
	p, err := core.NewPipeline(cfg, llmClient, nil, nil, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	factual := filepath.Join(dir, "followthemoney.ndjson")
	inferred := filepath.Join(dir, "followthemoney.inferred.ndjson")
	require.NoError(t, os.WriteFile(factual, []byte(
		`{"id":"doc-1","schema":"Document","properties":{"bodyText":["On 11 September 2019 Alice Smith met Bob Jones at 1 Main Street, Springfield."]}}`+"\n"), 0o644))

	stats, err := p.Infer(ctx, factual, inferred)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Evidence)
	t.Logf("Inference stats: %+v", stats)
	if stats.OracleFailures == 0 {
		assert.Positive(t, stats.Mentions)
	}
}
