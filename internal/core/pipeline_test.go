package core

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agenthands/ftmresolve/internal/config"
	"github.com/agenthands/ftmresolve/internal/core/dedupe"
	"github.com/agenthands/ftmresolve/internal/core/identity"
	"github.com/agenthands/ftmresolve/internal/driver"
	"github.com/agenthands/ftmresolve/internal/ftm"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const factual = `{"id":"doc-1","schema":"Document","properties":{"bodyText":["Ann Lee signed the contract."]}}
{"id":"doc-2","schema":"Document","properties":{"bodyText":["Later, ann  LEE called."]}}
`

const annLee = `Found: [{"schema":"Person","properties":{"name":"Ann Lee"},"confidence":0.9,"evidence":"Ann Lee"}]`

func newTestPipeline(t *testing.T, llmClient *MockLLM, d driver.GraphDriver) *Pipeline {
	t.Helper()
	p, err := NewPipeline(config.Default(), llmClient, d, nil, nil)
	require.NoError(t, err)
	return p
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readRecords(t *testing.T, path string) []ftm.Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var recs []ftm.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		rec, err := ftm.DecodeRecord(sc.Bytes())
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	require.NoError(t, sc.Err())
	return recs
}

func TestInfer_NonJSONResponseYieldsNothingForThatUnit(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "followthemoney.ndjson")
	out := filepath.Join(dir, "followthemoney.inferred.ndjson")
	writeFile(t, in, factual)

	llmClient := &MockLLM{ResponseQueue: []string{"Sorry, I cannot find any entities.", annLee}}
	p := newTestPipeline(t, llmClient, nil)

	stats, err := p.Infer(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Evidence)
	assert.Equal(t, 1, stats.OracleFailures)
	assert.Equal(t, 1, stats.Mentions)
	assert.Equal(t, 2, llmClient.Calls)

	recs := readRecords(t, out)
	require.Len(t, recs, 1)
	assert.Equal(t, "Person", recs[0].Schema)
	assert.Equal(t, identity.MentionID("doc-2", "Person", "ann lee"), recs[0].ID)
	assert.Equal(t, "doc-2", recs[0].Properties.FirstText("proof"))
}

func TestInfer_OracleErrorIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ndjson")
	out := filepath.Join(dir, "out.ndjson")
	writeFile(t, in, factual)

	p := newTestPipeline(t, &MockLLM{Err: errors.New("connection refused")}, nil)

	stats, err := p.Infer(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.OracleFailures)
	assert.Empty(t, readRecords(t, out))
}

func TestInfer_MissingInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.ndjson")
	p := newTestPipeline(t, &MockLLM{}, nil)

	_, err := p.Infer(context.Background(), filepath.Join(dir, "missing.ndjson"), out)
	assert.ErrorIs(t, err, ErrInputNotFound)
	assert.Equal(t, dedupe.ExitInputNotFound, dedupe.ExitCode(err))
	assert.NoFileExists(t, out)
}

func TestInferThenDedup_MergesMentionsAcrossEvidence(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "followthemoney.ndjson")
	inferred := filepath.Join(dir, "followthemoney.inferred.ndjson")
	deduped := filepath.Join(dir, "followthemoney.inferred.dedup.ndjson")
	writeFile(t, in, factual)

	p := newTestPipeline(t, &MockLLM{Response: annLee}, nil)

	_, err := p.Infer(context.Background(), in, inferred)
	require.NoError(t, err)
	require.Len(t, readRecords(t, inferred), 2)

	stats, err := p.Dedup(context.Background(), inferred, deduped)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Canonical)

	recs := readRecords(t, deduped)
	require.Len(t, recs, 1)
	assert.Equal(t, identity.CanonicalID("Person", "ann lee"), recs[0].ID)
	var proofs []string
	for _, v := range recs[0].Properties["proof"] {
		proofs = append(proofs, v.Text())
	}
	assert.Equal(t, []string{"doc-1", "doc-2"}, proofs)
}

func TestDedup_FailsWhileAnotherRunHoldsTheLock(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ndjson")
	out := filepath.Join(dir, "out.ndjson")
	writeFile(t, in, `{"id":"e1","schema":"Event","properties":{}}`+"\n")

	held := flock.New(out + ".lock")
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = held.Unlock() })

	p := newTestPipeline(t, &MockLLM{}, nil)
	_, err = p.Dedup(context.Background(), in, out)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.NoFileExists(t, out)

	require.NoError(t, held.Unlock())
	_, err = p.Dedup(context.Background(), in, out)
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestDedup_MissingInputWritesNothing(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.ndjson")
	p := newTestPipeline(t, &MockLLM{}, nil)

	_, err := p.Dedup(context.Background(), filepath.Join(dir, "missing.ndjson"), out)
	assert.ErrorIs(t, err, ErrInputNotFound)
	assert.NoFileExists(t, out)
}

func TestLoadGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dedup.ndjson")
	writeFile(t, path, strings.Join([]string{
		`{"id":"canon-p","schema":"Person","properties":{"name":["Ann Lee"]}}`,
		`{"id":"e1","schema":"Event","properties":{"involved":["canon-p"]}}`,
	}, "\n"))

	t.Run("without a graph database", func(t *testing.T) {
		p := newTestPipeline(t, &MockLLM{}, nil)
		_, err := p.LoadGraph(context.Background(), path)
		assert.ErrorIs(t, err, ErrNoGraph)
	})

	t.Run("loads nodes and edges", func(t *testing.T) {
		d := &MockDriver{}
		p := newTestPipeline(t, &MockLLM{}, d)
		stats, err := p.LoadGraph(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Nodes)
		assert.Equal(t, 1, stats.Edges)
		assert.Len(t, d.Queries, 3)
	})

	t.Run("missing input", func(t *testing.T) {
		p := newTestPipeline(t, &MockLLM{}, &MockDriver{})
		_, err := p.LoadGraph(context.Background(), filepath.Join(dir, "missing.ndjson"))
		assert.ErrorIs(t, err, ErrInputNotFound)
	})
}
