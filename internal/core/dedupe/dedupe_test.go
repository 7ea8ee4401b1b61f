package dedupe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agenthands/ftmresolve/internal/core/identity"
	"github.com/agenthands/ftmresolve/internal/ftm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	personCanon  = "canon-9d9d06af14d15d0bc8c9be72419d14807036406b"
	companyCanon = "canon-60f4b8b9173895eeee0cd6e9dc8aded6f30cdfe5"
)

func newTestDeduplicator() *Deduplicator {
	return NewDeduplicator(ftm.DefaultRegistry(), identity.DefaultKeyPolicy())
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func scenarioInput() []string {
	return []string{
		`{"id":"ment-p1","schema":"Person","properties":{"name":["Hickens"],"proof":["img-1"]}}`,
		`{"id":"ment-p2","schema":"Person","properties":{"name":["  hickens "],"proof":["img-2"]}}`,
		`{"id":"ment-c1","schema":"Company","properties":{"name":["FedEx"],"proof":["img-1"]}}`,
		`{"id":"ment-c2","schema":"Company","properties":{"name":"FEDEX","proof":"img-2"}}`,
		`{"id":"ment-e1","schema":"Event","properties":{"name":["Test"],"involved":["ment-p1"],"proof":["img-1"]}}`,
	}
}

func TestRun_MergesMentionsAndRewritesReferences(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "inferred.ndjson")
	out := filepath.Join(dir, "dedup.ndjson")
	writeLines(t, in, scenarioInput()...)

	stats, err := newTestDeduplicator().Run(context.Background(), in, out)
	require.NoError(t, err)

	assert.Equal(t, []string{
		`{"id":"` + companyCanon + `","properties":{"name":["FedEx","FEDEX"],"proof":["img-1","img-2"]},"schema":"Company"}`,
		`{"id":"` + personCanon + `","properties":{"name":["Hickens","  hickens "],"proof":["img-1","img-2"]},"schema":"Person"}`,
		`{"id":"ment-e1","properties":{"involved":["` + personCanon + `"],"name":["Test"],"proof":["img-1"]},"schema":"Event"}`,
	}, readLines(t, out))

	assert.Equal(t, 5, stats.Lines)
	assert.Equal(t, 4, stats.Folded)
	assert.Equal(t, 1, stats.Spooled)
	assert.Equal(t, 2, stats.Canonical)
	assert.Equal(t, 1, stats.Passthrough)
	assert.Equal(t, 1, stats.Rewritten)
}

func TestRun_MissingInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "dedup.ndjson")

	stats, err := newTestDeduplicator().Run(context.Background(), filepath.Join(dir, "nope.ndjson"), out)

	assert.ErrorIs(t, err, ErrInputNotFound)
	assert.Equal(t, ExitInputNotFound, ExitCode(err))
	assert.Nil(t, stats)
	assert.NoFileExists(t, out)
}

func TestRun_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "inferred.ndjson")
	first := filepath.Join(dir, "first.ndjson")
	second := filepath.Join(dir, "second.ndjson")
	writeLines(t, in, append(scenarioInput(),
		`{"id":"ment-a1","schema":"Address","properties":{"name":"1 Main St","full":""}}`,
		`{"id":"ment-a2","schema":"Address","properties":{"full":"1 MAIN ST","name":"Home"}}`,
		`{"id":"ment-t1","schema":"Trip","properties":{"vehicle":"ment-v1","startLocation":["ment-a2","ment-x"]}}`,
		`{"id":"ment-v1","schema":"Vehicle","properties":{"model":"Golf"}}`,
		`{"id":"ment-b1","schema":"BankAccount","properties":{"iban":["","DE1"],"accountNumber":"123"}}`,
		`{"id":"ment-b2","schema":"BankAccount","properties":{"iban":[null,"  "],"accountNumber":"456"}}`,
	)...)

	d := newTestDeduplicator()
	_, err := d.Run(context.Background(), in, first)
	require.NoError(t, err)
	stats, err := d.Run(context.Background(), first, second)
	require.NoError(t, err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Zero(t, stats.Skipped)
	assert.Contains(t, string(a), `"id":"`+identity.CanonicalID("BankAccount", "de1")+`"`)
}

func TestRun_PassthroughKeepsOrderAndUnresolvedValues(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ndjson")
	out := filepath.Join(dir, "out.ndjson")
	writeLines(t, in,
		`{"id":"e2","schema":"Event","caption":"second","properties":{"involved":["ment-p1","unknown-id"],"summary":"ment-p1"}}`,
		`this is not json`,
		`{"id":"nameless","schema":"Person","properties":{"firstName":"Ann"}}`,
		`{"schema":"Person","properties":{"name":"No Id"}}`,
		`{"id":"bad-props","schema":"Person","properties":["name"]}`,
		``,
		`{"id":"ment-p1","schema":"Person","properties":{"name":"Ann Lee","unknownProp":"x"}}`,
		`{"id":"s1","schema":"Spaceship","properties":{"pilot":"ment-p1"}}`,
	)

	stats, err := newTestDeduplicator().Run(context.Background(), in, out)
	require.NoError(t, err)

	annCanon := identity.CanonicalID("Person", "ann lee")
	assert.Equal(t, []string{
		`{"id":"` + annCanon + `","properties":{"name":["Ann Lee"]},"schema":"Person"}`,
		`{"caption":"second","id":"e2","properties":{"involved":["` + annCanon + `","unknown-id"],"summary":["ment-p1"]},"schema":"Event"}`,
		`{"id":"nameless","properties":{"firstName":["Ann"]},"schema":"Person"}`,
		`{"id":"s1","properties":{"pilot":["ment-p1"]},"schema":"Spaceship"}`,
	}, readLines(t, out))
	assert.Equal(t, 3, stats.Skipped)
}

func TestRun_RemovesSpool(t *testing.T) {
	dir := t.TempDir()
	spoolDir := filepath.Join(dir, "spool")
	require.NoError(t, os.Mkdir(spoolDir, 0o755))
	in := filepath.Join(dir, "in.ndjson")
	writeLines(t, in, scenarioInput()...)

	d := newTestDeduplicator()
	d.SpoolDir = spoolDir
	_, err := d.Run(context.Background(), in, filepath.Join(dir, "out", "dedup.ndjson"))
	require.NoError(t, err)

	entries, err := os.ReadDir(spoolDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_RemovesSpoolOnCancel(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ndjson")
	writeLines(t, in, scenarioInput()...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestDeduplicator().Run(ctx, in, filepath.Join(dir, "out.ndjson"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ExitFailure, ExitCode(err))

	matches, err := filepath.Glob(filepath.Join(dir, "ftm-dedup-spool-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRun_RestrictedMergeSet(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ndjson")
	out := filepath.Join(dir, "out.ndjson")
	writeLines(t, in, scenarioInput()...)

	keys, err := identity.NewKeyPolicy([]string{"Company"})
	require.NoError(t, err)
	stats, err := NewDeduplicator(ftm.DefaultRegistry(), keys).Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Canonical)
	assert.Equal(t, 3, stats.Passthrough)
	assert.Contains(t, readLines(t, out)[3], `"involved":["ment-p1"]`)
}

func TestRun_UnknownMergeableSchema(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ndjson")
	writeLines(t, in, scenarioInput()...)

	reg, err := ftm.LoadRegistry(strings.NewReader("schemata:\n  Person:\n    properties:\n      name: {type: name}\n"))
	require.NoError(t, err)
	_, err = NewDeduplicator(reg, identity.DefaultKeyPolicy()).Run(context.Background(), in, filepath.Join(dir, "out.ndjson"))
	assert.ErrorIs(t, err, ftm.ErrUnknownSchema)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("disk full")))
}
