package linking

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/agenthands/ftmresolve/internal/core/identity"
	"github.com/agenthands/ftmresolve/internal/core/model"
	"github.com/agenthands/ftmresolve/internal/ftm"
)

// DefaultSchemata is the set of schemata accepted from the extraction oracle.
var DefaultSchemata = []string{
	"Address", "Airplane", "BankAccount", "Call", "Company", "CourtCase",
	"Email", "Event", "Payment", "Person", "Trip", "Vehicle", "Vessel",
}

// requiredKeys keys the schemata whose items are dropped without a natural
// key, whether or not they are merged later.
var requiredKeys = identity.KeyPolicy{
	"Person":  {"name"},
	"Address": {"full", "name"},
}

// fallbackKeyProperties key the remaining schemata when the key policy
// yields nothing.
var fallbackKeyProperties = []string{"name", "id", "full"}

// noteProperties are tried in order to hold the provenance note.
var noteProperties = []string{"notes", "description", "summary"}

// Linker turns candidate items from one evidence unit into mention records.
type Linker struct {
	Registry *ftm.Registry
	Keys     identity.KeyPolicy
	Accepted map[string]bool
	Source   string
	Logger   *slog.Logger
}

func NewLinker(reg *ftm.Registry, keys identity.KeyPolicy, accepted []string, source string) *Linker {
	if len(accepted) == 0 {
		accepted = DefaultSchemata
	}
	set := make(map[string]bool, len(accepted))
	for _, s := range accepted {
		set[s] = true
	}
	return &Linker{
		Registry: reg,
		Keys:     keys,
		Accepted: set,
		Source:   source,
		Logger:   slog.Default(),
	}
}

// NewResolver starts the linking context of one evidence unit.
func (l *Linker) NewResolver(ev model.Evidence) *Resolver {
	return newResolver(l, ev)
}

// Link materializes the candidate items of one evidence unit. Items with an
// unaccepted schema, and Person or Address items without a natural key, are
// dropped. Other keyless items are keyed by Schema@proof. Records are
// ordered by schema, then id.
func (l *Linker) Link(ev model.Evidence, items []model.CandidateItem) []ftm.Record {
	r := l.NewResolver(ev)
	for _, item := range items {
		rec, ok := l.linkItem(r, item)
		if !ok {
			l.logger().Debug("Dropped candidate item",
				"proof", ev.ProofID, "schema", item.Schema)
			continue
		}
		r.put(rec)
	}
	return r.Records()
}

func (l *Linker) linkItem(r *Resolver, item model.CandidateItem) (ftm.Record, bool) {
	if !l.Accepted[item.Schema] {
		return ftm.Record{}, false
	}
	schema, ok := l.Registry.Get(item.Schema)
	if !ok {
		return ftm.Record{}, false
	}

	props := item.Properties.Clone()
	switch {
	case schema.IsA("Person"):
		normalizePerson(props)
	case schema.IsA("Address"):
		normalizeAddress(props)
	}

	key := l.naturalKey(item.Schema, props)
	if key == "" {
		if requiredKeys.Mergeable(item.Schema) {
			return ftm.Record{}, false
		}
		key = item.Schema + "@" + r.evidence.ProofID
	}
	id := identity.MentionID(r.evidence.ProofID, item.Schema, key)

	l.linkReferences(r, schema, props)

	note := model.InferenceNote{
		Confidence: item.Confidence,
		Evidence:   item.Evidence,
		Kind:       r.evidence.Kind,
	}
	return l.build(item.Schema, id, props, r.evidence, note)
}

// linkReferences rewrites free-text involved names and location strings
// into mention ids on schemata that declare them as references.
func (l *Linker) linkReferences(r *Resolver, schema *ftm.Schema, props ftm.Properties) {
	if p, ok := schema.Property("involved"); ok && p.IsReference() {
		if vals, ok := props["involved"]; ok {
			ids := make([]ftm.Value, 0, len(vals))
			for _, v := range vals {
				if !v.IsString() {
					continue
				}
				if id, ok := r.Ensure(KindPerson, v.Text()); ok {
					ids = append(ids, ftm.String(id))
				}
			}
			delete(props, "involved")
			props.Add("involved", ids...)
		}
	}

	if _, ok := schema.Property("location"); !ok {
		return
	}
	if p, ok := schema.Property("addressEntity"); !ok || !p.IsReference() {
		return
	}
	for _, v := range props["location"] {
		if !v.IsString() {
			continue
		}
		if id, ok := r.Ensure(KindAddress, v.Text()); ok {
			props.Add("addressEntity", ftm.String(id))
		}
	}
}

// naturalKey derives the mention key of an item. Person and Address use
// their fixed key, Event only its name. Other schemata use the merge key
// policy, then the first of name, id and full.
func (l *Linker) naturalKey(schema string, props ftm.Properties) string {
	if requiredKeys.Mergeable(schema) {
		return requiredKeys.Key(schema, props)
	}
	if schema == "Event" {
		return identity.Normalize(props.FirstText("name"))
	}
	if key := l.Keys.Key(schema, props); key != "" {
		return key
	}
	for _, name := range fallbackKeyProperties {
		if key := identity.Normalize(props.FirstText(name)); key != "" {
			return key
		}
	}
	return ""
}

// build creates a record holding only the properties the schema declares,
// plus proof and provenance.
func (l *Linker) build(schemaName, id string, props ftm.Properties, ev model.Evidence, note model.InferenceNote) (ftm.Record, bool) {
	schema, ok := l.Registry.Get(schemaName)
	if !ok {
		return ftm.Record{}, false
	}
	rec := ftm.NewRecord(schemaName, id)
	for name, vals := range props {
		if _, ok := schema.Property(name); !ok {
			continue
		}
		for _, v := range vals {
			if v, ok := cleanValue(v); ok {
				rec.Properties.Add(name, v)
			}
		}
	}
	if _, ok := schema.Property("proof"); ok {
		rec.Properties.Add("proof", ftm.String(ev.ProofID))
	}

	note.Stream = model.StreamInferred
	note.Source = l.Source
	note.Proof = ev.ProofID
	if text, err := encodeNote(note); err == nil {
		for _, name := range noteProperties {
			if _, ok := schema.Property(name); ok {
				rec.Properties.Add(name, ftm.String(text))
				break
			}
		}
	}
	return rec, true
}

func (l *Linker) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// cleanValue keeps scalar values only; strings are trimmed and dropped
// when empty.
func cleanValue(v ftm.Value) (ftm.Value, bool) {
	if v.IsNull() {
		return nil, false
	}
	if v.IsString() {
		text := strings.TrimSpace(v.Text())
		if text == "" {
			return nil, false
		}
		return ftm.String(text), true
	}
	switch bytes.TrimSpace(v)[0] {
	case '{', '[':
		return nil, false
	}
	return v, true
}

func encodeNote(note model.InferenceNote) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(note); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func sortRecords(recs []ftm.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Schema != recs[j].Schema {
			return recs[i].Schema < recs[j].Schema
		}
		return recs[i].ID < recs[j].ID
	})
}
