package linking

import (
	"strings"

	"github.com/agenthands/ftmresolve/internal/core/identity"
	"github.com/agenthands/ftmresolve/internal/core/model"
	"github.com/agenthands/ftmresolve/internal/ftm"
)

// Kind selects what a free-text reference is resolved into.
type Kind int

const (
	KindPerson Kind = iota
	KindAddress
)

func (k Kind) Schema() string {
	switch k {
	case KindPerson:
		return "Person"
	case KindAddress:
		return "Address"
	}
	return ""
}

// Resolver holds the mentions created for one evidence unit. Free-text
// references resolved through Ensure reuse mentions already created within
// the same unit. A Resolver must not outlive its evidence unit.
type Resolver struct {
	linker   *Linker
	evidence model.Evidence

	cache   map[Kind]map[string]string
	records map[string]*ftm.Record
	direct  map[string]bool
}

func newResolver(l *Linker, ev model.Evidence) *Resolver {
	return &Resolver{
		linker:   l,
		evidence: ev,
		cache: map[Kind]map[string]string{
			KindPerson:  {},
			KindAddress: {},
		},
		records: make(map[string]*ftm.Record),
		direct:  make(map[string]bool),
	}
}

// Ensure returns the id of the mention the text refers to, creating a
// linked mention the first time the text is seen in this unit. The stored
// value keeps the original casing; lookups ignore case and spacing.
func (r *Resolver) Ensure(kind Kind, text string) (string, bool) {
	cached, ok := r.cache[kind]
	if !ok {
		return "", false
	}
	text = strings.TrimSpace(text)
	lookup := identity.Normalize(text)
	if lookup == "" {
		return "", false
	}
	if id, ok := cached[lookup]; ok {
		return id, true
	}

	schema := kind.Schema()
	props := ftm.Properties{}
	switch kind {
	case KindPerson:
		props["name"] = []ftm.Value{ftm.String(text)}
		normalizePerson(props)
	case KindAddress:
		props["full"] = []ftm.Value{ftm.String(text)}
		props["name"] = []ftm.Value{ftm.String(text)}
		normalizeAddress(props)
	}

	key := r.linker.naturalKey(schema, props)
	if key == "" {
		key = lookup
	}
	id := identity.MentionID(r.evidence.ProofID, schema, key)

	if _, exists := r.records[id]; !exists {
		rec, ok := r.linker.build(schema, id, props, r.evidence, model.InferenceNote{})
		if !ok {
			return "", false
		}
		r.records[id] = &rec
	}
	cached[lookup] = id
	return id, true
}

// put stores a directly extracted record. It replaces a linked mention with
// the same id and folds into an earlier direct one.
func (r *Resolver) put(rec ftm.Record) {
	existing, ok := r.records[rec.ID]
	if ok && r.direct[rec.ID] {
		for name, vals := range rec.Properties {
			existing.Properties.Add(name, vals...)
		}
		return
	}
	r.records[rec.ID] = &rec
	r.direct[rec.ID] = true
}

// Records returns every mention of the unit ordered by schema, then id.
func (r *Resolver) Records() []ftm.Record {
	out := make([]ftm.Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sortRecords(out)
	return out
}
