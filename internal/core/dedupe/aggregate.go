package dedupe

import (
	"github.com/agenthands/ftmresolve/internal/ftm"
)

// Aggregate accumulates the property values of every mention folded into
// one canonical entity.
type Aggregate struct {
	Schema string
	ID     string
	values map[string]*valueSet
}

func NewAggregate(schema, id string) *Aggregate {
	return &Aggregate{Schema: schema, ID: id, values: make(map[string]*valueSet)}
}

// Fold adds the values of one mention. Values equal by serialized form are
// kept once, in the form first seen; nulls and empty strings are ignored.
func (a *Aggregate) Fold(props ftm.Properties) {
	for name, vals := range props {
		set, ok := a.values[name]
		if !ok {
			set = newValueSet()
			a.values[name] = set
		}
		for _, v := range vals {
			set.add(v)
		}
	}
}

// Record materializes the aggregate, keeping only the properties the schema
// declares.
func (a *Aggregate) Record(reg *ftm.Registry) ftm.Record {
	rec := ftm.NewRecord(a.Schema, a.ID)
	schema, ok := reg.Get(a.Schema)
	if !ok {
		return rec
	}
	for name, set := range a.values {
		if _, ok := schema.Property(name); !ok || len(set.values) == 0 {
			continue
		}
		rec.Properties[name] = append([]ftm.Value(nil), set.values...)
	}
	return rec
}

type valueSet struct {
	seen   map[string]struct{}
	values []ftm.Value
}

func newValueSet() *valueSet {
	return &valueSet{seen: make(map[string]struct{})}
}

func (s *valueSet) add(v ftm.Value) {
	if v.IsNull() || (v.IsString() && v.Text() == "") {
		return
	}
	k := v.Key()
	if _, ok := s.seen[k]; ok {
		return
	}
	s.seen[k] = struct{}{}
	s.values = append(s.values, v)
}
