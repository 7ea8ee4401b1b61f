package ftm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedRecord = errors.New("malformed record")

// Properties maps a property name to its ordered values. On the wire a
// property may be a scalar or a list; it is always a list in memory.
type Properties map[string][]Value

func (p *Properties) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Properties, len(raw))
	for name, r := range raw {
		if vals := decodeValues(r); len(vals) > 0 {
			out[name] = vals
		}
	}
	*p = out
	return nil
}

func decodeValues(r json.RawMessage) []Value {
	r = bytes.TrimSpace(r)
	if len(r) == 0 || string(r) == "null" {
		return nil
	}
	if r[0] != '[' {
		return []Value{Value(bytes.Clone(r))}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(r, &items); err != nil {
		return nil
	}
	vals := make([]Value, 0, len(items))
	for _, item := range items {
		v := Value(bytes.Clone(item))
		if v.IsNull() {
			continue
		}
		vals = append(vals, v)
	}
	return vals
}

// First returns the first value of a property.
func (p Properties) First(name string) (Value, bool) {
	vals := p[name]
	if len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

// FirstText returns the first value of a property as text, or "".
func (p Properties) FirstText(name string) string {
	v, ok := p.First(name)
	if !ok {
		return ""
	}
	return v.Text()
}

// Has reports whether the property has a non-empty first value.
func (p Properties) Has(name string) bool {
	return p.FirstText(name) != ""
}

// Add appends values that are not already present on the property.
func (p Properties) Add(name string, vals ...Value) {
	existing := p[name]
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v.Key()] = struct{}{}
	}
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		k := v.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		existing = append(existing, v)
	}
	if len(existing) > 0 {
		p[name] = existing
	}
}

// Clone returns a copy that can be modified without touching p.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for name, vals := range p {
		out[name] = append([]Value(nil), vals...)
	}
	return out
}

// Record is the wire unit of every stream: one entity with its schema and
// properties. Unknown top-level fields are carried in Extra so that records
// passing through a stage are re-emitted with them.
type Record struct {
	ID         string
	Schema     string
	Properties Properties
	Extra      map[string]json.RawMessage
}

// NewRecord returns an empty record of the given schema.
func NewRecord(schema, id string) Record {
	return Record{ID: id, Schema: schema, Properties: Properties{}}
}

// DecodeRecord parses one NDJSON line. It fails with ErrMalformedRecord when
// the line is not an object, id or schema are missing, or properties is not
// an object.
func DecodeRecord(line []byte) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if fields == nil {
		return Record{}, fmt.Errorf("%w: not an object", ErrMalformedRecord)
	}

	var rec Record
	if err := decodeString(fields["id"], &rec.ID); err != nil || rec.ID == "" {
		return Record{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	if err := decodeString(fields["schema"], &rec.Schema); err != nil || rec.Schema == "" {
		return Record{}, fmt.Errorf("%w: missing schema", ErrMalformedRecord)
	}
	rec.Properties = Properties{}
	if raw, ok := fields["properties"]; ok && string(bytes.TrimSpace(raw)) != "null" {
		if err := json.Unmarshal(raw, &rec.Properties); err != nil {
			return Record{}, fmt.Errorf("%w: properties: %v", ErrMalformedRecord, err)
		}
	}

	delete(fields, "id")
	delete(fields, "schema")
	delete(fields, "properties")
	if len(fields) > 0 {
		rec.Extra = fields
	}
	return rec, nil
}

func decodeString(raw json.RawMessage, dst *string) error {
	if raw == nil {
		return errors.New("absent")
	}
	return json.Unmarshal(raw, dst)
}

// MarshalJSON encodes the record with sorted keys; Extra fields never shadow
// id, schema or properties.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}
	props := r.Properties
	if props == nil {
		props = Properties{}
	}
	out["id"] = r.ID
	out["schema"] = r.Schema
	out["properties"] = props
	return marshalCompact(out)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	rec, err := DecodeRecord(b)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// Encode returns the single-line JSON form of the record.
func (r Record) Encode() ([]byte, error) {
	return r.MarshalJSON()
}
