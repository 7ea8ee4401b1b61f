package ftm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Value is a single property value kept in the JSON encoding it was read
// with, so passthrough records keep their original textual form.
type Value json.RawMessage

// String builds a Value holding a JSON string.
func String(s string) Value {
	b, err := marshalCompact(s)
	if err != nil {
		return Value(`""`)
	}
	return Value(b)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return v, nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	*v = append((*v)[:0], b...)
	return nil
}

// IsString reports whether the value is a JSON string.
func (v Value) IsString() bool {
	b := bytes.TrimSpace(v)
	return len(b) > 0 && b[0] == '"'
}

// IsNull reports whether the value is JSON null or empty.
func (v Value) IsNull() bool {
	b := bytes.TrimSpace(v)
	return len(b) == 0 || string(b) == "null"
}

// Text coerces the value to a string: JSON strings are unquoted, anything
// else is returned as its raw JSON text.
func (v Value) Text() string {
	if v.IsString() {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	}
	return strings.TrimSpace(string(v))
}

// Key returns a canonical serialization of the value. Two values are
// considered equal when their keys match, whatever their original spacing or
// escaping.
func (v Value) Key() string {
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return string(v)
	}
	b, err := marshalCompact(x)
	if err != nil {
		return string(v)
	}
	return string(b)
}

// marshalCompact encodes v without HTML escaping and without the trailing
// newline json.Encoder appends.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
