package identity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agenthands/ftmresolve/internal/ftm"
	"golang.org/x/text/cases"
)

// KeyPolicy lists, per mergeable schema, the properties tried in order to
// derive the natural key of a record.
type KeyPolicy map[string][]string

var defaultCandidates = KeyPolicy{
	"Person":      {"name"},
	"Company":     {"name"},
	"Address":     {"full", "name"},
	"Email":       {"email", "name"},
	"BankAccount": {"iban", "accountNumber", "name"},
	"Vehicle":     {"registrationNumber", "vin", "name"},
	"Vessel":      {"imoNumber", "mmsi", "name"},
	"Airplane":    {"registrationNumber", "tailNumber", "name"},
}

// DefaultKeyPolicy returns a copy of the built-in policy.
func DefaultKeyPolicy() KeyPolicy {
	out := make(KeyPolicy, len(defaultCandidates))
	for schema, props := range defaultCandidates {
		out[schema] = append([]string(nil), props...)
	}
	return out
}

// NewKeyPolicy restricts the built-in policy to the given schemata. An empty
// list keeps the full policy.
func NewKeyPolicy(schemata []string) (KeyPolicy, error) {
	if len(schemata) == 0 {
		return DefaultKeyPolicy(), nil
	}
	out := make(KeyPolicy, len(schemata))
	for _, schema := range schemata {
		props, ok := defaultCandidates[schema]
		if !ok {
			return nil, fmt.Errorf("no key policy for schema %q", schema)
		}
		out[schema] = append([]string(nil), props...)
	}
	return out, nil
}

// Mergeable reports whether records of the schema are merge candidates.
func (p KeyPolicy) Mergeable(schema string) bool {
	_, ok := p[schema]
	return ok
}

// Schemata lists the mergeable schemata in sorted order.
func (p KeyPolicy) Schemata() []string {
	out := make([]string, 0, len(p))
	for schema := range p {
		out = append(out, schema)
	}
	sort.Strings(out)
	return out
}

// Key derives the normalized natural key of a record. It returns "" when
// the schema is not mergeable or no candidate property yields text.
//
// Null and empty-string values are skipped, as merged records never carry
// them. The first remaining value decides: a value that normalizes to
// nothing does not fall through to the next candidate.
func (p KeyPolicy) Key(schema string, props ftm.Properties) string {
	for _, name := range p[schema] {
		for _, v := range props[name] {
			if v.IsNull() || (v.IsString() && v.Text() == "") {
				continue
			}
			return Normalize(v.Text())
		}
	}
	return ""
}

// Normalize collapses whitespace runs, trims and case-folds s.
func Normalize(s string) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	if collapsed == "" {
		return ""
	}
	return cases.Fold().String(collapsed)
}
