package identity

import (
	"testing"

	"github.com/agenthands/ftmresolve/internal/ftm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalID_KnownVectors(t *testing.T) {
	assert.Equal(t, "canon-9d9d06af14d15d0bc8c9be72419d14807036406b", CanonicalID("Person", "hickens"))
	assert.Equal(t, "canon-60f4b8b9173895eeee0cd6e9dc8aded6f30cdfe5", CanonicalID("Company", "fedex"))
}

func TestMentionID_KnownVector(t *testing.T) {
	assert.Equal(t, "ment-c9035fdeb1dbbc27509e03d56875b5feab60712e", MentionID("img-1", "Person", "hickens"))
}

func TestIDs_AreDeterministic(t *testing.T) {
	assert.Equal(t, CanonicalID("Address", "1 main st"), CanonicalID("Address", "1 main st"))
	assert.NotEqual(t, CanonicalID("Person", "x"), CanonicalID("Company", "x"))
	assert.NotEqual(t, MentionID("doc-1", "Person", "x"), MentionID("doc-2", "Person", "x"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "john smith", Normalize("  John \t  SMITH\n"))
	assert.Equal(t, "strasse", Normalize("STRASSE"))
	assert.Equal(t, "", Normalize(" \t "))
}

func TestKeyPolicy_Key(t *testing.T) {
	p := DefaultKeyPolicy()

	tests := []struct {
		name   string
		schema string
		props  ftm.Properties
		want   string
	}{
		{
			name:   "person name",
			schema: "Person",
			props:  ftm.Properties{"name": {ftm.String("  Hickens ")}},
			want:   "hickens",
		},
		{
			name:   "address falls back to name",
			schema: "Address",
			props:  ftm.Properties{"name": {ftm.String("1 Main St")}},
			want:   "1 main st",
		},
		{
			name:   "address prefers full",
			schema: "Address",
			props:  ftm.Properties{"full": {ftm.String("1 Main St, Springfield")}, "name": {ftm.String("Home")}},
			want:   "1 main st, springfield",
		},
		{
			name:   "empty string falls through",
			schema: "BankAccount",
			props:  ftm.Properties{"iban": {ftm.String("")}, "accountNumber": {ftm.String("12 34")}},
			want:   "12 34",
		},
		{
			name:   "empty list element is skipped",
			schema: "BankAccount",
			props:  ftm.Properties{"iban": {ftm.String(""), ftm.String("DE1")}, "accountNumber": {ftm.String("123")}},
			want:   "de1",
		},
		{
			name:   "first list element wins",
			schema: "Vessel",
			props:  ftm.Properties{"imoNumber": {ftm.String("IMO 1"), ftm.String("IMO 2")}},
			want:   "imo 1",
		},
		{
			name:   "whitespace only yields no key",
			schema: "Company",
			props:  ftm.Properties{"name": {ftm.String("   ")}},
			want:   "",
		},
		{
			name:   "non mergeable schema",
			schema: "Event",
			props:  ftm.Properties{"name": {ftm.String("Meeting")}},
			want:   "",
		},
		{
			name:   "numeric value is coerced",
			schema: "Vehicle",
			props:  ftm.Properties{"vin": {ftm.Value("12345")}},
			want:   "12345",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Key(tt.schema, tt.props))
		})
	}
}

func TestNewKeyPolicy(t *testing.T) {
	p, err := NewKeyPolicy([]string{"Person", "Company"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Company", "Person"}, p.Schemata())
	assert.False(t, p.Mergeable("Address"))

	_, err = NewKeyPolicy([]string{"Event"})
	assert.Error(t, err)

	all, err := NewKeyPolicy(nil)
	require.NoError(t, err)
	assert.Len(t, all, 8)
}
