package linking

import (
	"strings"

	"github.com/agenthands/ftmresolve/internal/ftm"
)

// normalizePerson splits a name into first and last name when neither is
// given: the last token is the family name, anything before it the given
// name.
func normalizePerson(props ftm.Properties) {
	name := strings.TrimSpace(props.FirstText("name"))
	if name == "" {
		return
	}
	if props.Has("firstName") || props.Has("lastName") {
		return
	}
	parts := strings.Fields(name)
	if len(parts) == 1 {
		props["lastName"] = []ftm.Value{ftm.String(parts[0])}
		return
	}
	props["firstName"] = []ftm.Value{ftm.String(strings.Join(parts[:len(parts)-1], " "))}
	props["lastName"] = []ftm.Value{ftm.String(parts[len(parts)-1])}
}

// normalizeAddress fills full from name and name from full.
func normalizeAddress(props ftm.Properties) {
	full := strings.TrimSpace(props.FirstText("full"))
	name := strings.TrimSpace(props.FirstText("name"))
	if full == "" && name != "" {
		props["full"] = []ftm.Value{ftm.String(name)}
	}
	if name == "" && full != "" {
		props["name"] = []ftm.Value{ftm.String(full)}
	}
}
