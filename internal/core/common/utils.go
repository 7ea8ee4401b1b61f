package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoJSONArray = errors.New("no JSON array found in response")

// ExtractJSONArray returns the JSON array embedded in an LLM response. The
// whole response is used when it is already an array; otherwise the span
// from the first '[' to the last ']' is taken, which also strips markdown
// fences and surrounding prose.
func ExtractJSONArray(response string) (string, error) {
	text := strings.TrimSpace(response)
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return text, nil
	}

	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSONArray
	}
	return text[start : end+1], nil
}

// ParseJSONArray cleans an LLM response and unmarshals the array elements
// into T one by one. Elements that do not decode are skipped; the count of
// skipped elements is returned alongside.
func ParseJSONArray[T any](response string) ([]T, int, error) {
	jsonStr, err := ExtractJSONArray(response)
	if err != nil {
		return nil, 0, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal JSON array: %w", err)
	}

	out := make([]T, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			skipped++
			continue
		}
		out = append(out, item)
	}
	return out, skipped, nil
}
