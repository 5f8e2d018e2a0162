// Package render turns (document type, payload) pairs into printer command
// streams. Payloads arrive as loosely-typed JSON from the browser; renderers
// read the fields they know about and ignore the rest.
package render

import (
	"encoding/json"
	"fmt"
)

// Payload is the decoded "data" object of a print command.
type Payload map[string]any

// DecodePayload decodes the raw data field of a print command. A missing or
// null payload decodes to an empty map.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return Payload{}, nil
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding print payload: %w", err)
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

// Str returns the string value for key, or "" when absent or another type.
func (p Payload) Str(key string) string {
	s, _ := p[key].(string)
	return s
}

// Num returns the numeric value for key and whether it was present. JSON
// numbers decode as float64; integer-typed values are accepted too.
func (p Payload) Num(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Items returns the list of item objects for key.
func (p Payload) Items(key string) []Payload {
	raw, _ := p[key].([]any)
	items := make([]Payload, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			items = append(items, Payload(m))
		}
	}
	return items
}

// Money formats an amount the way receipts expect: two decimals.
func Money(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}
