package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParamMap is an order-preserving string-keyed JSON object, used for
// ToolUseBlock.Parameters. Go's map[string]any loses insertion order on
// marshal; ParamMap keeps declaration order for both directions so a tool
// call's argument layout survives a normalize -> persist -> reload round
// trip unchanged.
type ParamMap struct {
	keys   []string
	values map[string]any
}

// NewParamMap builds a ParamMap from an ordered list of key/value pairs.
func NewParamMap(pairs ...Pair) ParamMap {
	pm := ParamMap{values: make(map[string]any, len(pairs))}
	for _, p := range pairs {
		pm.Set(p.Key, p.Value)
	}
	return pm
}

// Pair is a single key/value entry used to build a ParamMap in order.
type Pair struct {
	Key   string
	Value any
}

// ParamMapFromUnordered builds a ParamMap from a plain Go map. Key order in
// the result is unspecified beyond "some order" since map[string]any does
// not remember one; prefer NewParamMap or decoding from JSON when order
// matters (e.g. comparing against a provider-issued payload for display).
func ParamMapFromUnordered(m map[string]any) ParamMap {
	pm := ParamMap{values: make(map[string]any, len(m))}
	for k, v := range m {
		pm.Set(k, v)
	}
	return pm
}

// Set inserts or updates key, appending it to the end of the key order if
// new.
func (p *ParamMap) Set(key string, value any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value for key and whether it was present.
func (p ParamMap) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Len returns the number of keys.
func (p ParamMap) Len() int { return len(p.keys) }

// Keys returns the keys in declaration order. The returned slice must not be
// mutated by callers.
func (p ParamMap) Keys() []string { return p.keys }

// Range calls fn for each key in declaration order.
func (p ParamMap) Range(fn func(key string, value any)) {
	for _, k := range p.keys {
		fn(k, p.values[k])
	}
}

// MarshalJSON encodes the map preserving key order, unlike encoding/json's
// default map handling which sorts keys lexically.
func (p ParamMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal parammap key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal parammap value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into a ParamMap, preserving the order
// the keys appear in the source document. data must decode to a plain JSON
// object; arrays, scalars, and null are rejected.
func (p *ParamMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("parammap: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return fmt.Errorf("parammap: expected JSON object, got %v", tok)
	}

	out := ParamMap{values: make(map[string]any)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("parammap: reading key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("parammap: object key is not a string: %v", keyTok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("parammap: decoding value for key %q: %w", key, err)
		}
		out.Set(key, normalizeJSONNumber(val))
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("parammap: closing object: %w", err)
	}
	*p = out
	return nil
}

// normalizeJSONNumber recursively converts json.Number leaves (produced by
// decoding with UseNumber) into int64 when the literal is an integer that
// fits, and float64 otherwise. The standard json.Unmarshal path yields
// float64 for every number; StableDeepEqual treats an int64 and a float64 of
// the same value as equal, so comparisons agree across both decode paths.
func normalizeJSONNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, vv := range t {
			t[k] = normalizeJSONNumber(vv)
		}
		return t
	case []any:
		for i, vv := range t {
			t[i] = normalizeJSONNumber(vv)
		}
		return t
	default:
		return v
	}
}

// AsMap returns a shallow copy of the parameters as a plain Go map, for
// callers (e.g. provider adapters) that only need value access, not order.
func (p ParamMap) AsMap() map[string]any {
	out := make(map[string]any, len(p.keys))
	for _, k := range p.keys {
		out[k] = p.values[k]
	}
	return out
}
