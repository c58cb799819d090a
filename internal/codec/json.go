// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeValues parses a JSON object into a Values tree. Plain
// json.Unmarshal into map[string]any yields float64 scalars and
// map[string]any/[]any nested structures, which fail the .(int64) and
// .(Values)/.([]Values) type assertions Pack, the admit-set gate, and the
// dedup key all rely on; DecodeValues normalizes json.Number into int64
// and recursively retypes nested objects/arrays so the result is usable
// anywhere a codec.Values built in-process is.
func DecodeValues(data []byte) (Values, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("codec: decode values: %w", err)
	}
	return normalizeValues(raw), nil
}

func normalizeValues(raw map[string]any) Values {
	out := make(Values, len(raw))
	for k, v := range raw {
		out[k] = normalize(v)
	}
	return out
}

// normalize converts one decoded JSON value: json.Number to int64 (or
// float64 if it doesn't fit), nested objects to Values, and a JSON array
// of objects to []Values (the shape Pack/Unpack expect for "sections").
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		return normalizeValues(t)
	case []any:
		elems := make([]Values, 0, len(t))
		for _, e := range t {
			m, ok := e.(map[string]any)
			if !ok {
				return t
			}
			elems = append(elems, normalizeValues(m))
		}
		return elems
	default:
		return v
	}
}
