package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// ContentHash computes the stable SHA-256 fingerprint of a reported
// payload: sha256 over a canonical JSON encoding where every object's
// keys are recursively sorted. encoding/json already emits map keys in
// sorted order and prints the shortest round-trip float representation,
// so canonicalization only needs recursive decode-then-reencode through
// plain Go values (map[string]any / []any / float64 / string / bool / nil).
func ContentHash(reported json.RawMessage) (string, error) {
	var v any
	if len(reported) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(reported, &v); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(canonicalize(v))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize recursively walks a decoded JSON value. It exists mostly
// for documentation: Go's map iteration order is randomized but
// json.Marshal always sorts map[string]any keys before emitting them,
// so no explicit sort is required here beyond recursing into children.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = canonicalize(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return t
	}
}
