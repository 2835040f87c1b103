package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// StableHash returns the lowercase hex SHA-256 of the stable stringification
// of v: object keys sorted, arrays in source order, primitives JSON-encoded.
// This is the agent/server interoperability contract for inventory change
// detection, so the encoding must never drift between the two sides.
func StableHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse value: %w", err)
	}

	canonical, err := canonicalJSON(parsed)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON renders a decoded JSON value deterministically.
func canonicalJSON(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil

	case bool, float64, string, json.Number:
		encoded, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("encode primitive: %w", err)
		}
		return string(encoded), nil

	case []any:
		elements := make([]string, len(val))
		for i, elem := range val {
			canonical, err := canonicalJSON(elem)
			if err != nil {
				return "", err
			}
			elements[i] = canonical
		}
		return "[" + strings.Join(elements, ",") + "]", nil

	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, len(keys))
		for i, k := range keys {
			encodedKey, err := json.Marshal(k)
			if err != nil {
				return "", fmt.Errorf("encode key: %w", err)
			}
			canonical, err := canonicalJSON(val[k])
			if err != nil {
				return "", err
			}
			pairs[i] = string(encodedKey) + ":" + canonical
		}
		return "{" + strings.Join(pairs, ",") + "}", nil

	default:
		return "", fmt.Errorf("unsupported JSON type %T", v)
	}
}
