// Package stablejson produces a canonical, deterministic JSON encoding of
// arbitrary values: object keys sorted recursively, no insignificant
// whitespace, NaN/Infinity rejected. Two logically equal values always
// serialize to the same bytes, which is what the content-addressed
// snapshotter and the commit-reveal hash check both need before taking a
// SHA-256 digest.
package stablejson

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Marshal returns the canonical JSON encoding of v. v is first round-tripped
// through encoding/json so structs, maps with non-string-keyed generics, and
// json.Marshaler implementations all normalize to the same generic shape
// before canonicalization.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("stablejson: marshal input: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("stablejson: normalize input: %w", err)
	}

	var b strings.Builder
	if err := write(&b, generic); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// MustMarshal is Marshal but panics on error; for call sites that have
// already validated v (e.g. values built internally, not user input).
func MustMarshal(v interface{}) []byte {
	out, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return out
}

func write(b *strings.Builder, v interface{}) error {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("stablejson: NaN/Infinity is not representable")
		}
		enc, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("stablejson: encode number: %w", err)
		}
		b.Write(enc)
	case string:
		enc, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("stablejson: encode string: %w", err)
		}
		b.Write(enc)
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kj, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("stablejson: encode key: %w", err)
			}
			b.Write(kj)
			b.WriteByte(':')
			if err := write(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := write(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	default:
		return fmt.Errorf("stablejson: unsupported type %T after normalization", val)
	}
	return nil
}
