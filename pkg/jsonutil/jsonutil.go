package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize re-encodes a JSON document into its stable form: object
// keys sorted lexicographically, array order preserved, and null-valued
// object members dropped so that an absent key and an explicit null
// compare equal. Numbers pass through verbatim.
func Canonicalize(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalizeValue marshals v and canonicalizes the result
func CanonicalizeValue(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return Canonicalize(data)
}

// Equal reports whether a and b are byte-equal after canonicalization
func Equal(a, b any) (bool, error) {
	ca, err := CanonicalizeValue(a)
	if err != nil {
		return false, err
	}
	cb, err := CanonicalizeValue(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}

// EqualBytes reports whether two JSON documents are byte-equal after
// canonicalization
func EqualBytes(a, b []byte) (bool, error) {
	ca, err := Canonicalize(a)
	if err != nil {
		return false, err
	}
	cb, err := Canonicalize(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}

func writeCanonical(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")

	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			// Absent and null are the same thing
			if v[k] == nil {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("failed to encode key: %w", err)
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := writeCanonical(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	case []any:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	case json.Number:
		buf.WriteString(v.String())

	case string:
		strJSON, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode string: %w", err)
		}
		buf.Write(strJSON)

	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}

	default:
		return fmt.Errorf("unexpected JSON value of type %T", value)
	}

	return nil
}
