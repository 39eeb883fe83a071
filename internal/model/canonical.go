package model

import (
	"bytes"
	"encoding/json"
	"sort"
)

// CanonicalEqual reports whether a and b, both arbitrary JSON-marshalable
// values, are equal under the "stable-ordered JSON equality" spec §9
// defines: keys sorted lexicographically, array order preserved, absent
// treated as null. Equality is byte equality after canonicalization.
//
// No library in the retrieved example pack demonstrates a JSON
// canonicalization scheme in live code (one only appears several hops deep
// in an unrelated repo's transitive dependency closure), so this is a
// deliberate standard-library implementation: encoding/json plus a
// recursive key sort, not an adopted third-party canonicalizer.
func CanonicalEqual(a, b interface{}) (bool, error) {
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

// Canonicalize renders v as JSON with map keys sorted lexicographically at
// every nesting level and array order preserved.
func Canonicalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k, elem := range val {
			// A null-valued key is left out, so it canonicalizes the
			// same as an absent one.
			if elem == nil {
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
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case nil:
		buf.WriteString("null")
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
