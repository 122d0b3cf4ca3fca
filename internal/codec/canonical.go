// Package codec implements deterministic JSON canonicalization for signing
// and verification. Canonical bytes are invariant under key reordering and
// semantically-equivalent number formatting: two inputs that decode to the
// same value always canonicalize to the same bytes.
package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Canonical returns the canonical byte encoding of v. v may be a
// json.RawMessage, []byte or string (each treated as JSON text, not as a
// value to marshal), or any other value json.Marshal accepts.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := toRawMessage(v)
	if err != nil {
		return nil, err
	}

	decoded, err := decode(raw)
	if err != nil {
		return nil, err
	}

	var buf strings.Builder
	if err := encode(&buf, decoded); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// CanonicalWithoutField re-encodes v after removing the named top-level
// field (used to strip "signature" before signing/verifying a payload).
func CanonicalWithoutField(v interface{}, field string) ([]byte, error) {
	raw, err := toRawMessage(v)
	if err != nil {
		return nil, err
	}
	decoded, err := decode(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("codec: CanonicalWithoutField requires a JSON object, got %T", decoded)
	}
	delete(obj, field)

	var buf strings.Builder
	if err := encode(&buf, obj); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func toRawMessage(v interface{}) (json.RawMessage, error) {
	switch t := v.(type) {
	case json.RawMessage:
		return t, nil
	case []byte:
		return json.RawMessage(t), nil
	case string:
		return json.RawMessage(t), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(b), nil
	}
}

// decode parses raw JSON into plain Go values (map[string]interface{},
// []interface{}, json.Number, string, bool, nil) preserving numeric
// precision via json.Number rather than float64.
func decode(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("codec: invalid JSON: %w", err)
	}
	return v, nil
}

func encode(buf *strings.Builder, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		return encodeNumber(buf, t)
	case string:
		encodeString(buf, t)
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, k)
			buf.WriteByte(':')
			if err := encode(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("codec: unsupported type %T", v)
	}
	return nil
}

// encodeNumber emits the shortest round-trip representation: integers
// without a decimal point, floats without trailing zeros.
func encodeNumber(buf *strings.Builder, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("codec: invalid number %q: %w", n.String(), err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("codec: number %q is not finite", n.String())
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// encodeString applies minimal JSON escaping: the control characters JSON
// requires escaped, plus '"' and '\\'. Everything else — including non-ASCII
// UTF-8 — passes through unescaped.
func encodeString(buf *strings.Builder, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
