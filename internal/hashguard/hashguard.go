// Package hashguard computes and checks the automation hash that protects
// manual edits to mapping rows.
//
// Every time the reconciler writes a row it also stores a SHA-256 digest of
// the automated output fields. Before touching a row again it recomputes the
// digest from the row's current values: a mismatch means a human edited the
// row outside the reconciler, and the row must be left alone.
//
// The digest covers the canonical JSON encoding of an ordered field list.
// The field order per entity is frozen (see the entity packages); changing
// it would orphan every stored hash, so new fields may only be appended
// together with a version prefix bump.
package hashguard

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// hashVersionPrefix is prepended to stored digests. Empty for the v1 field
// sets; becomes "v2:" if a frozen field list ever has to grow.
const hashVersionPrefix = ""

// Field is one named automated output in its frozen position.
type Field struct {
	Name  string
	Value any
}

// Compute returns the hex SHA-256 of the canonical JSON object built from
// fields, in the given order. Nil values encode as JSON null so the digest
// is stable whether a column was never set or explicitly cleared.
func Compute(fields []Field) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := encodeValue(f.Name)
		if err != nil {
			return "", fmt.Errorf("encode field name %q: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := encodeValue(Canonicalize(f.Value))
		if err != nil {
			return "", fmt.Errorf("encode field %q: %w", f.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')

	sum := sha256.Sum256(buf.Bytes())
	return hashVersionPrefix + hex.EncodeToString(sum[:]), nil
}

// encodeValue marshals v without HTML escaping so the digest of text
// containing <, > or & does not depend on Go's default escaping.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder appends a newline.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Canonicalize normalizes values that the source database stores loosely
// before they are hashed. MySQL hands back booleans as 0/1 (sometimes as the
// strings "0"/"1"); hashing those verbatim would break transform idempotence
// the first time a driver or schema changes representation.
func Canonicalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *bool:
		if t == nil {
			return nil
		}
		return *t
	case *string:
		if t == nil {
			return nil
		}
		return *t
	case *int:
		if t == nil {
			return nil
		}
		return int64(*t)
	case *int64:
		if t == nil {
			return nil
		}
		return *t
	case *float64:
		if t == nil {
			return nil
		}
		return *t
	case int:
		return int64(t)
	case int64, float64, bool, string:
		return t
	default:
		return v
	}
}

// Bool converts a loosely-typed database value to a bool, accepting the
// 0/1 and "0"/"1" shapes MySQL produces. Unrecognized values map to false.
func Bool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t == "1" || strings.EqualFold(t, "true")
	default:
		return false
	}
}

// IsManualOverride reports whether a stored hash marks the row as manually
// edited: it must be present, well-formed, and differ from currentHash.
// A malformed stored value is treated as "never hashed", not as an override,
// so a half-migrated database does not freeze every row.
func IsManualOverride(storedHash, currentHash string) bool {
	if !wellFormed(storedHash) {
		return false
	}
	return storedHash != currentHash
}

func wellFormed(h string) bool {
	h = strings.TrimPrefix(h, "v2:")
	if len(h) != 64 {
		return false
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
