// Package canon implements the deterministic serialization and content
// hashing used throughout civicrun: ledger event hashes, derived entity ids,
// and the signature payload for signed blueprint envelopes all flow through
// the same canonical encoder so that two semantically identical values always
// hash to the same digest regardless of field order or platform.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// Marshal renders v as canonical bytes: object keys sorted lexicographically
// at every depth, arrays left in their original order, strings JSON-escaped,
// numbers rendered without redundant zeros, and booleans/null as literals.
// v is first passed through encoding/json so ordinary Go structs with json
// tags work as input, then re-walked into the canonical form.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal input: %w", err)
	}
	return MarshalJSON(raw)
}

// MarshalJSON canonicalizes an already-encoded JSON document.
func MarshalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canon: decode json: %w", err)
	}
	var buf bytes.Buffer
	if err := encode(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalMap canonicalizes a generic map/slice/scalar tree directly, without
// an intermediate JSON round trip. Useful when the caller has already
// decoded an envelope into map[string]any and wants to strip or mutate a
// field (e.g. auth.signature) before hashing.
func MarshalMap(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		norm, err := normalizeNumber(string(val))
		if err != nil {
			return err
		}
		buf.WriteString(norm)
	case string:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("canon: encode string: %w", err)
		}
		buf.Write(encoded)
	case float64:
		norm, err := normalizeNumber(formatFloat(val))
		if err != nil {
			return err
		}
		buf.WriteString(norm)
	case int, int32, int64, uint, uint32, uint64:
		fmt.Fprintf(buf, "%d", val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodedKey, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("canon: encode key: %w", err)
			}
			buf.Write(encodedKey)
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canon: unsupported type %T", v)
	}
	return nil
}

func formatFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", f), "0"), ".")
}

// normalizeNumber strips a leading '+', collapses redundant leading zeros,
// and trims trailing fractional zeros (and a trailing decimal point) so that
// "1.50", "1.5", and "+1.5" all canonicalize identically.
func normalizeNumber(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("canon: empty number")
	}
	neg := false
	if strings.HasPrefix(s, "+") {
		s = s[1:]
	} else if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	if hasFrac {
		fracPart = strings.TrimRight(fracPart, "0")
	}
	// validate it is actually numeric
	check := intPart
	if hasFrac {
		check += "." + fracPart
	}
	if _, ok := new(big.Float).SetString(check); !ok {
		return "", fmt.Errorf("canon: invalid number %q", s)
	}
	out := intPart
	if hasFrac && fracPart != "" {
		out += "." + fracPart
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out, nil
}

// Hash returns the lowercase hex SHA-256 digest of the canonical bytes.
func Hash(canonicalBytes []byte) string {
	sum := sha256.Sum256(canonicalBytes)
	return hex.EncodeToString(sum[:])
}

// HashValue canonicalizes v and returns its lowercase hex SHA-256 digest in
// one step.
func HashValue(v any) (string, error) {
	bz, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return Hash(bz), nil
}
