// Package querykey builds hierarchical cache keys.
//
// A Key is an ordered token sequence: namespace first, then entity,
// qualifier and parameters. Keys built from the same logical inputs are
// identical, and every key under a namespace has that namespace key as a
// prefix, so a cache can be invalidated in bulk by prefix.
package querykey

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
)

const (
	markerList   = "list"
	markerDetail = "detail"
	separator    = ":"
)

// Key is an ordered sequence of tokens.
type Key []string

// Append returns a new key with tokens added; k is not modified.
func (k Key) Append(tokens ...string) Key {
	out := make(Key, 0, len(k)+len(tokens))
	out = append(out, k...)
	return append(out, tokens...)
}

// Scope prefixes the key with an owner, so per-user entries never collide.
func (k Key) Scope(userID string) Key {
	return Key{"user", userID}.Append(k...)
}

// String renders the key as a redis-safe string. Tokens are query-escaped,
// so the separator and glob characters never appear inside a token.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, t := range k {
		parts[i] = url.QueryEscape(t)
	}
	return strings.Join(parts, separator)
}

// Equal reports whether both keys have the same tokens.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// Param encodes query parameters as a single canonical token: JSON with
// object keys sorted at every level. Structs and maps with the same
// content encode identically. A nil value yields "".
func Param(v any) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return string(raw)
	}
	// encoding/json sorts map keys, so re-encoding the generic form is canonical.
	canon, err := json.Marshal(generic)
	if err != nil {
		return string(raw)
	}
	return string(canon)
}

func withParams(k Key, params any) Key {
	if p := Param(params); p != "" && p != "null" {
		return k.Append(p)
	}
	return k
}

// BaseKey truncates k after its first list or detail marker (inclusive).
// Keys without a marker are returned unchanged.
func BaseKey(k Key) Key {
	for i, t := range k {
		if t == markerList || t == markerDetail {
			return append(Key(nil), k[:i+1]...)
		}
	}
	return append(Key(nil), k...)
}

// Matches reports whether pattern is a prefix of key.
func Matches(key, pattern Key) bool {
	if len(pattern) > len(key) {
		return false
	}
	for i := range pattern {
		if key[i] != pattern[i] {
			return false
		}
	}
	return true
}

// TableName extracts the table of a tables-namespace key.
func TableName(k Key) (string, bool) {
	k = unscope(k)
	if len(k) < 2 || k[0] != nsTables {
		return "", false
	}
	return k[1], true
}

// ID extracts the identifier following the detail marker.
func ID(k Key) (string, bool) {
	for i, t := range k {
		if t == markerDetail && i+1 < len(k) {
			return k[i+1], true
		}
	}
	return "", false
}

func unscope(k Key) Key {
	if len(k) >= 2 && k[0] == "user" {
		return k[2:]
	}
	return k
}
