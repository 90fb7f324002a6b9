// Package header implements the ordered, case-insensitive multimap the
// core uses for both request and response headers, including the reserved
// ":"-prefixed pseudo-keys HTTP/2 needs (:method, :path, :scheme,
// :authority, :status, :body, :phrase, :query).
package header

import "strings"

// Pseudo-key constants, reserved for the values HTTP/2 pseudo-headers carry.
const (
	Method    = ":method"
	Path      = ":path"
	Scheme    = ":scheme"
	Authority = ":authority"
	Status    = ":status"
	Body      = ":body"
	Phrase    = ":phrase"
	Query     = ":query"
)

// IsPseudo reports whether k starts with ':', the prefix of every reserved
// pseudo-header key; it does not check k against the list above.
func IsPseudo(k string) bool { return len(k) > 0 && k[0] == ':' }

type field struct {
	key   string // as emitted, original case preserved
	value string
}

// Map is an ordered, case-insensitive multimap from field name to value.
// The zero value is ready to use.
type Map struct {
	fields []field
}

// New builds a Map from alternating key/value pairs, for convenience in
// tests and call sites that build a handful of headers inline.
func New(kv ...string) *Map {
	m := &Map{}
	for i := 0; i+1 < len(kv); i += 2 {
		m.Add(kv[i], kv[i+1])
	}
	return m
}

func norm(k string) string { return strings.ToLower(k) }

// hasCRLF reports whether s contains a bare CR or LF, which is never legal
// in a header key or value.
func hasCRLF(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}

// Add appends a new key/value pair, preserving any existing occurrences of
// the same key. Returns false (and does not add the field) if key or value
// contains CR or LF — such a field is silently dropped on send.
func (m *Map) Add(key, value string) bool {
	if hasCRLF(key) || hasCRLF(value) {
		return false
	}
	m.fields = append(m.fields, field{key, value})
	return true
}

// Set removes all existing occurrences of key and adds a single one with
// value.
func (m *Map) Set(key, value string) bool {
	m.Del(key)
	return m.Add(key, value)
}

// Del removes every occurrence of key.
func (m *Map) Del(key string) {
	nk := norm(key)
	out := m.fields[:0]
	for _, f := range m.fields {
		if norm(f.key) != nk {
			out = append(out, f)
		}
	}
	m.fields = out
}

// Get returns the first value for key, case-insensitively, or "" if absent.
func (m *Map) Get(key string) string {
	nk := norm(key)
	for _, f := range m.fields {
		if norm(f.key) == nk {
			return f.value
		}
	}
	return ""
}

// Values returns every value for key in insertion order.
func (m *Map) Values(key string) []string {
	nk := norm(key)
	var out []string
	for _, f := range m.fields {
		if norm(f.key) == nk {
			out = append(out, f.value)
		}
	}
	return out
}

// Has reports whether key has at least one value.
func (m *Map) Has(key string) bool {
	nk := norm(key)
	for _, f := range m.fields {
		if norm(f.key) == nk {
			return true
		}
	}
	return false
}

// Range visits every field in insertion order, pseudo-headers included.
func (m *Map) Range(f func(key, value string)) {
	for _, fl := range m.fields {
		f(fl.key, fl.value)
	}
}

// Len returns the number of key/value pairs, counting repeats.
func (m *Map) Len() int { return len(m.fields) }

// Clone returns a deep copy safe to mutate independently.
func (m *Map) Clone() *Map {
	if m == nil {
		return &Map{}
	}
	c := &Map{fields: make([]field, len(m.fields))}
	copy(c.fields, m.fields)
	return c
}

// StripHopByHop removes host/:authority and content-length, which the
// framework sets exactly once itself — any caller-supplied
// copies are removed before the framework's own value is added.
func (m *Map) StripHopByHop() {
	m.Del("host")
	m.Del(Authority)
	m.Del("content-length")
}
