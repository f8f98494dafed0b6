// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package slug derives URL-safe identifiers for cafes of the form
// name-street-city and keeps them unique across a run.
package slug

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Registry is the set of slugs issued so far in a run. It is passed
// explicitly to Propose; a zero Registry is not usable, call NewRegistry.
type Registry struct {
	seen map[string]struct{}
}

// NewRegistry returns an empty registry seeded with the given slugs.
func NewRegistry(existing ...string) *Registry {
	r := &Registry{seen: make(map[string]struct{}, len(existing))}
	for _, s := range existing {
		r.Add(s)
	}
	return r
}

// Add records s as taken.
func (r *Registry) Add(s string) {
	r.seen[s] = struct{}{}
}

// Contains reports whether s was already issued.
func (r *Registry) Contains(s string) bool {
	_, ok := r.seen[s]
	return ok
}

// Len returns the number of issued slugs.
func (r *Registry) Len() int {
	return len(r.seen)
}

// Propose builds the slug for a cafe without recording it. Empty parts are
// omitted. When the base slug is taken, -2, -3, ... is appended until the
// result is unique in reg.
func Propose(name, street, city string, reg *Registry) string {
	var parts []string
	for _, p := range []string{name, street, city} {
		if n := Normalize(p); n != "" {
			parts = append(parts, n)
		}
	}
	base := strings.Join(parts, "-")
	if base == "" {
		base = "cafe"
	}

	candidate := base
	for i := 2; reg.Contains(candidate); i++ {
		candidate = base + "-" + strconv.Itoa(i)
	}
	return candidate
}

// Segments returns the number of hyphen-separated segments of the slug
// produced from the given parts, before any collision suffix.
func Segments(name, street, city string) int {
	n := 0
	for _, p := range []string{name, street, city} {
		if Normalize(p) != "" {
			n++
		}
	}
	return n
}

var fold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize folds s to lowercase ASCII, drops punctuation and joins words
// with single hyphens. "Café Ñandú & Co." becomes "cafe-nandu-co".
func Normalize(s string) string {
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}
	folded = strings.ReplaceAll(folded, "'", "")
	folded = strings.ReplaceAll(folded, "’", "")

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}
