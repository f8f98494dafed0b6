// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package slug

import (
	"strings"
	"unicode"
)

// streetSuffixes are street-type words dropped from the street token.
var streetSuffixes = map[string]bool{
	"st": true, "street": true, "ave": true, "avenue": true, "av": true,
	"rd": true, "road": true, "blvd": true, "boulevard": true, "dr": true,
	"drive": true, "ln": true, "lane": true, "way": true, "ct": true,
	"court": true, "pl": true, "place": true, "ter": true, "terrace": true,
	"pkwy": true, "parkway": true, "hwy": true, "highway": true, "cir": true,
	"circle": true, "trl": true, "trail": true, "sq": true, "square": true,
	"aly": true, "alley": true,
}

// directionals are leading or trailing compass words dropped from the street token.
var directionals = map[string]bool{
	"n": true, "s": true, "e": true, "w": true, "ne": true, "nw": true,
	"se": true, "sw": true, "north": true, "south": true, "east": true, "west": true,
}

// unitDesignators start a trailing unit component that is cut with
// everything after it.
var unitDesignators = map[string]bool{
	"ste": true, "suite": true, "unit": true, "apt": true, "#": true,
	"bldg": true, "building": true, "fl": true, "floor": true, "rm": true, "room": true,
}

// StreetName extracts the street name from a postal address.
// "1600 Lena St Ste A2, Santa Fe, NM 87505" yields "Lena". It returns ""
// when the first address segment has no street words.
func StreetName(address string) string {
	first, _, _ := strings.Cut(address, ",")
	words := strings.Fields(first)

	if len(words) > 1 && isHouseNumber(words[0]) {
		words = words[1:]
	}
	for len(words) > 1 && directionals[key(words[0])] {
		words = words[1:]
	}

	for i, w := range words {
		if strings.HasPrefix(w, "#") || unitDesignators[key(w)] {
			words = words[:i]
			break
		}
	}

	// Only strip the suffix and trailing directional when a name word remains,
	// so "1 W Street" keeps "Street".
	for len(words) > 1 {
		last := key(words[len(words)-1])
		if !streetSuffixes[last] && !directionals[last] {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func isHouseNumber(w string) bool {
	for _, r := range w {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func key(w string) string {
	return strings.Trim(strings.ToLower(w), ".,")
}
