// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the cafe-collector pipeline:
// the processing queue, search candidates, validated reviews, configuration,
// and the error kinds every stage classifies its failures into.
package types

import (
	"strings"
	"time"
	"unicode"
)

// QueueItem is one city to collect cafes for. Items are created from input
// rows and processed in priority order (most cafes needed first).
type QueueItem struct {
	// City is the city name as it appears in the input table.
	City string `json:"city" yaml:"city"`

	// CafesNeeded is the number of cafes to collect; it is the item's priority.
	CafesNeeded int `json:"cafes_needed" yaml:"cafes_needed"`

	// CityID is the Contentful entry ID the reviews link to via cityReference.
	CityID string `json:"city_id" yaml:"city_id"`
}

// CafeCandidate is a cafe returned by the search step, before enrichment.
type CafeCandidate struct {
	CafeName           string `json:"cafeName" yaml:"cafe_name"`
	CafeAddress        string `json:"cafeAddress" yaml:"cafe_address"`
	City               string `json:"city" yaml:"city"`
	BriefDescription   string `json:"briefDescription" yaml:"brief_description"`
	Neighborhood       string `json:"neighborhood,omitempty" yaml:"neighborhood,omitempty"`
	VerificationSource string `json:"verificationSource,omitempty" yaml:"verification_source,omitempty"`
}

// Key returns the stable identity of the candidate used by the checkpoint
// and by export deduplication.
func (c CafeCandidate) Key() string {
	return CafeKey(c.City, c.CafeName, c.CafeAddress)
}

// CafeKey builds the identity of a cafe from its city, name and address.
// Case, punctuation and spacing differences do not change the key.
func CafeKey(city, name, address string) string {
	return normalizeKeyPart(city) + "/" + normalizeKeyPart(name) + "/" + normalizeKeyPart(address)
}

func normalizeKeyPart(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// Scores holds the seven numeric ratings of a review. Vibe is stored as a
// float so that a non-integral value coming from the model or a spreadsheet
// can be detected and rejected by validation.
type Scores struct {
	Overall    float64 `json:"overallScore" yaml:"overall"`
	Coffee     float64 `json:"coffeeScore" yaml:"coffee"`
	Atmosphere float64 `json:"atmosphereScore" yaml:"atmosphere"`
	Service    float64 `json:"serviceScore" yaml:"service"`
	Value      float64 `json:"valueScore" yaml:"value"`
	Food       float64 `json:"foodScore" yaml:"food"`
	Vibe       float64 `json:"vibeScore" yaml:"vibe"`
}

// Narrative holds the four prose sections of a review.
type Narrative struct {
	VibeDescription string `json:"vibeDescription" yaml:"vibe_description"`
	TheStory        string `json:"theStory" yaml:"the_story"`
	CraftExpertise  string `json:"craftExpertise" yaml:"craft_expertise"`
	SetsApart       string `json:"setsApart" yaml:"sets_apart"`
}

// Location is a latitude/longitude pair.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// CafeReview is the terminal entity of the pipeline. It is built by the
// enrichment step, completed by geocoding and slugging, and immutable once
// validated.
type CafeReview struct {
	CafeKey      string    `json:"cafeKey" yaml:"cafe_key"`
	CafeName     string    `json:"cafeName" yaml:"cafe_name"`
	AuthorName   string    `json:"authorName" yaml:"author_name"`
	PublishDate  time.Time `json:"publishDate" yaml:"publish_date"`
	Slug         string    `json:"slug" yaml:"slug"`
	Excerpt      string    `json:"excerpt" yaml:"excerpt"`
	Scores       Scores    `json:"scores" yaml:"scores"`
	Narrative    Narrative `json:"narrative" yaml:"narrative"`
	CafeAddress  string    `json:"cafeAddress" yaml:"cafe_address"`
	City         string    `json:"city" yaml:"city"`
	CityID       string    `json:"cityId" yaml:"city_id"`
	Location     *Location `json:"location,omitempty" yaml:"location,omitempty"`
	PlaceID      string    `json:"placeId,omitempty" yaml:"place_id,omitempty"`
	InstagramURL string    `json:"instagramUrl,omitempty" yaml:"instagram_url,omitempty"`
	FacebookURL  string    `json:"facebookUrl,omitempty" yaml:"facebook_url,omitempty"`
}
