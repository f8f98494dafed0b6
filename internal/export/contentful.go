// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export renders validated reviews as a Contentful import document
// and as a spreadsheet for manual audit.
package export

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

// DefaultContentType is the Contentful content type of a review entry.
const DefaultContentType = "cafeReview"

// Contentful renders reviews as Contentful entries.
type Contentful struct {
	// SpaceID is written to sys.space when non-empty.
	SpaceID string

	// Locale wraps every field value (default en-US).
	Locale string

	// ContentType defaults to DefaultContentType.
	ContentType string
}

// Document is the Contentful import envelope.
type Document struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// Entry is one Contentful entry. Each field maps locale to value.
type Entry struct {
	Metadata Metadata                  `json:"metadata"`
	Sys      EntrySys                  `json:"sys"`
	Fields   map[string]map[string]any `json:"fields"`
}

// Metadata holds the entry's tags. Tags is always written, empty or not.
type Metadata struct {
	Tags []string `json:"tags"`
}

// EntrySys identifies an entry's content type and, when known, its space.
type EntrySys struct {
	Space       *LinkRef `json:"space,omitempty"`
	Type        string   `json:"type"`
	ContentType LinkRef  `json:"contentType"`
}

// LinkRef is a {"sys": {...}} link to another Contentful object.
type LinkRef struct {
	Sys Link `json:"sys"`
}

// Link is the sys block of a link: type "Link", the linked object's kind
// in LinkType and its ID.
type Link struct {
	Type     string `json:"type"`
	LinkType string `json:"linkType"`
	ID       string `json:"id"`
}

// LatLon is the Contentful location value.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Document renders reviews in order, dropping any review whose cafe key
// was already rendered.
func (c Contentful) Document(reviews []types.CafeReview) Document {
	doc := Document{Version: 7, Entries: make([]Entry, 0, len(reviews))}
	seen := make(map[string]bool, len(reviews))
	for _, r := range reviews {
		key := r.CafeKey
		if key == "" {
			key = types.CafeKey(r.CityID, r.CafeName, r.CafeAddress)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		doc.Entries = append(doc.Entries, c.Entry(r))
	}
	return doc
}

// Entry renders one review.
func (c Contentful) Entry(r types.CafeReview) Entry {
	locale := c.Locale
	if locale == "" {
		locale = "en-US"
	}
	contentType := c.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	fields := map[string]map[string]any{}
	set := func(name string, v any) {
		fields[name] = map[string]any{locale: v}
	}

	set("cafeName", r.CafeName)
	set("authorName", r.AuthorName)
	set("publishDate", r.PublishDate.Format(time.DateOnly))
	set("slug", r.Slug)
	set("excerpt", r.Excerpt)
	if r.InstagramURL != "" {
		set("instagramLink", Hyperlink(r.InstagramURL))
	}
	if r.FacebookURL != "" {
		set("facebookLink", Hyperlink(r.FacebookURL))
	}
	set("overallScore", r.Scores.Overall)
	set("coffeeScore", r.Scores.Coffee)
	set("atmosphereScore", r.Scores.Atmosphere)
	set("serviceScore", r.Scores.Service)
	set("valueScore", r.Scores.Value)
	set("foodScore", r.Scores.Food)
	set("vibeScore", int(math.Round(r.Scores.Vibe)))
	set("vibeDescription", RichText(r.Narrative.VibeDescription))
	set("theStory", RichText(r.Narrative.TheStory))
	set("craftExpertise", RichText(r.Narrative.CraftExpertise))
	set("setsApart", RichText(r.Narrative.SetsApart))
	set("cafeAddress", r.CafeAddress)
	set("cityReference", LinkRef{Sys: Link{Type: "Link", LinkType: "Entry", ID: r.CityID}})
	if r.Location != nil {
		set("cafeLatLon", LatLon{Lat: r.Location.Lat, Lon: r.Location.Lon})
	}
	if r.PlaceID != "" {
		set("placeId", r.PlaceID)
	}

	e := Entry{
		Metadata: Metadata{Tags: []string{}},
		Sys: EntrySys{
			Type:        "Entry",
			ContentType: LinkRef{Sys: Link{Type: "Link", LinkType: "ContentType", ID: contentType}},
		},
		Fields: fields,
	}
	if c.SpaceID != "" {
		e.Sys.Space = &LinkRef{Sys: Link{Type: "Link", LinkType: "Space", ID: c.SpaceID}}
	}
	return e
}

// DefaultJSONPath is output/contentful_export_<timestamp>.json under dir.
func DefaultJSONPath(dir string, now time.Time) string {
	return filepath.Join(dir, "contentful_export_"+now.Format("20060102_150405")+".json")
}

// WriteJSON writes doc to path through a temp file and rename, so a
// partially written export never replaces a complete one.
func WriteJSON(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling export: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming to %s: %w", path, err)
	}
	return nil
}
