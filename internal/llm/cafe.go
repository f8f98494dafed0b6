// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

// SearchReply is the decoded reply of SearchTemplate.
type SearchReply struct {
	Cafes []types.CafeCandidate `json:"cafes"`
}

// UnmarshalJSON accepts both {"cafes": [...]} and a bare array.
func (r *SearchReply) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &r.Cafes)
	}
	type plain SearchReply
	return json.Unmarshal(trimmed, (*plain)(r))
}

// Validate requires at least one candidate with a name and an address.
func (r *SearchReply) Validate() error {
	for _, c := range r.Cafes {
		if complete(c) {
			return nil
		}
	}
	return errors.New("search reply has no cafe with both cafeName and cafeAddress")
}

func complete(c types.CafeCandidate) bool {
	return strings.TrimSpace(c.CafeName) != "" && strings.TrimSpace(c.CafeAddress) != ""
}

// EnrichReply is the decoded reply of EnrichTemplate. Scores are pointers so
// a missing score is distinguishable from a zero.
type EnrichReply struct {
	Excerpt         string   `json:"excerpt"`
	OverallScore    *float64 `json:"overallScore"`
	CoffeeScore     *float64 `json:"coffeeScore"`
	AtmosphereScore *float64 `json:"atmosphereScore"`
	ServiceScore    *float64 `json:"serviceScore"`
	ValueScore      *float64 `json:"valueScore"`
	FoodScore       *float64 `json:"foodScore"`
	VibeScore       *float64 `json:"vibeScore"`
	VibeDescription string   `json:"vibeDescription"`
	TheStory        string   `json:"theStory"`
	CraftExpertise  string   `json:"craftExpertise"`
	SetsApart       string   `json:"setsApart"`
	InstagramLink   string   `json:"instagramLink"`
	FacebookLink    string   `json:"facebookLink"`
}

// Validate checks that every field is present. Score ranges are not
// checked here; an out-of-range score is a validation failure of the
// review, not a malformed reply.
func (r *EnrichReply) Validate() error {
	var missing []string
	for name, v := range map[string]*float64{
		"overallScore":    r.OverallScore,
		"coffeeScore":     r.CoffeeScore,
		"atmosphereScore": r.AtmosphereScore,
		"serviceScore":    r.ServiceScore,
		"valueScore":      r.ValueScore,
		"foodScore":       r.FoodScore,
		"vibeScore":       r.VibeScore,
	} {
		if v == nil {
			missing = append(missing, name)
		}
	}
	for name, v := range map[string]string{
		"excerpt":         r.Excerpt,
		"vibeDescription": r.VibeDescription,
		"theStory":        r.TheStory,
		"craftExpertise":  r.CraftExpertise,
		"setsApart":       r.SetsApart,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("enrich reply missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Scores returns the reply's scores. Missing scores are zero.
func (r *EnrichReply) Scores() types.Scores {
	return types.Scores{
		Overall:    deref(r.OverallScore),
		Coffee:     deref(r.CoffeeScore),
		Atmosphere: deref(r.AtmosphereScore),
		Service:    deref(r.ServiceScore),
		Value:      deref(r.ValueScore),
		Food:       deref(r.FoodScore),
		Vibe:       deref(r.VibeScore),
	}
}

// Narrative returns the four prose sections.
func (r *EnrichReply) Narrative() types.Narrative {
	return types.Narrative{
		VibeDescription: strings.TrimSpace(r.VibeDescription),
		TheStory:        strings.TrimSpace(r.TheStory),
		CraftExpertise:  strings.TrimSpace(r.CraftExpertise),
		SetsApart:       strings.TrimSpace(r.SetsApart),
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// SearchCafes asks for n cafes in city, leaving out the cafes named in
// exclude. Candidates without a name or address are dropped with a
// warning; the city is filled in when missing.
func (c *Client) SearchCafes(ctx context.Context, city string, n int, exclude []string) ([]types.CafeCandidate, error) {
	var reply SearchReply
	if err := c.Generate(ctx, SearchTemplate, SearchParams{City: city, Count: n, Exclude: exclude}, &reply); err != nil {
		return nil, fmt.Errorf("searching cafes in %s: %w", city, err)
	}

	out := make([]types.CafeCandidate, 0, len(reply.Cafes))
	for _, cand := range reply.Cafes {
		if !complete(cand) {
			slog.Warn("dropping incomplete cafe candidate", "city", city, "name", cand.CafeName)
			continue
		}
		cand.CafeName = strings.TrimSpace(cand.CafeName)
		cand.CafeAddress = strings.TrimSpace(cand.CafeAddress)
		if strings.TrimSpace(cand.City) == "" {
			cand.City = city
		}
		out = append(out, cand)
	}
	return out, nil
}

// EnrichCafe asks for the scores and narrative of one candidate.
func (c *Client) EnrichCafe(ctx context.Context, cand types.CafeCandidate) (*EnrichReply, error) {
	var reply EnrichReply
	params := EnrichParams{
		CafeName:         cand.CafeName,
		CafeAddress:      cand.CafeAddress,
		City:             cand.City,
		Neighborhood:     cand.Neighborhood,
		BriefDescription: cand.BriefDescription,
	}
	if err := c.Generate(ctx, EnrichTemplate, params, &reply); err != nil {
		return nil, fmt.Errorf("enriching %s: %w", cand.CafeName, err)
	}
	return &reply, nil
}
